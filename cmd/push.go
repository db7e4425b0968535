package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/archive-extract/config"
	"github.com/dhcgn/archive-extract/filter"
	"github.com/dhcgn/archive-extract/imap"
	"github.com/dhcgn/archive-extract/progress"
	"github.com/dhcgn/archive-extract/runner"
	"github.com/dhcgn/archive-extract/scan"
	"github.com/dhcgn/archive-extract/state"
	"github.com/dhcgn/archive-extract/stats"
)

func newPushCommand() (*cobra.Command, error) {
	c := &cobra.Command{
		Use:   "push --dir <output> --imap-host <host> --imap-user <user>",
		Short: "Upload extracted .eml files into an IMAP mailbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadPushConfig(cmd)
			if err != nil {
				return err
			}

			logger, cleanup, err := startLogging(cfg.Global, "push")
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			logger.Info("starting push", "dir", cfg.Dir, "target", cfg.TargetFolder, "dryRun", cfg.DryRun)
			return runPush(cmd.Context(), cfg, logger)
		},
	}
	if err := config.RegisterPushFlags(c); err != nil {
		return nil, err
	}
	return c, nil
}

func runPush(ctx context.Context, cfg config.PushConfig, logger *slog.Logger) error {
	started := time.Now()

	var f *filter.Filter
	if cfg.Filters.Options().Active() {
		var err error
		f, err = filter.New(cfg.Filters.Options())
		if err != nil {
			return fmt.Errorf("create filter: %w", err)
		}
	}

	total, err := scan.Count(cfg.Dir)
	if err != nil {
		return fmt.Errorf("count message files: %w", err)
	}

	tracker, err := state.NewFileTracker(cfg.StateDir, !cfg.DryRun)
	if err != nil {
		return fmt.Errorf("state tracker: %w", err)
	}

	r, err := runner.New(ctx, tracker, logger)
	if err != nil {
		_ = tracker.Close()
		return fmt.Errorf("runner.New: %w", err)
	}

	// Subscribers go first so they see every event.
	reporter := stats.NewReporter(r, logger)
	bar := progress.StartPush(r, total, tracker.Snapshot().Uploaded, cfg.LogLevel)

	uploaderOpts := imap.Options{
		Host:               cfg.IMAPHost,
		Port:               cfg.IMAPPort,
		Username:           cfg.IMAPUser,
		Password:           cfg.IMAPPass,
		UseTLS:             cfg.UseTLS,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		TargetFolder:       cfg.TargetFolder,
		DryRun:             cfg.DryRun,
	}
	if _, err := imap.NewUploader(uploaderOpts, r, logger); err != nil {
		r.CloseMailbox()
		_ = r.Wait()
		return fmt.Errorf("imap.NewUploader: %w", err)
	}
	if _, err := scan.NewProducer(scan.Options{Dir: cfg.Dir, Filter: f}, r, logger); err != nil {
		r.CloseMailbox()
		_ = r.Wait()
		return fmt.Errorf("scan.NewProducer: %w", err)
	}

	err = r.Wait()
	bar.Stop(reporter.Summary(), time.Since(started))
	return err
}
