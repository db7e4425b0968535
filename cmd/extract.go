package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/archive-extract/config"
	"github.com/dhcgn/archive-extract/container"
	"github.com/dhcgn/archive-extract/extract"
	"github.com/dhcgn/archive-extract/filter"
	"github.com/dhcgn/archive-extract/mbox"
	"github.com/dhcgn/archive-extract/progress"
	"github.com/dhcgn/archive-extract/stats"
)

func newExtractCommand() (*cobra.Command, error) {
	c := &cobra.Command{
		Use:   "extract [flags] <path>...",
		Short: "Extract PST and mbox containers into eml, vcf and ics files",
		Long: "Each path is a container or a directory that is scanned (not recursively) " +
			"for files with a known container extension. Containers are processed one after another.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadExtractConfig(cmd, args)
			if err != nil {
				return err
			}

			logger, cleanup, err := startLogging(cfg.Global, "extract")
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			return runExtract(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}
	if err := config.RegisterExtractFlags(c); err != nil {
		return nil, err
	}
	return c, nil
}

func runExtract(ctx context.Context, cfg config.ExtractConfig, logger *slog.Logger, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	paths, err := collectContainers(cfg.Paths)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("%w: no containers found in %v", extract.ErrNotFound, cfg.Paths)
	}

	var f *filter.Filter
	if cfg.Filters.Options().Active() {
		f, err = filter.New(cfg.Filters.Options())
		if err != nil {
			return fmt.Errorf("create filter: %w", err)
		}
	}

	converter := extract.NewReadpst(cfg.Readpst, logger)
	converter.ProbeTimeout = cfg.ProbeTimeout

	prefix := len(paths) > 1
	if cfg.PrefixContainer != nil {
		prefix = *cfg.PrefixContainer
	}
	opts := extract.Options{
		Format:          cfg.Format,
		MaxDepth:        cfg.MaxDepth,
		SkipEmpty:       cfg.SkipEmpty,
		Verbose:         cfg.Verbose,
		PrefixContainer: prefix,
	}
	ex := extract.New(opts, logger, extract.WithConverter(converter), extract.WithFilter(f))

	logger.Info("starting extraction", "containers", len(paths), "output", cfg.OutputDir, "attachments", cfg.AttachmentDir, "format", cfg.Format)

	var (
		total   stats.Summary
		results []containerResult
		errs    []error
	)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		st := stats.New()
		tracker := progress.StartExtraction(ctx, st, filepath.Base(path), progressTotal(path, logger), cfg.LogLevel, logger)
		sum, err := ex.Extract(ctx, extract.Request{
			Path:          path,
			OutputDir:     cfg.OutputDir,
			AttachmentDir: cfg.AttachmentDir,
			Stats:         st,
		})
		tracker.Stop(err)

		results = append(results, containerResult{path: path, summary: sum, err: err})
		if err != nil {
			logger.Error("extraction failed", "container", path, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		total = total.Add(sum)
	}

	if err := printResults(out, results, total); err != nil {
		logger.Warn("print summary", "err", err)
	}
	if f != nil {
		printFilterStats(out, f.Stats())
	}
	logger.Info("extraction finished", total.LogAttrs()...)

	return errors.Join(errs...)
}

// maxCountedSize is the largest mbox that is read once up front to give the
// progress bar a total.
var maxCountedSize int64 = 256 << 20

// progressTotal counts mbox messages so the bar has a total. PST, large
// mbox files and anything that cannot be counted get a spinner.
func progressTotal(path string, logger *slog.Logger) int {
	kind, ok := container.KindForExtension(path)
	if !ok || kind != container.KindMbox {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() > maxCountedSize {
		return 0
	}
	n, err := mbox.Count(path)
	if err != nil {
		logger.Debug("count mbox messages", "path", path, "err", err)
		return 0
	}
	return n
}

// collectContainers expands directory arguments into the container files
// they hold. Explicit file arguments are kept as given.
func collectContainers(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", extract.ErrNotFound, arg)
			}
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("read directory %s: %w", arg, err)
		}
		var found []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if _, ok := container.KindForExtension(e.Name()); ok {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return paths, nil
}

type containerResult struct {
	path    string
	summary stats.Summary
	err     error
}

func printResults(w io.Writer, results []containerResult, total stats.Summary) error {
	data := pterm.TableData{{"Container", "Folders", "Emails", "Attachments", "Contacts", "Appointments", "Tasks", "Filtered", "Failed", "Status"}}
	for _, r := range results {
		status := "ok"
		if r.err != nil {
			status = r.err.Error()
		}
		data = append(data, summaryRow(filepath.Base(r.path), r.summary, status))
	}
	if len(results) > 1 {
		data = append(data, summaryRow("total", total, ""))
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, table)
	return err
}

func summaryRow(name string, s stats.Summary, status string) []string {
	return []string{
		name,
		fmt.Sprint(s.FoldersVisited),
		fmt.Sprint(s.EmailsExtracted),
		fmt.Sprint(s.AttachmentsExtracted),
		fmt.Sprint(s.ContactsExtracted),
		fmt.Sprint(s.AppointmentsExtracted),
		fmt.Sprint(s.TasksExtracted),
		fmt.Sprint(s.Filtered),
		fmt.Sprint(s.Failed),
		status,
	}
}
