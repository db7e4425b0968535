// Package cmd holds the archive-extract command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/archive-extract/config"
)

const appName = "archive-extract"

// NewRootCommand builds the command tree.
func NewRootCommand() (*cobra.Command, error) {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Extract mail archives into per-item files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterGlobalFlags(root)

	extractCmd, err := newExtractCommand()
	if err != nil {
		return nil, err
	}
	pushCmd, err := newPushCommand()
	if err != nil {
		return nil, err
	}
	root.AddCommand(extractCmd, newInspectCommand(), pushCmd)
	return root, nil
}

// Execute runs the command tree and returns the exit code.
func Execute() int {
	root, err := NewRootCommand()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		return 1
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// startLogging builds the logger for a command and installs it as default.
func startLogging(g config.Global, command string) (*slog.Logger, func() error, error) {
	logger, cleanup, err := setupLogger(g, os.Stdout)
	if err != nil {
		return nil, cleanup, err
	}
	logger = logger.With("cmd", command)
	slog.SetDefault(logger)
	return logger, cleanup, nil
}

func setupLogger(g config.Global, stdout io.Writer) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch g.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if g.LogDir == "" {
		return slog.New(slog.NewTextHandler(stdout, opts)), cleanup, nil
	}

	if err := os.MkdirAll(g.LogDir, 0o755); err != nil {
		return nil, cleanup, err
	}
	logFilePath := filepath.Join(g.LogDir, fmt.Sprintf("%s-%s.log", appName, time.Now().Format("20060102T150405")))
	file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, cleanup, err
	}

	handler := slog.NewTextHandler(io.MultiWriter(stdout, file), opts)
	return slog.New(handler), file.Close, nil
}
