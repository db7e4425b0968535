package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultProbeTimeout bounds the availability check of the external tool.
const DefaultProbeTimeout = 5 * time.Second

// Converter turns a container into a directory tree of per-item files
// using a tool outside this process.
type Converter interface {
	Available(ctx context.Context) bool
	Convert(ctx context.Context, containerPath, outDir string) error
}

// Readpst drives the readpst binary from libpst.
type Readpst struct {
	Binary       string
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

func NewReadpst(binary string, logger *slog.Logger) *Readpst {
	if binary == "" {
		binary = "readpst"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Readpst{Binary: binary, ProbeTimeout: DefaultProbeTimeout, Logger: logger}
}

// Args returns the command line used to convert containerPath into outDir:
// separate files per item, contacts as vCard, calendar items as iCalendar,
// utf-8 output and deleted items included.
func (c *Readpst) Args(containerPath, outDir string) []string {
	return []string{"-o", outDir, "-e", "-cv", "-t", "eajc", "-8", "-D", containerPath}
}

// Available runs the version probe and reports whether it exited cleanly
// within the probe timeout.
func (c *Readpst) Available(ctx context.Context) bool {
	timeout := c.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Binary, "-V")
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		c.Logger.Debug("external converter unavailable", "binary", c.Binary, "err", err)
		return false
	}
	return true
}

func (c *Readpst) Convert(ctx context.Context, containerPath, outDir string) error {
	args := c.Args(containerPath, outDir)
	c.Logger.Debug("running external converter", "binary", c.Binary, "args", strings.Join(args, " "))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%w: %w", ErrExternalToolFailure, err)
		}
		return fmt.Errorf("%w: %w: %s", ErrExternalToolFailure, err, msg)
	}
	return nil
}
