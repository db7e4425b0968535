package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dhcgn/archive-extract/container"
	"github.com/dhcgn/archive-extract/pst"
	"github.com/dhcgn/archive-extract/stats"
)

// Strategy is how a PST container gets extracted.
type Strategy int

const (
	StrategyInProcess Strategy = iota
	StrategyExternal
)

func (s Strategy) String() string {
	switch s {
	case StrategyInProcess:
		return "in-process"
	case StrategyExternal:
		return "external"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// Plan picks the strategy for ref. Small files go to the in-process parser
// when one is configured. Everything else prefers the external tool when
// its probe succeeds.
func (e *Extractor) Plan(ctx context.Context, ref container.Ref) Strategy {
	if ref.Size < container.LargeFileThreshold && e.parser != nil {
		return StrategyInProcess
	}
	if e.converter != nil && e.converter.Available(ctx) {
		return StrategyExternal
	}
	return StrategyInProcess
}

func (e *Extractor) extractPST(ctx context.Context, r *run) error {
	strategy := e.Plan(ctx, r.ref)
	r.logger.Debug("extraction strategy", "strategy", strategy)

	if strategy == StrategyExternal {
		err := e.runExternal(ctx, r)
		if err == nil || ctx.Err() != nil {
			return err
		}
		if e.parser == nil {
			return fmt.Errorf("%w: %w", ErrNoParser, err)
		}
		r.logger.Warn("external converter failed, using in-process parser", "err", err)
	}
	return e.runInProcess(ctx, r)
}

func (e *Extractor) runInProcess(ctx context.Context, r *run) error {
	if e.parser == nil {
		if e.converter == nil {
			return ErrNoParser
		}
		return fmt.Errorf("%w: %w", ErrNoParser, ErrExternalToolUnavailable)
	}

	var (
		root pst.Folder
		err  error
	)
	if r.ref.Size < container.LargeFileThreshold {
		var data []byte
		data, err = os.ReadFile(r.ref.Path)
		if err != nil {
			return fmt.Errorf("read container: %w", err)
		}
		root, err = e.parser.ParseBytes(data)
	} else {
		root, err = e.parser.ParseFile(r.ref.Path)
	}
	if err != nil {
		return fmt.Errorf("parse container: %w", err)
	}
	if c, ok := root.(io.Closer); ok {
		defer c.Close()
	}

	if err := ensureDir(r.outputDir); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := ensureDir(r.attachmentDir); err != nil {
		return fmt.Errorf("create attachment directory: %w", err)
	}

	_, err = r.walk(ctx, root, r.outputDir, 0)
	return err
}

func (e *Extractor) runExternal(ctx context.Context, r *run) error {
	tmp, err := os.MkdirTemp("", "archive-extract-*")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			r.logger.Warn("remove staging directory", "path", tmp, "err", err)
		}
	}()

	if err := e.converter.Convert(ctx, r.ref.Path, tmp); err != nil {
		if errors.Is(err, ErrExternalToolFailure) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrExternalToolFailure, err)
	}

	if err := ensureDir(r.outputDir); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := ensureDir(r.attachmentDir); err != nil {
		return fmt.Errorf("create attachment directory: %w", err)
	}
	return r.staged(func(s *run) error {
		return s.reconcile(ctx, tmp, r.outputDir)
	})
}

// staged runs fn on a copy of r with private counters and adds them to the
// live counters only when fn succeeds. Files written by a failed attempt
// stay on disk but are not counted; the fallback counts what it writes.
func (r *run) staged(fn func(*run) error) error {
	s := *r
	s.stats = stats.New()
	if err := fn(&s); err != nil {
		return err
	}
	r.stats.AddSummary(s.stats.Snapshot())
	return nil
}
