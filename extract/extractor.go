package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/dhcgn/archive-extract/container"
	"github.com/dhcgn/archive-extract/filter"
	"github.com/dhcgn/archive-extract/pst"
	"github.com/dhcgn/archive-extract/stats"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	contactsDir = "contacts"
	calendarDir = "calendar"
)

// Extractor turns containers into per-item files. It holds only
// configuration; every Extract call keeps its own state.
type Extractor struct {
	defaults  Options
	parser    pst.Parser
	converter Converter
	filter    *filter.Filter
	logger    *slog.Logger

	// openStream opens line-delimited containers.
	openStream func(path string) (io.ReadCloser, error)
}

type Option func(*Extractor)

// WithParser sets the in-process PST parser.
func WithParser(p pst.Parser) Option {
	return func(e *Extractor) { e.parser = p }
}

// WithConverter sets the external converter used for large PST files.
func WithConverter(c Converter) Option {
	return func(e *Extractor) { e.converter = c }
}

// WithFilter drops mbox records the filter rejects.
func WithFilter(f *filter.Filter) Option {
	return func(e *Extractor) { e.filter = f }
}

func New(defaults Options, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := &Extractor{defaults: defaults, logger: logger, openStream: openFile}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request describes one extraction call.
type Request struct {
	Path          string
	OutputDir     string
	AttachmentDir string
	Overrides     Overrides
	// Stats receives live counters when set; it is reset first.
	Stats *stats.Stats
}

// Extract classifies req.Path and runs the matching pipeline. On a fatal
// error the returned Summary is zero; per-item failures are only logged.
func (e *Extractor) Extract(ctx context.Context, req Request) (stats.Summary, error) {
	st := req.Stats
	if st == nil {
		st = stats.New()
	} else {
		st.Reset()
	}
	opts := e.defaults.Merge(req.Overrides)

	ref, err := container.Detect(req.Path)
	if err != nil {
		return stats.Summary{}, err
	}

	if strings.TrimSpace(req.OutputDir) == "" {
		return stats.Summary{}, fmt.Errorf("%w: output directory", ErrMissingRequiredOutput)
	}
	if ref.Kind == container.KindPST && strings.TrimSpace(req.AttachmentDir) == "" {
		return stats.Summary{}, fmt.Errorf("%w: attachment directory is required for %s containers", ErrMissingRequiredOutput, ref.Kind)
	}

	r := &run{
		opts:          opts,
		ref:           ref,
		stats:         st,
		logger:        e.logger.With("container", filepath.Base(ref.Path)),
		outputDir:     req.OutputDir,
		attachmentDir: req.AttachmentDir,
	}
	r.logger.Info("extracting container", "kind", ref.Kind, "size", humanize.IBytes(uint64(ref.Size)), "format", opts.Format)

	switch ref.Kind {
	case container.KindPST:
		err = e.extractPST(ctx, r)
	case container.KindMbox:
		err = e.extractMbox(ctx, r)
	default:
		err = fmt.Errorf("%w: no extraction pipeline for %s containers", ErrUnsupportedContainer, ref.Kind)
	}
	if err != nil {
		return stats.Summary{}, err
	}

	summary := st.Snapshot()
	r.logger.Info("container extracted", summary.LogAttrs()...)
	return summary, nil
}

// run is the state of a single Extract call.
type run struct {
	opts          Options
	ref           container.Ref
	stats         *stats.Stats
	logger        *slog.Logger
	outputDir     string
	attachmentDir string
}

// fileName applies the optional container prefix to base.
func (r *run) fileName(base, ext string) string {
	if r.opts.PrefixContainer {
		base = Sanitize(r.ref.Name()) + "_" + base
	}
	return base + ext
}

func (r *run) recordFailure(msg string, err error, attrs ...any) {
	r.stats.AddFailure()
	attrs = append(attrs, "err", fmt.Errorf("%w: %w", ErrRecordWrite, err))
	if r.opts.Verbose {
		r.logger.Warn(msg, attrs...)
		return
	}
	r.logger.Debug(msg, attrs...)
}

func openFile(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, dirPerm)
}

// writeFile creates path, including missing parents, and fills it through
// fn. A failed write leaves no partial file behind.
func writeFile(path string, fn func(io.Writer) error) error {
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

// copyFile copies src to dst and refuses to replace an existing dst.
func copyFile(src, dst string) error {
	if err := ensureDir(filepath.Dir(dst)); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, filePerm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
