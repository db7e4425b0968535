package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dhcgn/archive-extract/filter"
	"github.com/dhcgn/archive-extract/mbox"
	"github.com/dhcgn/archive-extract/render"
)

const headerScanLines = 50

const (
	placeholderSubject = "No Subject"
	placeholderFrom    = "Unknown Sender"
	placeholderTo      = "Unknown Recipient"
	placeholderDate    = "Unknown Date"
)

// extractMbox writes every record of a line-delimited container as soon as
// the splitter produces it. Only a failing read aborts the container.
func (e *Extractor) extractMbox(ctx context.Context, r *run) error {
	f, err := e.openStream(r.ref.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStreamRead, err)
	}
	defer f.Close()

	if err := ensureDir(r.outputDir); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	index := 0
	for rec, err := range mbox.NewSplitter(f).Records() {
		if err != nil {
			return fmt.Errorf("%w: record %d: %w", ErrStreamRead, index+1, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		index++

		if !e.filter.AllowsRaw(rec) {
			r.stats.AddFiltered()
			continue
		}

		name := r.fileName(fmt.Sprintf("message_%06d", index), r.opts.Format.Ext())
		path := filepath.Join(r.outputDir, name)
		if err := writeFile(path, func(w io.Writer) error {
			return r.writeRecord(w, rec)
		}); err != nil {
			r.recordFailure("write record", err, "record", index, "path", path)
			continue
		}
		r.stats.AddEmail()
	}

	return nil
}

func (r *run) writeRecord(w io.Writer, rec []byte) error {
	if r.opts.Format == FormatText {
		header, body := scanRecordHeader(rec)
		return render.TextRecord(w, header, body)
	}
	_, err := w.Write(rec)
	return err
}

// scanRecordHeader looks for the usual headers in the first lines of a
// record and falls back to placeholders for anything it cannot find.
func scanRecordHeader(rec []byte) (render.Header, []byte) {
	var h render.Header
	fields := []struct {
		prefix string
		dst    *string
	}{
		{"subject:", &h.Subject},
		{"from:", &h.From},
		{"to:", &h.To},
		{"date:", &h.Date},
	}

	rest := rec
	for i := 0; i < headerScanLines && len(rest) > 0; i++ {
		var line []byte
		if idx := bytes.IndexByte(rest, '\n'); idx >= 0 {
			line, rest = rest[:idx], rest[idx+1:]
		} else {
			line, rest = rest, nil
		}
		text := strings.TrimRight(string(line), "\r")
		lower := strings.ToLower(text)
		for _, f := range fields {
			if *f.dst == "" && strings.HasPrefix(lower, f.prefix) {
				*f.dst = strings.TrimSpace(text[len(f.prefix):])
			}
		}
	}

	if h.Subject == "" {
		h.Subject = placeholderSubject
	}
	if h.From == "" {
		h.From = placeholderFrom
	}
	if h.To == "" {
		h.To = placeholderTo
	}
	if h.Date == "" {
		h.Date = placeholderDate
	}

	_, body := filter.SplitRawMessage(rec)
	return h, body
}
