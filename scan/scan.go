// Package scan feeds extracted message files into the push pipeline.
package scan

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/dhcgn/archive-extract/filter"
	"github.com/dhcgn/archive-extract/model"
	"github.com/dhcgn/archive-extract/runner"
	"github.com/dhcgn/archive-extract/stats"
)

// Ext is the extension of message files picked up by the scanner.
const Ext = ".eml"

type Options struct {
	Dir    string
	Filter *filter.Filter
}

type Producer struct {
	opts   Options
	runner *runner.Runner
	logger *slog.Logger
}

// NewProducer registers a stage on r that walks opts.Dir and sends every
// message file to the mailbox channel.
func NewProducer(opts Options, r *runner.Runner, logger *slog.Logger) (*Producer, error) {
	info, err := os.Stat(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("message directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("message directory: %s is not a directory", opts.Dir)
	}
	if logger == nil {
		logger = r.Logger()
	}
	p := &Producer{opts: opts, runner: r, logger: logger}
	r.AddStage("scan", p.run)
	return p, nil
}

func (p *Producer) run(ctx context.Context) error {
	defer p.runner.CloseMailbox()
	out := p.runner.MailboxWriter()

	return Walk(p.opts.Dir, func(path string) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := Load(p.opts.Dir, path)
		if err == nil && !p.opts.Filter.AllowsRaw(msg.Raw) {
			p.runner.EmitEvent(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeFiltered, MessageID: msg.ID, Detail: msg.Path})
			return nil
		}
		if err != nil {
			msg.Path = path
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- model.Envelope{Message: msg, Err: err}:
		}
		return nil
	})
}

// Walk calls fn for every message file below dir in lexical order.
func Walk(dir string, fn func(path string) error) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), Ext) {
			return nil
		}
		return fn(path)
	})
}

// Count returns the number of message files below dir.
func Count(dir string) (int, error) {
	n := 0
	err := Walk(dir, func(string) error {
		n++
		return nil
	})
	return n, err
}

// Load reads one message file. The ID is the Message-Id header, or the path
// relative to root when the header is missing.
func Load(root, path string) (model.RawMessage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.RawMessage{}, fmt.Errorf("read message: %w", err)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	msg := model.RawMessage{
		Hash: Hash(raw),
		Path: rel,
		Size: int64(len(raw)),
		Raw:  raw,
	}

	id, date, err := headerFields(raw)
	if err != nil {
		return msg, fmt.Errorf("parse header of %s: %w", rel, err)
	}
	msg.ID = id
	if msg.ID == "" {
		msg.ID = rel
	}
	msg.ReceivedAt = date
	return msg, nil
}

func headerFields(raw []byte) (string, time.Time, error) {
	th, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return "", time.Time{}, err
	}
	h := mail.Header{Header: message.Header{Header: th}}

	id, err := h.MessageID()
	if err != nil {
		id = ""
	}
	date, err := h.Date()
	if err != nil {
		date = time.Time{}
	}
	return id, date, nil
}

// Hash identifies a message by its raw bytes.
func Hash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return base64.StdEncoding.EncodeToString(sum[:])
}
