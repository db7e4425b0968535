// Package runner wires the push pipeline: a producer feeds envelopes into
// the mailbox channel, the bridge drops duplicates, and upload stages drain
// the uploads channel. Every stage reports through stats events.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dhcgn/archive-extract/model"
	"github.com/dhcgn/archive-extract/state"
	"github.com/dhcgn/archive-extract/stats"
)

var ErrMessageIDMissing = errors.New("message missing id")

const queueSize = 32

type StageFunc func(context.Context) error

type Runner struct {
	logger  *slog.Logger
	tracker state.Tracker

	// base outlives the stages so subscribers can drain after a failure.
	base       context.Context
	cancelBase context.CancelFunc
	ctx        context.Context
	stages     *errgroup.Group
	listeners  errgroup.Group

	messages chan model.Envelope
	uploads  chan model.RawMessage

	subsMu sync.Mutex
	subs   []chan stats.Event

	closeMailbox func()
	closeUploads func()
	closeEvents  func()
}

// New creates a runner that stops when ctx is cancelled or a stage fails.
// The tracker is closed when Wait returns.
func New(ctx context.Context, tracker state.Tracker, logger *slog.Logger) (*Runner, error) {
	if tracker == nil {
		return nil, fmt.Errorf("tracker must not be nil")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	base, cancel := context.WithCancel(ctx)
	stages, stageCtx := errgroup.WithContext(base)
	r := &Runner{
		logger:     logger,
		tracker:    tracker,
		base:       base,
		cancelBase: cancel,
		ctx:        stageCtx,
		stages:     stages,
		messages:   make(chan model.Envelope, queueSize),
		uploads:    make(chan model.RawMessage, queueSize),
	}
	r.closeMailbox = sync.OnceFunc(func() { close(r.messages) })
	r.closeUploads = sync.OnceFunc(func() { close(r.uploads) })
	r.closeEvents = sync.OnceFunc(func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		for _, ch := range r.subs {
			close(ch)
		}
	})

	r.AddStage("bridge", r.bridge)
	return r, nil
}

func (r *Runner) Logger() *slog.Logger { return r.logger }

// Context is cancelled once any stage fails.
func (r *Runner) Context() context.Context { return r.ctx }

func (r *Runner) Tracker() state.Tracker { return r.tracker }

func (r *Runner) MailboxWriter() chan<- model.Envelope { return r.messages }

// CloseMailbox signals that the producer is done. It is safe to call more
// than once.
func (r *Runner) CloseMailbox() { r.closeMailbox() }

func (r *Runner) Uploads() <-chan model.RawMessage { return r.uploads }

// AddStage runs fn in the stage group. A stage returning context.Canceled
// is treated as a clean stop.
func (r *Runner) AddStage(name string, fn StageFunc) {
	r.stages.Go(func() error {
		if err := fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s stage: %w", name, err)
		}
		return nil
	})
}

// SubscribeStats starts fn with its own event channel. Subscribers must be
// registered before the first event is emitted.
func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	ch := make(chan stats.Event, 128)
	r.subsMu.Lock()
	r.subs = append(r.subs, ch)
	r.subsMu.Unlock()

	r.listeners.Go(func() error {
		if err := fn(r.base, ch); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s stats: %w", name, err)
		}
		return nil
	})
}

// EmitEvent delivers evt to every subscriber. Delivery stops once the
// stages are cancelled.
func (r *Runner) EmitEvent(evt stats.Event) {
	r.subsMu.Lock()
	subs := r.subs
	r.subsMu.Unlock()

	for _, ch := range subs {
		select {
		case <-r.ctx.Done():
			return
		case ch <- evt:
		}
	}
}

// Wait blocks until every stage and subscriber is done. It returns the
// first stage error joined with any subscriber or state close error, or
// the parent context's error when the run was interrupted.
func (r *Runner) Wait() error {
	since := time.Now()

	err := r.stages.Wait()
	r.closeEvents()
	if lerr := r.listeners.Wait(); lerr != nil {
		err = errors.Join(err, lerr)
	}
	interrupted := r.base.Err()
	r.cancelBase()

	if cerr := r.tracker.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close state: %w", cerr))
	}
	if err == nil && interrupted != nil {
		err = interrupted
	}

	duration := time.Since(since)
	if err != nil {
		r.logger.Error("pipeline failed", "duration", duration, "err", err)
		return err
	}
	r.logger.Info("pipeline completed", "duration", duration, "tracked", r.tracker.Snapshot().Uploaded)
	return nil
}

func (r *Runner) emit(typ stats.EventType, msg model.RawMessage, err error) {
	r.EmitEvent(stats.Event{Stage: stats.StageScan, Type: typ, MessageID: msg.ID, Err: err, Detail: msg.Path})
}

// bridge moves envelopes from the mailbox to the upload queue. Unreadable
// files are reported and skipped. A message without an ID stops the run.
func (r *Runner) bridge(ctx context.Context) error {
	defer r.closeUploads()
	for {
		var envelope model.Envelope
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-r.messages:
			if !ok {
				return nil
			}
			envelope = e
		}

		msg := envelope.Message
		if envelope.Err != nil {
			r.emit(stats.EventTypeError, msg, envelope.Err)
			r.logger.Warn("skipping unreadable message", "path", msg.Path, "err", envelope.Err)
			continue
		}

		r.emit(stats.EventTypeScanned, msg, nil)
		if msg.ID == "" {
			err := fmt.Errorf("%w: %s", ErrMessageIDMissing, msg.Path)
			r.emit(stats.EventTypeError, msg, err)
			return err
		}
		if msg.Hash != "" && r.tracker.Seen(msg.Hash) {
			r.emit(stats.EventTypeDuplicate, msg, nil)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case r.uploads <- msg:
			r.emit(stats.EventTypeEnqueued, msg, nil)
		}
	}
}
