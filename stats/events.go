package stats

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Stage names the push pipeline step that emitted an event.
type Stage string

const (
	StageScan Stage = "scan"
	StageIMAP Stage = "imap"
)

type EventType string

const (
	EventTypeScanned      EventType = "scanned"
	EventTypeEnqueued     EventType = "enqueued"
	EventTypeUploaded     EventType = "uploaded"
	EventTypeDryRunUpload EventType = "dry_run_uploaded"
	EventTypeDuplicate    EventType = "duplicate"
	EventTypeFiltered     EventType = "filtered"
	EventTypeError        EventType = "error"
)

// Event is one observation from a push stage. Detail usually carries the
// path of the message file involved.
type Event struct {
	Stage     Stage
	Type      EventType
	MessageID string
	Err       error
	Detail    string
}

// PushSummary totals the events of one push run.
type PushSummary struct {
	Scanned        int
	Enqueued       int
	Uploaded       int
	DryRunUploaded int
	Duplicates     int
	Filtered       int
	Errors         int
	LastError      error
}

// Add folds evt into s. Unknown event types are ignored.
func (s *PushSummary) Add(evt Event) {
	counters := map[EventType]*int{
		EventTypeScanned:      &s.Scanned,
		EventTypeEnqueued:     &s.Enqueued,
		EventTypeUploaded:     &s.Uploaded,
		EventTypeDryRunUpload: &s.DryRunUploaded,
		EventTypeDuplicate:    &s.Duplicates,
		EventTypeFiltered:     &s.Filtered,
		EventTypeError:        &s.Errors,
	}
	if n, ok := counters[evt.Type]; ok {
		*n++
	}
	if evt.Type == EventTypeError && evt.Err != nil {
		s.LastError = evt.Err
	}
}

func (s PushSummary) LogAttrs() []any {
	attrs := []any{
		"scanned", s.Scanned,
		"enqueued", s.Enqueued,
		"uploaded", s.Uploaded,
		"dryRunUploaded", s.DryRunUploaded,
		"duplicates", s.Duplicates,
		"filtered", s.Filtered,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

// EventStream hands each subscriber its own copy of the event flow.
type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

// Reporter keeps a running PushSummary and logs it when the stream closes.
type Reporter struct {
	logger  *slog.Logger
	started time.Time

	mu      sync.Mutex
	summary PushSummary
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	r := &Reporter{logger: logger, started: time.Now()}
	stream.SubscribeStats("stats-reporter", r.consume)
	return r
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			r.log(slog.LevelDebug, "stats collection stopped", "err", ctx.Err())
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				r.log(slog.LevelInfo, "stats summary")
				return nil
			}
			r.mu.Lock()
			r.summary.Add(evt)
			r.mu.Unlock()
		}
	}
}

func (r *Reporter) log(level slog.Level, msg string, extra ...any) {
	if r.logger == nil {
		return
	}
	attrs := append(r.Summary().LogAttrs(), "duration", time.Since(r.started))
	r.logger.Log(context.Background(), level, msg, append(attrs, extra...)...)
}

// Summary returns the totals seen so far.
func (r *Reporter) Summary() PushSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

// Pair is a key with its occurrence count.
type Pair struct {
	Key   string
	Count int
}

// Top returns the limit most frequent keys of m, highest count first. Ties
// are ordered by key so reports are stable. A negative limit keeps all.
func Top(m map[string]int, limit int) []Pair {
	pairs := make([]Pair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, Pair{Key: k, Count: v})
	}
	slices.SortFunc(pairs, func(a, b Pair) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	if limit >= 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs
}
