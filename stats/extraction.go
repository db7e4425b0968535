package stats

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Stats holds the counters of one extraction call. Writers are sequential;
// readers such as the heartbeat may run on another goroutine, so every
// counter is atomic.
type Stats struct {
	started      atomic.Int64
	folders      atomic.Int64
	emails       atomic.Int64
	attachments  atomic.Int64
	contacts     atomic.Int64
	appointments atomic.Int64
	tasks        atomic.Int64
	filtered     atomic.Int64
	failed       atomic.Int64
}

func New() *Stats {
	s := &Stats{}
	s.Reset()
	return s
}

// Reset zeroes all counters and restarts the clock.
func (s *Stats) Reset() {
	s.folders.Store(0)
	s.emails.Store(0)
	s.attachments.Store(0)
	s.contacts.Store(0)
	s.appointments.Store(0)
	s.tasks.Store(0)
	s.filtered.Store(0)
	s.failed.Store(0)
	s.started.Store(time.Now().UnixNano())
}

func (s *Stats) AddFolder()      { s.folders.Add(1) }
func (s *Stats) AddEmail()       { s.emails.Add(1) }
func (s *Stats) AddAttachment()  { s.attachments.Add(1) }
func (s *Stats) AddContact()     { s.contacts.Add(1) }
func (s *Stats) AddAppointment() { s.appointments.Add(1) }
func (s *Stats) AddTask()        { s.tasks.Add(1) }
func (s *Stats) AddFiltered()    { s.filtered.Add(1) }

// AddFailure counts an artifact that could not be written.
func (s *Stats) AddFailure() { s.failed.Add(1) }

// AddSummary adds the counters of o to s. The clock is left alone.
func (s *Stats) AddSummary(o Summary) {
	s.folders.Add(o.FoldersVisited)
	s.emails.Add(o.EmailsExtracted)
	s.attachments.Add(o.AttachmentsExtracted)
	s.contacts.Add(o.ContactsExtracted)
	s.appointments.Add(o.AppointmentsExtracted)
	s.tasks.Add(o.TasksExtracted)
	s.filtered.Add(o.Filtered)
	s.failed.Add(o.Failed)
}

// Snapshot copies the current counters.
func (s *Stats) Snapshot() Summary {
	started := time.Unix(0, s.started.Load())
	return Summary{
		Started:               started,
		Duration:              time.Since(started),
		FoldersVisited:        s.folders.Load(),
		EmailsExtracted:       s.emails.Load(),
		AttachmentsExtracted:  s.attachments.Load(),
		ContactsExtracted:     s.contacts.Load(),
		AppointmentsExtracted: s.appointments.Load(),
		TasksExtracted:        s.tasks.Load(),
		Filtered:              s.filtered.Load(),
		Failed:                s.failed.Load(),
	}
}

// Summary is a point-in-time copy of Stats.
type Summary struct {
	Started               time.Time
	Duration              time.Duration
	FoldersVisited        int64
	EmailsExtracted       int64
	AttachmentsExtracted  int64
	ContactsExtracted     int64
	AppointmentsExtracted int64
	TasksExtracted        int64
	Filtered              int64
	Failed                int64
}

// Items is the number of written artifacts of any kind.
func (s Summary) Items() int64 {
	return s.EmailsExtracted + s.AttachmentsExtracted + s.ContactsExtracted + s.AppointmentsExtracted + s.TasksExtracted
}

// Add merges o into s. The earlier start time is kept and durations add up.
func (s Summary) Add(o Summary) Summary {
	if s.Started.IsZero() || (!o.Started.IsZero() && o.Started.Before(s.Started)) {
		s.Started = o.Started
	}
	s.Duration += o.Duration
	s.FoldersVisited += o.FoldersVisited
	s.EmailsExtracted += o.EmailsExtracted
	s.AttachmentsExtracted += o.AttachmentsExtracted
	s.ContactsExtracted += o.ContactsExtracted
	s.AppointmentsExtracted += o.AppointmentsExtracted
	s.TasksExtracted += o.TasksExtracted
	s.Filtered += o.Filtered
	s.Failed += o.Failed
	return s
}

func (s Summary) LogAttrs() []any {
	return []any{
		"folders", s.FoldersVisited,
		"emails", s.EmailsExtracted,
		"attachments", s.AttachmentsExtracted,
		"contacts", s.ContactsExtracted,
		"appointments", s.AppointmentsExtracted,
		"tasks", s.TasksExtracted,
		"filtered", s.Filtered,
		"failed", s.Failed,
		"duration", s.Duration.Round(time.Millisecond),
	}
}

// Watch calls fn with a snapshot of s every interval until ctx is done or
// the returned stop func is called. Stop blocks until the ticker goroutine
// has exited and then delivers one final snapshot.
func Watch(ctx context.Context, s *Stats, interval time.Duration, fn func(Summary)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(s.Snapshot())
			}
		}
	}()

	return func() {
		cancel()
		<-done
		fn(s.Snapshot())
	}
}

// StartHeartbeat logs the counters of s at every interval.
func StartHeartbeat(ctx context.Context, s *Stats, logger *slog.Logger, interval time.Duration) (stop func()) {
	if logger == nil {
		logger = slog.Default()
	}
	return Watch(ctx, s, interval, func(sum Summary) {
		logger.Info("extraction progress", sum.LogAttrs()...)
	})
}
