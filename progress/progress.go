// Package progress renders terminal feedback while containers are extracted
// and messages are pushed. Output is only drawn at the info log level; at
// any other level the caller gets a heartbeat in the log instead.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pterm/pterm"

	"github.com/dhcgn/archive-extract/stats"
)

const (
	refreshInterval   = 250 * time.Millisecond
	HeartbeatInterval = 10 * time.Second
)

// Enabled reports whether interactive output is drawn for logLevel.
func Enabled(logLevel string) bool {
	return logLevel == "info"
}

// Extraction follows one Extract call.
type Extraction struct {
	bar     *pterm.ProgressbarPrinter
	spinner *pterm.SpinnerPrinter
	stop    func()
	done    int
}

// StartExtraction draws a bar when total is known and a spinner otherwise.
// The caller must call Stop once the extraction returns.
func StartExtraction(ctx context.Context, st *stats.Stats, title string, total int, logLevel string, logger *slog.Logger) *Extraction {
	p := &Extraction{}

	if !Enabled(logLevel) {
		p.stop = stats.StartHeartbeat(ctx, st, logger, HeartbeatInterval)
		return p
	}

	if total > 0 {
		bar, err := pterm.DefaultProgressbar.WithTotal(total).WithTitle(title).Start()
		if err == nil {
			p.bar = bar
		}
	} else {
		spinner, err := pterm.DefaultSpinner.Start(title)
		if err == nil {
			p.spinner = spinner
		}
	}
	p.stop = stats.Watch(ctx, st, refreshInterval, p.update)
	return p
}

func (p *Extraction) update(sum stats.Summary) {
	switch {
	case p.bar != nil:
		// A record is done once it is written, filtered or failed.
		done := int(sum.EmailsExtracted + sum.Filtered + sum.Failed)
		if done > p.done {
			p.bar.Add(done - p.done)
			p.done = done
		}
	case p.spinner != nil:
		p.spinner.UpdateText(fmt.Sprintf("%d items in %d folders", sum.Items(), sum.FoldersVisited))
	}
}

// Stop delivers the final counters and clears the terminal output.
func (p *Extraction) Stop(err error) {
	p.stop()
	switch {
	case p.bar != nil:
		_, _ = p.bar.Stop()
	case p.spinner != nil:
		if err != nil {
			p.spinner.Fail(err.Error())
		} else {
			p.spinner.Success("done")
		}
	}
}

// Push follows the push pipeline through its event stream.
type Push struct {
	bar   *pterm.ProgressbarPrinter
	total int
}

// StartPush subscribes a progress bar to stream. alreadyDone is the number of
// messages the state journal knows about.
func StartPush(stream stats.EventStream, total, alreadyDone int, logLevel string) *Push {
	p := &Push{total: total}
	if !Enabled(logLevel) || total == 0 {
		return p
	}

	pterm.Info.Printf("Message files found: %d\n", total)
	pterm.Info.Printf("Already uploaded: %d\n", alreadyDone)
	pterm.Println()

	bar, err := pterm.DefaultProgressbar.WithTotal(total).WithTitle("Pushing messages").Start()
	if err != nil {
		return p
	}
	p.bar = bar
	stream.SubscribeStats("progress-bar", p.consume)
	return p
}

func (p *Push) consume(ctx context.Context, events <-chan stats.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			p.apply(evt)
		}
	}
}

func (p *Push) apply(evt stats.Event) {
	switch evt.Type {
	case stats.EventTypeScanned, stats.EventTypeFiltered:
		p.bar.Increment()
		if evt.MessageID != "" {
			p.bar.UpdateTitle("Pushing: " + shorten(evt.MessageID, 40))
		}
	case stats.EventTypeError:
		if evt.Err != nil {
			pterm.Error.Printf("%v\n", evt.Err)
		}
	}
}

// Stop fills the bar and prints the summary.
func (p *Push) Stop(sum stats.PushSummary, duration time.Duration) {
	if p.bar == nil {
		return
	}
	if p.bar.Current < p.total {
		p.bar.Add(p.total - p.bar.Current)
	}
	_, _ = p.bar.Stop()

	pterm.Println()
	pterm.DefaultSection.Println("Push summary")
	pterm.Info.Printf("Duration: %v\n", duration.Round(time.Millisecond))
	pterm.Info.Printf("Scanned: %d\n", sum.Scanned)
	pterm.Info.Printf("Filtered: %d\n", sum.Filtered)
	pterm.Info.Printf("Uploaded: %d\n", sum.Uploaded)
	pterm.Info.Printf("Dry-run uploaded: %d\n", sum.DryRunUploaded)
	pterm.Info.Printf("Duplicates (skipped): %d\n", sum.Duplicates)
	pterm.Info.Printf("Errors: %d\n", sum.Errors)
	if sum.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", sum.LastError)
	}
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
