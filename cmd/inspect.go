package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dhcgn/archive-extract/config"
	"github.com/dhcgn/archive-extract/container"
	"github.com/dhcgn/archive-extract/extract"
	"github.com/dhcgn/archive-extract/filter"
	"github.com/dhcgn/archive-extract/mbox"
	"github.com/dhcgn/archive-extract/stats"
)

var trackedHeaders = []string{"Delivered-To", "Subject", "From", "To"}

// csvLimit caps the rows of each CSV report.
const csvLimit = 1000

func newInspectCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "inspect <path>",
		Short: "Classify a container and show what extraction would do",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadInspectConfig(cmd, args)
			if err != nil {
				return err
			}

			logger, cleanup, err := startLogging(cfg.Global, "inspect")
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			return runInspect(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}
	config.RegisterInspectFlags(c)
	return c
}

func runInspect(ctx context.Context, cfg config.InspectConfig, logger *slog.Logger, out io.Writer) error {
	ref, err := container.Detect(cfg.Path)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Container: %s\n", ref.Path)
	fmt.Fprintf(out, "Kind:      %s\n", ref.Kind)
	fmt.Fprintf(out, "Size:      %s\n", humanize.IBytes(uint64(ref.Size)))

	switch ref.Kind {
	case container.KindPST:
		converter := extract.NewReadpst(cfg.Readpst, logger)
		converter.ProbeTimeout = cfg.ProbeTimeout
		ex := extract.New(extract.DefaultOptions(), logger, extract.WithConverter(converter))

		strategy := ex.Plan(ctx, ref)
		fmt.Fprintf(out, "Strategy:  %s\n", strategy)
		if strategy == extract.StrategyExternal {
			fmt.Fprintf(out, "Command:   %s %s\n", converter.Binary, strings.Join(converter.Args(ref.Path, "<staging>"), " "))
		} else {
			fmt.Fprintf(out, "Note:      %s is not available and no in-process parser is built in\n", converter.Binary)
		}
		return nil
	case container.KindMbox:
		return inspectMbox(cfg, out)
	default:
		fmt.Fprintf(out, "Strategy:  none (no extraction pipeline for %s containers)\n", ref.Kind)
		return nil
	}
}

func inspectMbox(cfg config.InspectConfig, out io.Writer) error {
	f, err := filter.New(cfg.Filters.Options())
	if err != nil {
		return fmt.Errorf("create filter: %w", err)
	}

	counter := make(map[string]map[string]int, len(trackedHeaders))
	for _, h := range trackedHeaders {
		counter[h] = make(map[string]int)
	}

	messages, skipped := 0, 0
	sum, err := mbox.Read(cfg.Path, func(m *mbox.Message) error {
		if !f.Allows(formatHeaders(m.Headers), m.Body) {
			skipped++
			return nil
		}
		messages++
		for _, name := range trackedHeaders {
			if value := m.Headers.Get(name); value != "" {
				counter[name][value]++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("read mbox: %w", err)
	}

	fmt.Fprintf(out, "Messages:  %d (skipped %d by filters, %.2f%%)\n", messages, skipped, percent(skipped, messages+skipped))
	if sum.Unparsable > 0 {
		fmt.Fprintf(out, "Unparsable: %d\n", sum.Unparsable)
	}
	fmt.Fprintln(out)
	if cfg.Filters.Options().Active() {
		printFilterStats(out, f.Stats())
	}
	for _, name := range trackedHeaders {
		fmt.Fprintf(out, "Top %d %s:\n", cfg.Top, name)
		for i, p := range stats.Top(counter[name], cfg.Top) {
			fmt.Fprintf(out, "%d. %s (%d)\n", i+1, p.Key, p.Count)
		}
		fmt.Fprintln(out)
	}

	if cfg.ReportDir == "" {
		return nil
	}
	if err := saveCSVReports(counter, cfg.ReportDir, csvLimit); err != nil {
		return fmt.Errorf("save CSV reports: %w", err)
	}
	fmt.Fprintf(out, "Reports saved to directory: %s\n", cfg.ReportDir)
	return nil
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func saveCSVReports(counter map[string]map[string]int, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, header := range trackedHeaders {
		path := filepath.Join(dir, fmt.Sprintf("report_%s.csv", normalizeHeaderName(header)))
		if err := writeCSVReport(path, stats.Top(counter[header], limit)); err != nil {
			return err
		}
	}
	return nil
}

func writeCSVReport(path string, pairs []stats.Pair) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"Value", "Count"}); err != nil {
		return err
	}
	for _, p := range pairs {
		if err := w.Write([]string{p.Key, strconv.Itoa(p.Count)}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return file.Close()
}

func normalizeHeaderName(header string) string {
	name := strings.ToLower(header)
	name = strings.ReplaceAll(name, "-", "_")
	return strings.ReplaceAll(name, " ", "_")
}

// formatHeaders renders parsed headers back into header bytes for the
// filter. Keys are sorted so matches do not depend on map order.
func formatHeaders(headers map[string][]string) []byte {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, key := range keys {
		for _, value := range headers[key] {
			buf.WriteString(key)
			buf.WriteString(": ")
			buf.WriteString(value)
			buf.WriteString("\n")
		}
	}
	return buf.Bytes()
}

func printFilterStats(w io.Writer, s filter.Stats) {
	groups := []struct {
		title    string
		patterns []string
	}{
		{"Include Header Filters", s.IncludeHeaderPatterns},
		{"Include Body Filters", s.IncludeBodyPatterns},
		{"Exclude Header Filters", s.ExcludeHeaderPatterns},
		{"Exclude Body Filters", s.ExcludeBodyPatterns},
	}
	printed := false
	for _, g := range groups {
		if len(g.patterns) == 0 {
			continue
		}
		printed = true
		fmt.Fprintf(w, "%s:\n", g.title)
		printFilterHits(w, g.patterns, s.Hits)
		fmt.Fprintln(w)
	}
	if printed {
		fmt.Fprintln(w, "---")
		fmt.Fprintln(w)
	}
}

func printFilterHits(w io.Writer, patterns []string, hits map[string]int) {
	counts := make(map[string]int, len(patterns))
	for _, p := range patterns {
		counts[p] = hits[p]
	}
	for _, p := range stats.Top(counts, -1) {
		if p.Count > 0 {
			fmt.Fprintf(w, "  ✓ %s: %d hits\n", p.Key, p.Count)
		} else {
			fmt.Fprintf(w, "  ✗ %s: 0 hits\n", p.Key)
		}
	}
}
