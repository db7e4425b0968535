package filter

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"strings"
	"sync"
)

// ErrMixedModes is returned when include and exclude patterns are combined.
var ErrMixedModes = errors.New("include and exclude filters are mutually exclusive")

// Options captures the filtering configuration.
type Options struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

// Active reports whether any pattern is configured.
func (o Options) Active() bool {
	return len(o.IncludeHeader)+len(o.IncludeBody)+len(o.ExcludeHeader)+len(o.ExcludeBody) > 0
}

type pattern struct {
	source string
	re     *regexp.Regexp
}

// rules is one side of the filter: patterns applied to the header and body.
type rules struct {
	header []pattern
	body   []pattern
}

func (r rules) empty() bool { return len(r.header) == 0 && len(r.body) == 0 }

// Filter decides whether a record is kept, based on regex patterns matched
// against its header block and body. It is safe for concurrent use.
type Filter struct {
	include rules
	exclude rules

	mu   sync.Mutex
	hits map[string]int
}

// Stats reports the configured patterns and how often each one matched.
type Stats struct {
	IncludeHeaderPatterns []string
	IncludeBodyPatterns   []string
	ExcludeHeaderPatterns []string
	ExcludeBodyPatterns   []string
	Hits                  map[string]int
}

// New compiles opts. Blank patterns are ignored.
func New(opts Options) (*Filter, error) {
	f := &Filter{hits: make(map[string]int)}
	groups := []struct {
		flag string
		in   []string
		out  *[]pattern
	}{
		{"include-header", opts.IncludeHeader, &f.include.header},
		{"include-body", opts.IncludeBody, &f.include.body},
		{"exclude-header", opts.ExcludeHeader, &f.exclude.header},
		{"exclude-body", opts.ExcludeBody, &f.exclude.body},
	}
	for _, g := range groups {
		compiled, err := compile(g.in)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g.flag, err)
		}
		*g.out = compiled
	}

	if !f.include.empty() && !f.exclude.empty() {
		return nil, ErrMixedModes
	}
	return f, nil
}

// Allows reports whether a record with the given header and body passes.
// A nil Filter allows everything.
func (f *Filter) Allows(header, body []byte) bool {
	if f == nil {
		return true
	}
	switch {
	case !f.include.empty():
		return f.matches(f.include, header, body)
	case !f.exclude.empty():
		return !f.matches(f.exclude, header, body)
	default:
		return true
	}
}

// AllowsRaw splits a raw message and applies Allows.
func (f *Filter) AllowsRaw(raw []byte) bool {
	if f == nil {
		return true
	}
	header, body := SplitRawMessage(raw)
	return f.Allows(header, body)
}

// Stats returns a snapshot of the patterns and their hit counters.
func (f *Filter) Stats() Stats {
	f.mu.Lock()
	hits := maps.Clone(f.hits)
	f.mu.Unlock()

	return Stats{
		IncludeHeaderPatterns: sources(f.include.header),
		IncludeBodyPatterns:   sources(f.include.body),
		ExcludeHeaderPatterns: sources(f.exclude.header),
		ExcludeBodyPatterns:   sources(f.exclude.body),
		Hits:                  hits,
	}
}

// SplitRawMessage cuts a raw message at the first blank line, whether it is
// written with CRLF or bare LF.
func SplitRawMessage(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}
	cut, width := -1, 0
	for _, sep := range [][]byte{[]byte("\r\n\r\n"), []byte("\n\n")} {
		if i := bytes.Index(raw, sep); i >= 0 && (cut < 0 || i < cut) {
			cut, width = i, len(sep)
		}
	}
	if cut < 0 {
		return raw, nil
	}
	return raw[:cut], raw[cut+width:]
}

// matches runs every pattern of r, so hit counts include all matches and
// not only the first one.
func (f *Filter) matches(r rules, header, body []byte) bool {
	h := f.count(r.header, header)
	b := f.count(r.body, body)
	return h || b
}

func (f *Filter) count(patterns []pattern, text []byte) bool {
	matched := false
	for _, p := range patterns {
		if !p.re.Match(text) {
			continue
		}
		matched = true
		f.mu.Lock()
		f.hits[p.source]++
		f.mu.Unlock()
	}
	return matched
}

func compile(patterns []string) ([]pattern, error) {
	var out []pattern
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", p, err)
		}
		out = append(out, pattern{source: p, re: re})
	}
	return out, nil
}

func sources(patterns []pattern) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, p.source)
	}
	return out
}
