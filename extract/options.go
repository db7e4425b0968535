package extract

import (
	"fmt"
	"strings"
)

// Format selects how messages are written.
type Format int

const (
	// FormatEML writes structured RFC 5322 message files.
	FormatEML Format = iota
	// FormatText writes plain text with a normalized header block.
	FormatText
)

func (f Format) String() string {
	if f == FormatText {
		return "txt"
	}
	return "eml"
}

// Ext returns the file extension for messages in this format.
func (f Format) Ext() string {
	return "." + f.String()
}

// ParseFormat accepts "eml" or "txt" ("text" is an alias).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eml", "":
		return FormatEML, nil
	case "txt", "text":
		return FormatText, nil
	default:
		return FormatEML, fmt.Errorf("unknown message format %q", s)
	}
}

// Unbounded disables the folder depth limit.
const Unbounded = -1

// Options is the configuration of one extraction call.
type Options struct {
	Format    Format
	MaxDepth  int
	SkipEmpty bool
	Verbose   bool
	// PrefixContainer prefixes file names with the container base name so
	// several containers can share one output tree.
	PrefixContainer bool
}

func DefaultOptions() Options {
	return Options{
		Format:    FormatEML,
		MaxDepth:  Unbounded,
		SkipEmpty: true,
	}
}

// Overrides replaces individual Options fields for a single call. Nil
// fields keep the extractor default.
type Overrides struct {
	Format          *Format
	MaxDepth        *int
	SkipEmpty       *bool
	Verbose         *bool
	PrefixContainer *bool
}

// Merge returns o with every non-nil override applied.
func (o Options) Merge(ov Overrides) Options {
	if ov.Format != nil {
		o.Format = *ov.Format
	}
	if ov.MaxDepth != nil {
		o.MaxDepth = *ov.MaxDepth
	}
	if ov.SkipEmpty != nil {
		o.SkipEmpty = *ov.SkipEmpty
	}
	if ov.Verbose != nil {
		o.Verbose = *ov.Verbose
	}
	if ov.PrefixContainer != nil {
		o.PrefixContainer = *ov.PrefixContainer
	}
	if o.MaxDepth < 0 {
		o.MaxDepth = Unbounded
	}
	return o
}

func (o Options) depthExceeded(depth int) bool {
	return o.MaxDepth != Unbounded && depth > o.MaxDepth
}
