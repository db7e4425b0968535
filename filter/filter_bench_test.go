package filter

import (
	"bytes"
	"testing"
)

var benchRecord = []byte("From sender@example.com Mon Jan  1 00:00:00 2024\n" +
	"From: sender@example.com\nTo: user@example.com\nSubject: Weekly report\n\n" +
	string(bytes.Repeat([]byte("This is a test message body with some content.\n"), 40)))

// BenchmarkFilter_AllowsRaw_NoFilters measures the split cost alone.
func BenchmarkFilter_AllowsRaw_NoFilters(b *testing.B) {
	f, err := New(Options{})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.AllowsRaw(benchRecord)
	}
}

// BenchmarkFilter_AllowsRaw_Header benchmarks a header allow-list on full records.
func BenchmarkFilter_AllowsRaw_Header(b *testing.B) {
	f, err := New(Options{IncludeHeader: []string{`From:.*@example\.com`}})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.AllowsRaw(benchRecord)
	}
}

// BenchmarkFilter_AllowsRaw_Body benchmarks body block-lists, which scan the whole body.
func BenchmarkFilter_AllowsRaw_Body(b *testing.B) {
	f, err := New(Options{ExcludeBody: []string{"unsubscribe", `(?i)viagra`, `lottery\s+winner`}})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.AllowsRaw(benchRecord)
	}
}
