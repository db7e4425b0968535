package mbox

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"iter"
)

// RecordMarker starts every message in a line-delimited container.
const RecordMarker = "From "

var recordMarker = []byte(RecordMarker)

// Splitter cuts a line-delimited container into message records without
// holding more than one record in memory. Record bytes are returned exactly
// as read, marker line included. A Splitter only moves forward.
type Splitter struct {
	r      *bufio.Reader
	buf    []byte
	inside bool
	err    error
}

func NewSplitter(r io.Reader) *Splitter {
	return &Splitter{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next complete record, or io.EOF once the input is
// exhausted. Lines before the first marker are dropped.
func (s *Splitter) Next() ([]byte, error) {
	for {
		if s.err != nil {
			if errors.Is(s.err, io.EOF) && s.inside {
				rec := s.buf
				s.buf, s.inside = nil, false
				if len(rec) > 0 {
					return rec, nil
				}
			}
			return nil, s.err
		}

		line, err := s.r.ReadBytes('\n')
		s.err = err
		if len(line) == 0 {
			continue
		}

		if bytes.HasPrefix(line, recordMarker) {
			prev, open := s.buf, s.inside
			s.buf, s.inside = line, true
			if open {
				return prev, nil
			}
			continue
		}

		if s.inside {
			s.buf = append(s.buf, line...)
		}
	}
}

// Records iterates over the remaining records. Iteration stops after the
// first read error, which is yielded with a nil record.
func (s *Splitter) Records() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			rec, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}
