package mbox

import (
	"errors"
	"fmt"
	"io"
	"net/mail"
	"os"

	mboxlib "github.com/emersion/go-mbox"
)

// Message is a parsed mbox record: its header and the raw body bytes.
type Message struct {
	Headers mail.Header
	Body    []byte
}

// Summary tallies what a read pass saw.
type Summary struct {
	Parsed     int
	Unparsable int
}

// Read walks every message of the mbox file at path. Records that do not
// parse as RFC 5322 messages are counted in Summary.Unparsable and skipped.
// An error returned by fn stops the walk and is returned as is.
func Read(path string, fn func(*Message) error) (Summary, error) {
	file, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()
	return ReadFrom(file, fn)
}

// ReadFrom is Read over an already opened stream.
func ReadFrom(r io.Reader, fn func(*Message) error) (Summary, error) {
	var sum Summary
	err := each(r, func(rec io.Reader) error {
		msg, err := parse(rec)
		if err != nil {
			sum.Unparsable++
			return nil
		}
		sum.Parsed++
		return fn(msg)
	})
	return sum, err
}

// Count returns the number of records in the mbox file at path without
// parsing them.
func Count(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	n := 0
	err = each(file, func(rec io.Reader) error {
		n++
		_, err := io.Copy(io.Discard, rec)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func parse(rec io.Reader) (*Message, error) {
	msg, err := mail.ReadMessage(rec)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil, err
	}
	return &Message{Headers: msg.Header, Body: body}, nil
}

// each hands every record reader of r to fn until the input ends.
func each(r io.Reader, fn func(io.Reader) error) error {
	mr := mboxlib.NewReader(r)
	for {
		rec, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("next mbox record: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
