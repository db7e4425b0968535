// Package state remembers which extracted messages were already pushed to an
// IMAP mailbox, keyed by the hash of their raw bytes.
package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileName is the journal file inside the state directory.
const FileName = "uploads.jsonl"

type Tracker interface {
	Seen(hash string) bool
	Mark(rec Record) error
	Snapshot() Snapshot
	Close() error
}

// Record is one journal line.
type Record struct {
	Hash       string    `json:"hash"`
	MessageID  string    `json:"message_id"`
	Path       string    `json:"path,omitempty"`
	Mailbox    string    `json:"mailbox,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type Snapshot struct {
	Uploaded int
}

// MemoryTracker keeps records for the lifetime of the process only.
type MemoryTracker struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{records: make(map[string]Record)}
}

func (m *MemoryTracker) Seen(hash string) bool {
	if hash == "" {
		return false
	}
	m.mu.RLock()
	_, ok := m.records[hash]
	m.mu.RUnlock()
	return ok
}

func (m *MemoryTracker) Mark(rec Record) error {
	m.add(rec)
	return nil
}

// add stores rec and reports whether the hash was new.
func (m *MemoryTracker) add(rec Record) bool {
	if rec.Hash == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.Hash]; ok {
		return false
	}
	m.records[rec.Hash] = rec
	return true
}

func (m *MemoryTracker) Snapshot() Snapshot {
	m.mu.RLock()
	n := len(m.records)
	m.mu.RUnlock()
	return Snapshot{Uploaded: n}
}

func (m *MemoryTracker) Close() error { return nil }

// FileTracker appends every new record to a JSONL journal and replays it on
// start. With persist off it reads the journal but never writes, which is
// what a dry run wants.
type FileTracker struct {
	*MemoryTracker
	path    string
	persist bool

	writeMu sync.Mutex
	file    *os.File
	writer  *bufio.Writer
}

func NewFileTracker(stateDir string, persist bool) (*FileTracker, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	t := &FileTracker{
		MemoryTracker: NewMemoryTracker(),
		path:          filepath.Join(stateDir, FileName),
		persist:       persist,
	}
	if err := t.replay(); err != nil {
		return nil, err
	}

	if persist {
		file, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open state file for append: %w", err)
		}
		t.file = file
		t.writer = bufio.NewWriterSize(file, 64*1024)
	}
	return t, nil
}

// Path is the journal location.
func (t *FileTracker) Path() string { return t.path }

func (t *FileTracker) replay() error {
	file, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(text, &rec); err != nil {
			return fmt.Errorf("parse state line %d: %w", line, err)
		}
		t.add(rec)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	return nil
}

func (t *FileTracker) Mark(rec Record) error {
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now().UTC()
	}
	if !t.add(rec) || !t.persist {
		return nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode state record: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write state record: %w", err)
	}
	return nil
}

// Flush pushes buffered records to disk.
func (t *FileTracker) Flush() error {
	if !t.persist {
		return nil
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.flushLocked()
}

func (t *FileTracker) flushLocked() error {
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("flush state file: %w", err)
	}
	if err := t.file.Sync(); err != nil {
		return fmt.Errorf("sync state file: %w", err)
	}
	return nil
}

func (t *FileTracker) Close() error {
	if !t.persist || t.file == nil {
		return nil
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	err := t.flushLocked()
	if cerr := t.file.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close state file: %w", cerr)
	}
	t.file = nil
	return err
}
