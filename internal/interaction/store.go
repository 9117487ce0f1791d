package interaction

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LogStore is an ordered, capacity-bounded collection of entries.
//
// Append inserts at the head and evicts from the tail once the store holds
// more than its capacity. List returns a copy ordered newest first.
// Implementations must be safe for concurrent use.
type LogStore interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context) ([]Entry, error)
	Clear(ctx context.Context) error
}

// Named is implemented by stores that report a backend name for logs and
// metrics.
type Named interface {
	Backend() string
}

// Compile-time interface checks.
var (
	_ LogStore = (*MemStore)(nil)
	_ LogStore = (*FileStore)(nil)
)

// ─────────────────────────────────────────────────────────────────────────────
// MemStore
// ─────────────────────────────────────────────────────────────────────────────

// MemStore is an in-memory ring buffer. Entries are lost on process exit.
type MemStore struct {
	mu   sync.Mutex
	buf  []Entry
	next int // slot the next Append writes to
	n    int
}

// NewMemStore returns a ring buffer holding at most capacity entries.
// A non-positive capacity selects [MaxEntries].
func NewMemStore(capacity int) *MemStore {
	if capacity <= 0 {
		capacity = MaxEntries
	}
	return &MemStore{buf: make([]Entry, capacity)}
}

// Backend implements [Named].
func (s *MemStore) Backend() string { return "memory" }

// Capacity returns the maximum number of retained entries.
func (s *MemStore) Capacity() int { return len(s.buf) }

// Append implements [LogStore].
func (s *MemStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.push(e)
	return nil
}

func (s *MemStore) push(e Entry) {
	s.buf[s.next] = e
	s.next = (s.next + 1) % len(s.buf)
	if s.n < len(s.buf) {
		s.n++
	}
}

// List implements [LogStore].
func (s *MemStore) List(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

func (s *MemStore) snapshot() []Entry {
	out := make([]Entry, 0, s.n)
	for i := 1; i <= s.n; i++ {
		idx := (s.next - i + len(s.buf)) % len(s.buf)
		out = append(out, s.buf[idx])
	}
	return out
}

// Clear implements [LogStore].
func (s *MemStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.buf)
	s.next, s.n = 0, 0
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// FileStore
// ─────────────────────────────────────────────────────────────────────────────

// FileStore persists entries as JSON lines, oldest first, and keeps the most
// recent capacity entries in memory. The file is compacted once it holds
// twice the capacity so it stays bounded without a rewrite on every append.
type FileStore struct {
	mu    sync.Mutex
	path  string
	mem   *MemStore
	lines int
}

// OpenFileStore opens (or creates) the JSONL log at path and loads the most
// recent capacity entries from it. Lines that fail to decode are skipped.
func OpenFileStore(path string, capacity int) (*FileStore, error) {
	fs := &FileStore{path: path, mem: NewMemStore(capacity)}

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fs, nil
	case err != nil:
		return nil, fmt.Errorf("interaction: open log file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		fs.mem.push(e)
		fs.lines++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("interaction: read log file: %w", err)
	}
	return fs, nil
}

// Backend implements [Named].
func (s *FileStore) Backend() string { return "file" }

// Append implements [LogStore]. The entry is kept in memory even when the
// file write fails.
func (s *FileStore) Append(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mem.push(e)

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("interaction: marshal entry: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("interaction: open log file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("interaction: write log file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("interaction: close log file: %w", err)
	}
	s.lines++

	if s.lines >= 2*s.mem.Capacity() {
		return s.compact()
	}
	return nil
}

// compact rewrites the file with only the retained entries. The caller must
// hold s.mu.
func (s *FileStore) compact() error {
	entries := s.mem.snapshot()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("interaction: compact: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for i := len(entries) - 1; i >= 0; i-- {
		if err := enc.Encode(entries[i]); err != nil {
			tmp.Close()
			return fmt.Errorf("interaction: compact: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("interaction: compact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("interaction: compact: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("interaction: compact: %w", err)
	}
	s.lines = len(entries)
	return nil
}

// List implements [LogStore].
func (s *FileStore) List(ctx context.Context) ([]Entry, error) {
	return s.mem.List(ctx)
}

// Clear implements [LogStore]. The log file is truncated.
func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.mem.Clear(ctx)
	s.lines = 0
	if err := os.Truncate(s.path, 0); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("interaction: truncate log file: %w", err)
	}
	return nil
}
