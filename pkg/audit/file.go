package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// File appends events to a JSON-lines file, one event per line.
type File struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// NewFile opens (or creates) the audit log at path in append mode.
func NewFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &File{f: f, w: bufio.NewWriter(f)}, nil
}

// Log implements Sink. Marshal errors are silently dropped; an audit
// record must never abort the run it describes.
func (s *File) Log(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(data)
	_ = s.w.WriteByte('\n')
}

// Flush implements Sink.
func (s *File) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush audit log: %w", err)
	}
	return s.f.Sync()
}

// Close flushes and closes the underlying file.
func (s *File) Close() error {
	if err := s.Flush(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}
