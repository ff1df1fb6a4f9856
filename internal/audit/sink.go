package audit

import (
	"fmt"
	"os"
	"sync"
)

// Sink receives formatted audit lines. Rotation and other file
// management are left to the deployment.
type Sink interface {
	WriteLine(line string) error
}

// FileSink appends lines to a single file.
type FileSink struct {
	mu sync.Mutex
	f  *os.File
}

// NewFileSink opens (or creates) the access log in append mode.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open access log: %w", err)
	}
	return &FileSink{f: f}, nil
}

func (s *FileSink) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.f, line)
	return err
}

// Close releases the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
