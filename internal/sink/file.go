package sink

import (
	"fmt"
	"os"
)

// FileSink appends flushed buffers to a local file. On Linux writes go
// straight through the file descriptor, so short writes surface as the
// partial-write case the pool already handles rather than being hidden by
// a retry loop above the descriptor.
type FileSink struct {
	f *os.File
}

// NewFileSink opens (or creates) the output file in append mode.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open sink file: %w", err)
	}
	return &FileSink{f: f}, nil
}

// Write appends p to the file.
func (s *FileSink) Write(p []byte) (int, error) {
	return writeFile(s.f, p)
}

// Sync flushes file contents to stable storage.
func (s *FileSink) Sync() error {
	return s.f.Sync()
}

// Close syncs and closes the file.
func (s *FileSink) Close() error {
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
