package sinks

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/errors"
)

const (
	filePermissions = 0o644
	dirPermissions  = 0o755
)

// FileSink appends one JSON object per line to a file.
type FileSink struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// NewFileSink creates a sink appending to path. The file is opened by Open
// or by the first Accept.
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, errors.Newf("file sink requires a path").
			Component(componentSinks).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &FileSink{path: path}, nil
}

// Name implements audiocore.Sink.
func (s *FileSink) Name() string { return NameFile }

// Path returns the file the sink appends to.
func (s *FileSink) Path() string { return s.path }

// Open creates the parent directory and opens the file in append mode.
// Opening an open sink is a no-op.
func (s *FileSink) Open(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked()
}

func (s *FileSink) openLocked() error {
	if s.f != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), dirPermissions); err != nil {
		return errors.FileError(err, s.path)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePermissions)
	if err != nil {
		return errors.FileError(err, s.path)
	}
	s.f = f
	return nil
}

// Accept appends the wire record of r followed by a newline in one write.
func (s *FileSink) Accept(_ context.Context, r audiocore.Reading) error {
	line, err := encodeRecord(r)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openLocked(); err != nil {
		return deliveryError(err, NameFile, r).FileContext(s.path).Build()
	}
	if _, err := s.f.Write(line); err != nil {
		return deliveryError(err, NameFile, r).FileContext(s.path).Build()
	}
	return nil
}

// Close flushes and closes the file. The sink can be reopened.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	f := s.f
	s.f = nil

	syncErr := f.Sync()
	if err := f.Close(); err != nil {
		return errors.FileError(err, s.path)
	}
	if syncErr != nil {
		return errors.FileError(syncErr, s.path)
	}
	return nil
}
