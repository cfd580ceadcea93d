package audiocore

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/dbstation/internal/errors"
)

// Source is the SignalSource shared by every capture backend. It owns the
// open/close state of the backend and turns each captured frame into a Reading.
type Source struct {
	mu      sync.Mutex
	handle  SourceHandle
	capture Capture
	opened  bool
	closed  bool
	frame   []int16
	now     func() time.Time
}

// NewSource wraps a capture backend. Zero stream parameters in handle are
// replaced by the defaults (mono, 44100 Hz, 1024 frames).
func NewSource(handle SourceHandle, capture Capture) *Source {
	return &Source{
		handle:  handle.withDefaults(),
		capture: capture,
		now:     time.Now,
	}
}

// Handle returns the stream description of this source.
func (s *Source) Handle() SourceHandle {
	return s.handle
}

// Open acquires the capture device. Opening an open source is a no-op.
func (s *Source) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(ctx)
}

func (s *Source) openLocked(ctx context.Context) error {
	if s.closed {
		return errors.New(ErrSourceClosed).
			Component(ComponentAudioCore).
			Category(errors.CategoryState).
			Context("source_id", s.handle.ID).
			Build()
	}
	if s.opened {
		return nil
	}

	if err := s.capture.Open(ctx, s.handle); err != nil {
		return errors.New(err).
			Component(ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("source_id", s.handle.ID).
			Context("source_name", s.handle.Name).
			Context("operation", "open_source").
			Build()
	}

	s.frame = make([]int16, s.handle.Samples())
	s.opened = true
	return nil
}

// Read captures one frame and converts it to a Reading.
func (s *Source) Read(ctx context.Context) (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Reading{}, errors.New(ErrSourceClosed).
			Component(ComponentAudioCore).
			Category(errors.CategorySourceRead).
			Context("source_id", s.handle.ID).
			Build()
	}

	if !s.opened {
		if err := s.openLocked(ctx); err != nil {
			return Reading{}, errors.New(err).
				Component(ComponentAudioCore).
				Category(errors.CategorySourceRead).
				Context("source_id", s.handle.ID).
				Context("operation", "lazy_open").
				Build()
		}
	}

	start := time.Now()
	if err := s.capture.Read(ctx, s.frame); err != nil {
		return Reading{}, errors.New(err).
			Component(ComponentAudioCore).
			Category(errors.CategorySourceRead).
			Context("source_id", s.handle.ID).
			Timing("read_frame", time.Since(start)).
			Build()
	}

	db, err := ToDecibels(s.frame)
	reading := Reading{
		Value:     db,
		Timestamp: s.now(),
		SourceID:  s.handle.ID,
	}
	if err != nil {
		return reading, errors.New(err).
			Component(ComponentAudioCore).
			Category(errors.CategoryTransformDomain).
			Context("source_id", s.handle.ID).
			Build()
	}

	return reading, nil
}

// Close releases the capture device. It is safe to call more than once and on
// a source that was never opened.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if !s.opened {
		return nil
	}
	s.opened = false

	if err := s.capture.Close(); err != nil {
		return errors.New(err).
			Component(ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("source_id", s.handle.ID).
			Context("operation", "close_source").
			Build()
	}
	return nil
}
