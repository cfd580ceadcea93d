package sinks

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tphakala/dbstation/internal/audiocore"
)

// ConsoleSink prints one line per reading. Write errors are ignored.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink writes to w, or to stdout when w is nil.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{w: w}
}

// Name implements audiocore.Sink.
func (s *ConsoleSink) Name() string { return NameConsole }

// Accept implements audiocore.Sink.
func (s *ConsoleSink) Accept(_ context.Context, r audiocore.Reading) error {
	rec := r.Record()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.w, "signal_strength_db=%.2f time=%.3f mic_index=%d\n",
		rec.SignalStrengthDB, rec.Time, rec.MicIndex)
	return nil
}

// Close implements audiocore.Sink.
func (s *ConsoleSink) Close() error { return nil }
