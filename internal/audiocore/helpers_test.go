package audiocore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/dbstation/internal/errors"
)

// scriptedCapture fills frames with a constant amplitude and can be told to
// fail opens or individual reads.
type scriptedCapture struct {
	amplitude int16
	openErr   error
	failReads map[int]bool // read index -> fail

	mu     sync.Mutex
	opens  int
	closes int
	reads  int
}

func (c *scriptedCapture) Open(context.Context, SourceHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens++
	return c.openErr
}

func (c *scriptedCapture) Read(ctx context.Context, dst []int16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.reads
	c.reads++
	if c.failReads[idx] {
		return errors.NewStd("input overflowed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for i := range dst {
		dst[i] = c.amplitude
	}
	return nil
}

func (c *scriptedCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *scriptedCapture) counts() (opens, reads, closes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens, c.reads, c.closes
}

// recordingHub is a Broadcaster that keeps every published reading.
type recordingHub struct {
	mu        sync.Mutex
	readings  []Reading
	starts    atomic.Int32
	shutdowns atomic.Int32
	startErr  error
}

func (h *recordingHub) Start(context.Context) error {
	h.starts.Add(1)
	return h.startErr
}

func (h *recordingHub) Publish(_ context.Context, r Reading) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readings = append(h.readings, r)
	return nil
}

func (h *recordingHub) Shutdown(context.Context) error {
	h.shutdowns.Add(1)
	return nil
}

func (h *recordingHub) published() []Reading {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Reading, len(h.readings))
	copy(out, h.readings)
	return out
}

// slowCapture blocks every read for delay regardless of the context, like a
// device waiting for its next buffer, and remembers when each read began.
type slowCapture struct {
	delay time.Duration

	mu     sync.Mutex
	starts []time.Time
}

func (c *slowCapture) Open(context.Context, SourceHandle) error { return nil }

func (c *slowCapture) Read(_ context.Context, dst []int16) error {
	c.mu.Lock()
	c.starts = append(c.starts, time.Now())
	c.mu.Unlock()

	time.Sleep(c.delay)
	for i := range dst {
		dst[i] = 1000
	}
	return nil
}

func (c *slowCapture) Close() error { return nil }

func (c *slowCapture) readStarts() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Time(nil), c.starts...)
}

// tickRecorder counts completed and overrun ticks.
type tickRecorder struct {
	ticks    atomic.Int32
	overruns atomic.Int32
}

func (r *tickRecorder) RecordTick(_ time.Duration, overrun bool) {
	r.ticks.Add(1)
	if overrun {
		r.overruns.Add(1)
	}
}

func (r *tickRecorder) RecordReadError(int)        {}
func (r *tickRecorder) RecordTransformWarning(int) {}
func (r *tickRecorder) RecordState(State)          {}
