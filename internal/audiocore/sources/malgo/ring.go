package malgo

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/errors"
)

// frameRing carries S16LE bytes from the device callback to Read. The callback
// never blocks: bytes that do not fit are counted as an overrun and reported by
// the next read. Each read returns the newest frame and discards older audio,
// so a reading always describes the last frame before it was taken.
type frameRing struct {
	rb         *ringbuffer.RingBuffer
	ready      chan struct{}
	overrun    atomic.Uint64
	buf        []byte
	frameBytes int // bytes per sample frame across all channels
	sourceID   int
}

func newFrameRing(capacity, frameBytes, sourceID int) *frameRing {
	if frameBytes < 2 {
		frameBytes = 2
	}
	return &frameRing{
		rb:         ringbuffer.New(capacity),
		ready:      make(chan struct{}, 1),
		frameBytes: frameBytes,
		sourceID:   sourceID,
	}
}

// write is called from the device callback.
func (r *frameRing) write(data []byte) {
	n, _ := r.rb.Write(data)
	if n < len(data) {
		r.overrun.Add(uint64(len(data) - n))
	}
	select {
	case r.ready <- struct{}{}:
	default:
	}
}

// read fills dst with the newest frame, waiting at most timeout for the device
// to deliver enough audio. Older buffered audio is skipped.
func (r *frameRing) read(ctx context.Context, dst []int16, timeout time.Duration) error {
	if lost := r.overrun.Swap(0); lost > 0 {
		// The buffered audio is no longer contiguous, start over from fresh data.
		r.rb.Reset()
		return errors.Newf("capture ring overrun, %d bytes lost", lost).
			Component(componentMalgo).
			Category(errors.CategorySourceRead).
			Context("source_id", r.sourceID).
			Context("ring_capacity", r.rb.Capacity()).
			Build()
	}

	need := len(dst) * 2
	if cap(r.buf) < need {
		r.buf = make([]byte, need)
	}
	buf := r.buf[:need]

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for r.rb.Length() < need {
		select {
		case <-r.ready:
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return errors.Newf("no audio from device within %v", timeout).
				Component(componentMalgo).
				Category(errors.CategorySourceRead).
				Context("source_id", r.sourceID).
				Context("buffered_bytes", r.rb.Length()).
				Build()
		}
	}

	if err := r.skipStale(need); err != nil {
		return err
	}
	if _, err := r.rb.Read(buf); err != nil {
		return errors.New(err).
			Component(componentMalgo).
			Category(errors.CategorySourceRead).
			Context("source_id", r.sourceID).
			Build()
	}
	copy(dst, audiocore.BytesToSamples(buf))
	return nil
}

// skipStale discards whole sample frames so that need bytes remain buffered.
func (r *frameRing) skipStale(need int) error {
	excess := r.rb.Length() - need
	excess -= excess % r.frameBytes
	for excess > 0 {
		chunk := r.buf[:min(excess, len(r.buf))]
		n, err := r.rb.Read(chunk)
		if err != nil {
			return errors.New(err).
				Component(componentMalgo).
				Category(errors.CategorySourceRead).
				Context("source_id", r.sourceID).
				Context("operation", "skip_stale_audio").
				Build()
		}
		excess -= n
	}
	return nil
}

func (r *frameRing) reset() {
	r.rb.Reset()
	r.overrun.Store(0)
}
