// Package tone generates a synthetic sine signal, optionally with noise, for
// running the pipeline without audio hardware.
package tone

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/errors"
)

// Config describes the generated signal.
type Config struct {
	Frequency float64 // Hz, 0 produces DC at Amplitude
	Amplitude float64 // peak, fraction of full scale in [0, 1]
	Noise     float64 // peak uniform noise, fraction of full scale in [0, 1]
	Seed      uint64
}

// Capture implements audiocore.Capture with a phase-continuous generator.
type Capture struct {
	cfg Config

	mu         sync.Mutex
	sampleRate float64
	channels   int
	phase      float64
	rng        *rand.Rand
	open       bool
}

// New creates a tone generator.
func New(cfg Config) *Capture {
	return &Capture{cfg: cfg}
}

// Open implements audiocore.Capture.
func (c *Capture) Open(_ context.Context, handle audiocore.SourceHandle) error {
	if c.cfg.Amplitude < 0 || c.cfg.Amplitude > 1 || c.cfg.Noise < 0 || c.cfg.Noise > 1 || c.cfg.Frequency < 0 {
		return errors.Newf("tone amplitude and noise must be within [0, 1] and frequency non-negative").
			Component("tone").
			Category(errors.CategoryValidation).
			Context("amplitude", c.cfg.Amplitude).
			Context("noise", c.cfg.Noise).
			Context("frequency", c.cfg.Frequency).
			Build()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sampleRate = float64(handle.SampleRate)
	c.channels = max(handle.Channels, 1)
	c.phase = 0
	c.rng = rand.New(rand.NewPCG(c.cfg.Seed, uint64(handle.ID)))
	c.open = true
	return nil
}

// Read fills dst with interleaved frames; every channel carries the same signal.
func (c *Capture) Read(_ context.Context, dst []int16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return errors.Newf("tone generator is not open").
			Component("tone").
			Category(errors.CategoryState).
			Build()
	}

	step := 2 * math.Pi * c.cfg.Frequency / c.sampleRate
	for i := 0; i < len(dst); i += c.channels {
		v := c.cfg.Amplitude
		if c.cfg.Frequency > 0 {
			v *= math.Sin(c.phase)
		}
		if c.cfg.Noise > 0 {
			v += c.cfg.Noise * (2*c.rng.Float64() - 1)
		}
		sample := int16(math.Max(-32768, math.Min(32767, math.Round(v*32767))))
		for ch := 0; ch < c.channels && i+ch < len(dst); ch++ {
			dst[i+ch] = sample
		}
		c.phase = math.Mod(c.phase+step, 2*math.Pi)
	}
	return nil
}

// Close implements audiocore.Capture.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}
