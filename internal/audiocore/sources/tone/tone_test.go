package tone

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/errors"
)

func TestSineLevel(t *testing.T) {
	t.Parallel()

	// 100 Hz at 8000 Hz gives whole periods in a 800 frame read.
	src := audiocore.NewSource(
		audiocore.SourceHandle{ID: 0, SampleRate: 8000, FrameSize: 800},
		New(Config{Frequency: 100, Amplitude: 0.5}),
	)
	defer func() { _ = src.Close() }()

	r, err := src.Read(t.Context())
	require.NoError(t, err)

	rms := 0.5 * 32767 / math.Sqrt2
	assert.InDelta(t, 20*math.Log10(rms), r.Value, 0.05)
}

func TestDCFullScale(t *testing.T) {
	t.Parallel()

	c := New(Config{Amplitude: 1})
	require.NoError(t, c.Open(t.Context(), audiocore.SourceHandle{SampleRate: 8000, Channels: 2}))

	dst := make([]int16, 6)
	require.NoError(t, c.Read(t.Context(), dst))
	for _, s := range dst {
		assert.Equal(t, int16(32767), s)
	}

	db, err := audiocore.ToDecibels(dst)
	require.NoError(t, err)
	assert.InDelta(t, 20*math.Log10(32767), db, 1e-9)
}

func TestSilenceIsDomainWarning(t *testing.T) {
	t.Parallel()

	src := audiocore.NewSource(audiocore.SourceHandle{SampleRate: 8000, FrameSize: 64}, New(Config{}))
	r, err := src.Read(t.Context())
	require.ErrorIs(t, err, audiocore.ErrTransformDomain)
	assert.InDelta(t, audiocore.SentinelDecibels, r.Value, 0)
}

func TestNoiseIsDeterministicPerSeed(t *testing.T) {
	t.Parallel()

	read := func() []int16 {
		c := New(Config{Noise: 0.1, Seed: 42})
		require.NoError(t, c.Open(t.Context(), audiocore.SourceHandle{ID: 3, SampleRate: 8000, Channels: 1}))
		dst := make([]int16, 32)
		require.NoError(t, c.Read(t.Context(), dst))
		return dst
	}
	assert.Equal(t, read(), read())
}

func TestInvalidConfig(t *testing.T) {
	t.Parallel()

	err := New(Config{Amplitude: 2}).Open(t.Context(), audiocore.SourceHandle{SampleRate: 8000})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}
