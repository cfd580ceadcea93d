// Package file replays WAV and MP3 recordings as a capture device.
package file

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/errors"
)

const componentFile = "file_source"

// Config describes the recording to replay.
type Config struct {
	Path string
	// Loop restarts the recording at its end instead of failing reads.
	Loop bool
}

// Capture implements audiocore.Capture by handing out consecutive frames of
// a decoded recording. The recording is mixed down to mono and decoded once
// on Open.
type Capture struct {
	cfg Config

	mu      sync.Mutex
	samples []int16
	pos     int
	open    bool
}

// New creates a file capture backend.
func New(cfg Config) *Capture {
	return &Capture{cfg: cfg}
}

// Open decodes the recording.
func (c *Capture) Open(context.Context, audiocore.SourceHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open {
		return nil
	}

	samples, err := Decode(c.cfg.Path)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return errors.Newf("recording has no samples").
			Component(componentFile).
			Category(errors.CategoryAudioSource).
			FileContext(c.cfg.Path).
			Build()
	}

	c.samples = samples
	c.pos = 0
	c.open = true
	return nil
}

// Read copies the next len(dst) samples. Past the end of a non-looping
// recording it returns an error wrapping io.EOF.
func (c *Capture) Read(_ context.Context, dst []int16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return errors.Newf("recording is not open").
			Component(componentFile).
			Category(errors.CategoryState).
			Build()
	}

	for n := 0; n < len(dst); {
		if c.pos >= len(c.samples) {
			if !c.cfg.Loop {
				return errors.New(io.EOF).
					Component(componentFile).
					Category(errors.CategorySourceRead).
					FileContext(c.cfg.Path).
					Build()
			}
			c.pos = 0
		}
		copied := copy(dst[n:], c.samples[c.pos:])
		n += copied
		c.pos += copied
	}
	return nil
}

// Close releases the decoded samples.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = nil
	c.pos = 0
	c.open = false
	return nil
}

// Decode reads a WAV or MP3 file, chosen by extension, into mono 16-bit samples.
func Decode(path string) ([]int16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.FileError(err, path)
	}
	defer func() { _ = f.Close() }()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		return decodeWAV(f, path)
	case ".mp3":
		return decodeMP3(f, path)
	default:
		return nil, errors.Newf("unsupported recording format %q", ext).
			Component(componentFile).
			Category(errors.CategoryValidation).
			FileContext(path).
			Build()
	}
}

func decodeWAV(r io.ReadSeeker, path string) ([]int16, error) {
	decoder := wav.NewDecoder(r)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, decodeError(errors.NewStd("invalid WAV file"), path)
	}

	depth := int(decoder.BitDepth)
	switch depth {
	case 8, 16, 24, 32:
	default:
		return nil, decodeError(errors.Newf("unsupported bit depth %d", depth).Build(), path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, decodeError(err, path)
	}

	values := make([]int, len(buf.Data))
	for i, v := range buf.Data {
		switch {
		case depth == 8:
			// 8-bit WAV is unsigned
			values[i] = (v - 128) << 8
		case depth > 16:
			values[i] = v >> (depth - 16)
		default:
			values[i] = v
		}
	}
	return mixDown(values, int(decoder.NumChans)), nil
}

func decodeMP3(r io.Reader, path string) ([]int16, error) {
	decoder, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, decodeError(err, path)
	}
	data, err := io.ReadAll(decoder)
	if err != nil {
		return nil, decodeError(err, path)
	}

	// go-mp3 always produces interleaved stereo
	pcm := audiocore.BytesToSamples(data)
	values := make([]int, len(pcm))
	for i, v := range pcm {
		values[i] = int(v)
	}
	return mixDown(values, 2), nil
}

// mixDown averages interleaved channels into mono, clamped to the 16-bit range.
func mixDown(interleaved []int, channels int) []int16 {
	if channels < 1 {
		channels = 1
	}
	out := make([]int16, len(interleaved)/channels)
	for i := range out {
		sum := 0
		for ch := range channels {
			sum += interleaved[i*channels+ch]
		}
		out[i] = clamp16(sum / channels)
	}
	return out
}

func clamp16(v int) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}

func decodeError(err error, path string) error {
	return errors.New(err).
		Component(componentFile).
		Category(errors.CategoryAudioSource).
		FileContext(path).
		Context("operation", "decode").
		Build()
}
