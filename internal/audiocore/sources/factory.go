// Package sources builds signal sources from their configuration and lists
// the input devices of the capture backends.
package sources

import (
	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/audiocore/sources/file"
	"github.com/tphakala/dbstation/internal/audiocore/sources/malgo"
	"github.com/tphakala/dbstation/internal/audiocore/sources/portaudio"
	"github.com/tphakala/dbstation/internal/audiocore/sources/tone"
	"github.com/tphakala/dbstation/internal/errors"
)

// Source types.
const (
	TypeMalgo     = "malgo"
	TypePortAudio = "portaudio"
	TypeFile      = "file"
	TypeTone      = "tone"
)

// DefaultType is the backend used when a source does not name one.
const DefaultType = TypeMalgo

// Spec describes one source.
type Spec struct {
	ID         int
	Type       string
	Device     string
	Channels   int
	SampleRate int
	FrameSize  int

	// file
	Path string
	Loop bool

	// tone
	Frequency float64
	Amplitude float64
	Noise     float64
	Seed      uint64
}

// New creates the source described by spec. Nothing is opened.
func New(spec Spec) (*audiocore.Source, error) {
	capture, name, err := newCapture(spec)
	if err != nil {
		return nil, err
	}
	handle := audiocore.SourceHandle{
		ID:         spec.ID,
		Name:       name,
		Channels:   spec.Channels,
		SampleRate: spec.SampleRate,
		FrameSize:  spec.FrameSize,
	}
	return audiocore.NewSource(handle, capture), nil
}

func newCapture(spec Spec) (audiocore.Capture, string, error) {
	switch spec.Type {
	case TypeMalgo, "soundcard", "":
		return malgo.New(malgo.Config{Device: spec.Device}), deviceName(TypeMalgo, spec.Device), nil
	case TypePortAudio:
		return portaudio.New(portaudio.Config{Device: spec.Device}), deviceName(TypePortAudio, spec.Device), nil
	case TypeFile:
		if spec.Path == "" {
			return nil, "", errors.Newf("file source %d requires a path", spec.ID).
				Component(audiocore.ComponentAudioCore).
				Category(errors.CategoryConfiguration).
				Context("source_id", spec.ID).
				Build()
		}
		return file.New(file.Config{Path: spec.Path, Loop: spec.Loop}), "file:" + spec.Path, nil
	case TypeTone:
		return tone.New(tone.Config{
			Frequency: spec.Frequency,
			Amplitude: spec.Amplitude,
			Noise:     spec.Noise,
			Seed:      spec.Seed,
		}), "tone", nil
	default:
		return nil, "", errors.Newf("unknown source type %q", spec.Type).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryConfiguration).
			Context("source_id", spec.ID).
			Context("source_type", spec.Type).
			Build()
	}
}

func deviceName(backend, device string) string {
	if device == "" {
		device = "default"
	}
	return backend + ":" + device
}

// NewAll creates every source, failing on the first invalid spec.
func NewAll(specs []Spec) ([]audiocore.SignalSource, error) {
	out := make([]audiocore.SignalSource, 0, len(specs))
	for _, spec := range specs {
		src, err := New(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}
