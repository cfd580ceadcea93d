// Package portaudio captures microphone audio through PortAudio blocking
// streams and lists input devices per host API.
package portaudio

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/errors"
	"github.com/tphakala/dbstation/internal/logging"
)

const componentPortAudio = "portaudio"

// Config selects the input device.
type Config struct {
	// Device is a device index, a device name or a substring of one. Empty or
	// "default" selects the default input of the default host API.
	Device string
}

// Capture implements audiocore.Capture on a PortAudio blocking input stream.
type Capture struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
	frames int // frames per buffer
	id     int
}

// New creates a capture backend. PortAudio is initialized by Open.
func New(cfg Config) *Capture {
	return &Capture{
		cfg:    cfg,
		logger: logging.ForService(componentPortAudio),
	}
}

// Open initializes PortAudio and starts a blocking input stream.
func (c *Capture) Open(_ context.Context, handle audiocore.SourceHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return openError(err, "initialize", c.cfg.Device)
	}

	stream, buf, err := c.openStream(handle)
	if err != nil {
		_ = portaudio.Terminate()
		return err
	}

	c.stream = stream
	c.buf = buf
	c.frames = handle.FrameSize
	c.id = handle.ID
	return nil
}

func (c *Capture) openStream(handle audiocore.SourceHandle) (*portaudio.Stream, []int16, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, nil, openError(err, "enumerate_devices", c.cfg.Device)
	}
	var device *portaudio.DeviceInfo
	if c.cfg.Device == "" || c.cfg.Device == "default" {
		device, err = portaudio.DefaultInputDevice()
		if err != nil {
			return nil, nil, openError(err, "default_input_device", c.cfg.Device)
		}
	} else {
		device, err = selectDevice(devices, c.cfg.Device)
		if err != nil {
			return nil, nil, err
		}
	}

	params := portaudio.HighLatencyParameters(device, nil)
	params.Input.Channels = handle.Channels
	params.SampleRate = float64(handle.SampleRate)
	params.FramesPerBuffer = handle.FrameSize

	buf := make([]int16, handle.Samples())
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, nil, openError(err, "open_stream", device.Name)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, nil, openError(err, "start_stream", device.Name)
	}

	c.logger.Info("input stream started",
		"source_id", handle.ID,
		"device", device.Name,
		"host_api", device.HostApi.Name,
		"sample_rate", handle.SampleRate,
		"channels", handle.Channels)
	return stream, buf, nil
}

// Read returns the newest complete buffer, blocking until PortAudio delivers
// one. Older buffers that piled up since the previous Read are discarded. An
// input overflow on the returned buffer is reported as a read error.
func (c *Capture) Read(ctx context.Context, dst []int16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return errors.Newf("input stream is not open").
			Component(componentPortAudio).
			Category(errors.CategoryState).
			Build()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	available, err := c.stream.AvailableToRead()
	if err != nil {
		return errors.New(err).
			Component(componentPortAudio).
			Category(errors.CategorySourceRead).
			Context("source_id", c.id).
			Context("operation", "available_to_read").
			Build()
	}
	for range staleBuffers(available, c.frames) {
		// Overflow flags on audio being thrown away are irrelevant.
		if err := c.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
			return errors.New(err).
				Component(componentPortAudio).
				Category(errors.CategorySourceRead).
				Context("source_id", c.id).
				Context("operation", "skip_stale_audio").
				Build()
		}
	}

	if err := c.stream.Read(); err != nil {
		builder := errors.New(err).
			Component(componentPortAudio).
			Category(errors.CategorySourceRead).
			Context("source_id", c.id)
		if errors.Is(err, portaudio.InputOverflowed) {
			builder = builder.Context("overflow", true)
		}
		return builder.Build()
	}
	copy(dst, c.buf)
	return nil
}

// Close stops the stream and terminates PortAudio.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return nil
	}
	stream := c.stream
	c.stream = nil

	var errs []error
	if err := stream.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := stream.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.New(errors.Join(errs...)).
			Component(componentPortAudio).
			Category(errors.CategoryAudioSource).
			Context("operation", "close_stream").
			Build()
	}
	return nil
}

// staleBuffers is how many whole buffers to discard so that the next read
// returns the newest complete one.
func staleBuffers(availableFrames, framesPerBuffer int) int {
	if framesPerBuffer <= 0 || availableFrames < 2*framesPerBuffer {
		return 0
	}
	return availableFrames/framesPerBuffer - 1
}

// selectDevice matches an index, then an exact name, then a name substring.
// Only devices with input channels are considered.
func selectDevice(devices []*portaudio.DeviceInfo, name string) (*portaudio.DeviceInfo, error) {
	if idx, err := strconv.Atoi(name); err == nil {
		for _, d := range devices {
			if d.Index == idx && d.MaxInputChannels > 0 {
				return d, nil
			}
		}
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	for _, d := range devices {
		if strings.Contains(d.Name, name) && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, errors.Newf("no input device matches %q", name).
		Component(componentPortAudio).
		Category(errors.CategoryNotFound).
		Context("device_name", name).
		Context("available_devices", len(devices)).
		Build()
}

func openError(err error, operation, device string) error {
	return errors.New(err).
		Component(componentPortAudio).
		Category(errors.CategoryAudioSource).
		Context("operation", operation).
		Context("device_name", device).
		Build()
}
