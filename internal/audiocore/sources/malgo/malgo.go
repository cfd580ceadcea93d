// Package malgo captures microphone audio through miniaudio.
package malgo

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/errors"
	"github.com/tphakala/dbstation/internal/logging"
)

const componentMalgo = "malgo"

// ringSeconds is how much audio the capture ring holds.
const ringSeconds = 2

// Config selects the capture device.
type Config struct {
	// Device is a device name, a substring of one, or a decoded device ID.
	// Empty, "default" and "sysdefault" select the system default input.
	Device string
	// ReadTimeout bounds how long Read waits for the device. Zero derives it
	// from the frame duration.
	ReadTimeout time.Duration
}

// Capture implements audiocore.Capture on a miniaudio capture device.
type Capture struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	mctx    *malgo.AllocatedContext
	device  *malgo.Device
	ring    *frameRing
	timeout time.Duration
}

// New creates a capture backend. No device is touched until Open.
func New(cfg Config) *Capture {
	return &Capture{
		cfg:    cfg,
		logger: logging.ForService(componentMalgo),
	}
}

// Open initializes miniaudio, selects the device and starts capturing 16-bit
// samples into the ring.
func (c *Capture) Open(_ context.Context, handle audiocore.SourceHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		return nil
	}

	mctx, err := initContext(c.logger)
	if err != nil {
		return err
	}

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}
	info, err := SelectDevice(infos, c.cfg.Device)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return err
	}

	ring := newFrameRing(handle.SampleRate*handle.Channels*2*ringSeconds, handle.Channels*2, handle.ID)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(handle.Channels)
	deviceConfig.Capture.DeviceID = info.ID.Pointer()
	deviceConfig.SampleRate = uint32(handle.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			ring.write(input)
		},
		Stop: func() {
			c.logger.Warn("capture device stopped",
				"source_id", handle.ID,
				"device", info.Name())
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("device_name", info.Name()).
			Context("operation", "init_device").
			Build()
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("device_name", info.Name()).
			Context("operation", "start_device").
			Build()
	}

	c.mctx = mctx
	c.device = device
	c.ring = ring
	c.timeout = c.cfg.ReadTimeout
	if c.timeout <= 0 {
		frame := time.Duration(float64(handle.FrameSize) / float64(handle.SampleRate) * float64(time.Second))
		c.timeout = 4*frame + 500*time.Millisecond
	}

	c.logger.Info("capture device started",
		"source_id", handle.ID,
		"device", info.Name(),
		"sample_rate", device.SampleRate(),
		"channels", handle.Channels)
	return nil
}

// Read implements audiocore.Capture.
func (c *Capture) Read(ctx context.Context, dst []int16) error {
	c.mu.Lock()
	ring, timeout := c.ring, c.timeout
	c.mu.Unlock()

	if ring == nil {
		return errors.Newf("capture device is not open").
			Component(componentMalgo).
			Category(errors.CategoryState).
			Build()
	}
	return ring.read(ctx, dst, timeout)
}

// Close stops the device and releases miniaudio.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return nil
	}

	var stopErr error
	if err := c.device.Stop(); err != nil {
		stopErr = errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("operation", "stop_device").
			Build()
	}
	c.device.Uninit()
	c.device = nil

	if err := c.mctx.Uninit(); err != nil && stopErr == nil {
		stopErr = errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("operation", "uninit_context").
			Build()
	}
	c.mctx.Free()
	c.mctx = nil

	c.ring.reset()
	c.ring = nil
	return stopErr
}

// platformBackend returns the miniaudio backend used on this platform.
func platformBackend() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

func initContext(logger *slog.Logger) (*malgo.AllocatedContext, error) {
	mctx, err := malgo.InitContext([]malgo.Backend{platformBackend()}, malgo.ContextConfig{}, func(message string) {
		logger.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("backend", runtime.GOOS).
			Context("operation", "init_context").
			Build()
	}
	return mctx, nil
}
