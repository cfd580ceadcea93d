package audiocore

import (
	"context"
	"time"
)

// SignalSource produces one Reading per call to Read.
//
// Implementations open their device lazily on the first Read if Open was not
// called. Close is idempotent and returns nil on a source that was never opened.
type SignalSource interface {
	// Handle returns the stream description of this source.
	Handle() SourceHandle

	// Open acquires the underlying device.
	Open(ctx context.Context) error

	// Read captures one frame and converts it into a Reading. It may block for
	// up to one tick period. Device failures are returned as errors wrapping
	// ErrSourceRead; a degenerate frame returns a valid Reading together with an
	// error wrapping ErrTransformDomain.
	Read(ctx context.Context) (Reading, error)

	// Close releases the device.
	Close() error
}

// Capture is a device backend that fills frames of interleaved 16-bit samples.
type Capture interface {
	// Open acquires the device for the given stream parameters.
	Open(ctx context.Context, handle SourceHandle) error

	// Read fills dst completely or returns an error.
	Read(ctx context.Context, dst []int16) error

	// Close releases the device. It is only called after a successful Open.
	Close() error
}

// Sink consumes readings. Accept may block on I/O; the hub calls it from a
// dedicated goroutine per sink, never concurrently for the same sink.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Accept delivers one reading. Failures wrap ErrSinkDelivery.
	Accept(ctx context.Context, r Reading) error

	// Close flushes and releases the sink.
	Close() error
}

// Opener is implemented by sinks that acquire resources when a run starts.
// Open is called on every pipeline start so a sink closed by a previous stop
// can be reused.
type Opener interface {
	Open(ctx context.Context) error
}

// Broadcaster fans readings out to the registered sinks.
type Broadcaster interface {
	// Start prepares every registered sink for a new run.
	Start(ctx context.Context) error

	// Publish routes a reading to every registered sink without delivering it inline.
	Publish(ctx context.Context, r Reading) error

	// Shutdown drains pending deliveries and closes every sink.
	Shutdown(ctx context.Context) error
}

// Recorder receives producer measurements. A nil Recorder is valid.
type Recorder interface {
	RecordTick(duration time.Duration, overrun bool)
	RecordReadError(sourceID int)
	RecordTransformWarning(sourceID int)
	RecordState(state State)
}

// DeviceInfo describes an input device reported by a capture backend.
type DeviceInfo struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	MaxInputChannels int    `json:"max_input_channels"`
	HostAPI          int    `json:"host_api"`
	HostAPIName      string `json:"host_api_name,omitempty"`
	DefaultInput     bool   `json:"default_input"`
}

// DeviceLister enumerates input devices.
type DeviceLister interface {
	ListInputSources(ctx context.Context) ([]DeviceInfo, error)
}

// PrimaryHostAPI is the host API whose devices are offered as microphones.
const PrimaryHostAPI = 0

// IsUsableInput reports whether a device can be used as a microphone source.
func (d DeviceInfo) IsUsableInput() bool {
	return d.MaxInputChannels > 0 && d.HostAPI == PrimaryHostAPI
}

// UsableInputs filters devices down to usable microphones, keeping order.
func UsableInputs(devices []DeviceInfo) []DeviceInfo {
	usable := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		if d.IsUsableInput() {
			usable = append(usable, d)
		}
	}
	return usable
}
