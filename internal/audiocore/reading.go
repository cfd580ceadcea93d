package audiocore

import (
	"math"
	"time"
)

// Reading is one loudness measurement of one source at one tick.
// It is an immutable value and is passed by value to every sink.
type Reading struct {
	Value     float64   // decibels, 20*log10(rms)
	Timestamp time.Time // capture time, carries both wall and monotonic clock
	SourceID  int       // index of the microphone that produced the reading
	Tick      uint64    // producer tick that produced the reading, diagnostic only
	Fallback  bool      // true when the value was substituted after a read error
}

// Record is the wire representation shared by the network, file and MQTT sinks.
type Record struct {
	SignalStrengthDB float64 `json:"signal_strength_db"`
	Time             float64 `json:"time"`
	MicIndex         int     `json:"mic_index"`
}

// Record converts the reading into its wire form. Time is Unix seconds with
// sub-second precision. Non-finite values are mapped to 0 since JSON cannot
// encode them.
func (r Reading) Record() Record {
	return Record{
		SignalStrengthDB: sanitizeFloat64(r.Value),
		Time:             float64(r.Timestamp.UnixNano()) / float64(time.Second),
		MicIndex:         r.SourceID,
	}
}

func sanitizeFloat64(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// SourceHandle describes an opened capture stream. It is immutable for the
// duration of a run and exclusively owned by the source that opened it.
type SourceHandle struct {
	ID         int
	Name       string
	Channels   int
	SampleRate int
	FrameSize  int // frames per read
}

// Default stream parameters for microphone capture.
const (
	DefaultChannels   = 1
	DefaultSampleRate = 44100
	DefaultFrameSize  = 1024
)

// withDefaults fills zero stream parameters.
func (h SourceHandle) withDefaults() SourceHandle {
	if h.Channels <= 0 {
		h.Channels = DefaultChannels
	}
	if h.SampleRate <= 0 {
		h.SampleRate = DefaultSampleRate
	}
	if h.FrameSize <= 0 {
		h.FrameSize = DefaultFrameSize
	}
	return h
}

// Samples returns the number of interleaved samples in one frame read.
func (h SourceHandle) Samples() int {
	return h.Channels * h.FrameSize
}
