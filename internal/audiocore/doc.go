// Package audiocore implements the sampling side of dbstation: signal sources,
// the decibel transform and the producer that polls every source on a fixed
// cadence and publishes one Reading per source per tick.
//
// # Architecture Overview
//
//	Capture backend -> Source (lazy open, transform) -> Producer -> Broadcaster (hub) -> Sinks
//
// Backends (malgo, portaudio, file replay, tone generator) live under
// sources/ and only implement Capture. The shared Source wraps a Capture and
// owns open/close state and the conversion of a frame of 16-bit samples into a
// Reading, so device specific code never deals with readings directly.
//
// # Concurrency and Thread Safety
//
// The Producer runs a single goroutine per run. Start and Stop are serialized
// by a mutex and may be called from any goroutine. Sources are only touched by
// the producer goroutine while the pipeline is running; Close may be called
// concurrently and is idempotent.
//
// Publishing never delivers to a sink inline. The Broadcaster implementation
// enqueues the reading for each sink and returns, so a slow sink cannot delay
// the next tick.
//
// # Error Handling
//
// Errors are built with internal/errors and wrap one of the sentinels in
// errors.go so callers can use errors.Is:
//
//   - ErrSourceRead: a source failed to produce a frame; the producer logs it and
//     substitutes a fallback reading.
//   - ErrTransformDomain: the frame was silent or degenerate; the reading carries
//     the sentinel value and is still published.
//   - ErrSinkDelivery: a sink could not accept a reading (raised by sinks).
//   - ErrLifecycle / ErrNothingToStop: Start or Stop called in the wrong state.
package audiocore
