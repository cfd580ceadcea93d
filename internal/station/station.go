// Package station assembles the sampling pipeline from the settings: it
// builds the sinks and registers them on the hub, creates fresh sources for
// every run and exposes the controls used by the CLI and the HTTP API.
package station

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/audiocore/sources"
	"github.com/tphakala/dbstation/internal/conf"
	"github.com/tphakala/dbstation/internal/errors"
	"github.com/tphakala/dbstation/internal/hub"
	"github.com/tphakala/dbstation/internal/logging"
	"github.com/tphakala/dbstation/internal/observability"
	"github.com/tphakala/dbstation/internal/sinks"
)

const componentStation = "station"

// ErrNoQueueSink is returned by Readings when the queue sink is disabled.
var ErrNoQueueSink = errors.NewStd("queue sink is not enabled")

// Station owns one producer, its hub and the sinks built from the settings.
type Station struct {
	settings *conf.Settings
	metrics  *observability.Metrics
	catalog  *sources.Catalog
	hub      *hub.Hub
	producer *audiocore.Producer
	queue    atomic.Pointer[sinks.QueueSink]
	logger   *slog.Logger

	console   io.Writer
	tickLimit uint64

	mu sync.Mutex // serializes Start and Stop with source construction
}

// Option configures a Station.
type Option func(*Station)

// WithConsoleOutput redirects the console sink.
func WithConsoleOutput(w io.Writer) Option {
	return func(s *Station) { s.console = w }
}

// WithCatalog replaces the device catalog.
func WithCatalog(c *sources.Catalog) Option {
	return func(s *Station) { s.catalog = c }
}

// WithMetrics uses an existing metrics registry.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Station) { s.metrics = m }
}

// WithTickLimit ends each run after n ticks. Zero means unlimited.
func WithTickLimit(n uint64) Option {
	return func(s *Station) { s.tickLimit = n }
}

// New builds an idle station. Sinks are created and registered here; sources
// are created on every Start.
func New(settings *conf.Settings, opts ...Option) (*Station, error) {
	if settings == nil {
		return nil, errors.Newf("station requires settings").
			Component(componentStation).
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Station{
		settings: settings,
		logger:   logging.ForService(componentStation),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.metrics == nil {
		m, err := observability.NewMetrics()
		if err != nil {
			return nil, errors.New(err).
				Component(componentStation).
				Category(errors.CategorySystem).
				Context("operation", "init_metrics").
				Build()
		}
		s.metrics = m
	}
	if s.catalog == nil {
		s.catalog = sources.NewDefaultCatalog()
	}

	fallback, err := audiocore.ParseFallbackPolicy(settings.Pipeline.Fallback)
	if err != nil {
		return nil, err
	}

	s.hub = hub.New(
		hub.WithGrace(settings.Pipeline.ShutdownGrace),
		hub.WithRecorder(s.metrics.Hub),
		hub.WithLogger(logging.ForService("hub")),
	)
	if err := s.registerSinks(); err != nil {
		return nil, err
	}

	s.producer = audiocore.NewProducer(s.hub,
		audiocore.WithFallback(fallback),
		audiocore.WithRecorder(s.metrics.Pipeline),
		audiocore.WithLogger(logging.ForService("producer")),
		audiocore.WithTickLimit(s.tickLimit),
		audiocore.WithPublishTimeout(s.publishTimeout()),
	)
	return s, nil
}

// publishTimeout is how long a publish waits on a full blocking sink queue.
func (s *Station) publishTimeout() time.Duration {
	if d := s.settings.Pipeline.PublishTimeout; d > 0 {
		return d
	}
	return s.settings.Pipeline.Interval
}

// Start creates the configured sources and starts sampling.
func (s *Station) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	srcs, err := sources.NewAll(sourceSpecs(s.settings.Pipeline.Sources))
	if err != nil {
		return err
	}
	return s.producer.Start(ctx, srcs, s.settings.Pipeline.Interval)
}

// Stop ends the current run. On an idle station the returned error wraps
// audiocore.ErrNothingToStop.
func (s *Station) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.producer.Stop(ctx)
}

// Close stops a running station and ignores an idle one.
func (s *Station) Close(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil && !errors.Is(err, audiocore.ErrNothingToStop) {
		return err
	}
	return nil
}

// State returns the pipeline state.
func (s *Station) State() audiocore.State { return s.producer.State() }

// Ticks returns the ticks completed since the station was created.
func (s *Station) Ticks() uint64 { return s.producer.Ticks() }

// Finished is closed when the current run reaches its tick limit. It is nil
// while idle.
func (s *Station) Finished() <-chan struct{} { return s.producer.Finished() }

// LimitReached fires each time a run reaches its tick limit, including runs
// restarted through the API.
func (s *Station) LimitReached() <-chan struct{} { return s.producer.LimitReached() }

// Sources returns the handles of the running sources.
func (s *Station) Sources() []audiocore.SourceHandle { return s.producer.Sources() }

// ConfiguredSources returns the sources the next Start will create.
func (s *Station) ConfiguredSources() []conf.SourceSettings {
	return append([]conf.SourceSettings(nil), s.settings.Pipeline.Sources...)
}

// Registrations returns the sink registrations of the hub.
func (s *Station) Registrations() []hub.RegistrationInfo { return s.hub.Registrations() }

// Unregister removes a sink registration. RegisterSink adds it back.
func (s *Station) Unregister(id hub.RegistrationID) error {
	return s.hub.Unregister(id)
}

// Readings drains up to limit readings from the queue sink. A limit of zero
// or less drains everything.
func (s *Station) Readings(limit int) ([]audiocore.Reading, error) {
	sink := s.queue.Load()
	if sink == nil {
		return nil, errors.New(ErrNoQueueSink).
			Component(componentStation).
			Category(errors.CategoryNotFound).
			Build()
	}
	return sink.Drain(limit), nil
}

// QueueSink returns the queue sink, or nil when it is disabled.
func (s *Station) QueueSink() *sinks.QueueSink { return s.queue.Load() }

// Devices lists the input devices of backend. Unless all is set only usable
// microphones are returned.
func (s *Station) Devices(ctx context.Context, backend string, all bool) ([]audiocore.DeviceInfo, error) {
	if all {
		return s.catalog.ListInputSources(ctx, backend)
	}
	return s.catalog.UsableInputs(ctx, backend)
}

// Metrics returns the registry the pipeline reports to.
func (s *Station) Metrics() *observability.Metrics { return s.metrics }

// Settings returns the settings the station was built from.
func (s *Station) Settings() *conf.Settings { return s.settings }

func sourceSpecs(settings []conf.SourceSettings) []sources.Spec {
	specs := make([]sources.Spec, 0, len(settings))
	for _, src := range settings {
		specs = append(specs, sources.Spec{
			ID:         src.ID,
			Type:       src.Type,
			Device:     src.Device,
			Channels:   src.Channels,
			SampleRate: src.SampleRate,
			FrameSize:  src.FrameSize,
			Path:       src.Path,
			Loop:       src.Loop,
			Frequency:  src.Frequency,
			Amplitude:  src.Amplitude,
			Noise:      src.Noise,
			Seed:       uint64(src.ID) + 1,
		})
	}
	return specs
}
