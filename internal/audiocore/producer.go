package audiocore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/dbstation/internal/errors"
	"github.com/tphakala/dbstation/internal/logging"
)

// State is the lifecycle state of the pipeline.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// FallbackPolicy selects the value published for a source whose read failed.
type FallbackPolicy string

const (
	// FallbackZero publishes 0 dB.
	FallbackZero FallbackPolicy = "zero"
	// FallbackPrevious repeats the last value of the source, or 0 dB if there is none.
	FallbackPrevious FallbackPolicy = "previous"
)

// ParseFallbackPolicy parses a configuration value.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch FallbackPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FallbackZero:
		return FallbackZero, nil
	case FallbackPrevious:
		return FallbackPrevious, nil
	default:
		return "", errors.Newf("unknown fallback policy %q", s).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}
}

// DefaultStopGrace bounds how long Stop waits for the in-flight tick.
const DefaultStopGrace = 5 * time.Second

// Producer polls every source once per tick and publishes the readings.
type Producer struct {
	mu    sync.Mutex // serializes Start and Stop
	state atomic.Int32
	ticks atomic.Uint64

	hub      Broadcaster
	fallback FallbackPolicy
	recorder Recorder
	logger   *slog.Logger
	grace    time.Duration
	maxTicks uint64
	// publishWait bounds Publish on a full blocking queue; zero means one period.
	publishWait time.Duration
	// limitReached receives one event each time a run reaches maxTicks.
	limitReached chan struct{}

	// per-run state, guarded by mu
	sources  []SignalSource
	period   time.Duration
	stop     chan struct{}
	done     chan struct{}
	finished chan struct{}
	cancel   context.CancelFunc
}

// ProducerOption configures a Producer.
type ProducerOption func(*Producer)

// WithFallback sets the fallback policy for failed reads.
func WithFallback(policy FallbackPolicy) ProducerOption {
	return func(p *Producer) { p.fallback = policy }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) ProducerOption {
	return func(p *Producer) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithLogger replaces the producer logger.
func WithLogger(l *slog.Logger) ProducerOption {
	return func(p *Producer) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithStopGrace bounds how long Stop waits for the tick in progress before
// cancelling it.
func WithStopGrace(d time.Duration) ProducerOption {
	return func(p *Producer) {
		if d > 0 {
			p.grace = d
		}
	}
}

// WithTickLimit ends the sampling loop of every run after n ticks. The
// pipeline stays Running until Stop is called; Finished is closed and
// LimitReached receives when the limit is reached.
func WithTickLimit(n uint64) ProducerOption {
	return func(p *Producer) { p.maxTicks = n }
}

// WithPublishTimeout bounds how long one Publish may wait on a sink queue
// with the Block policy. Zero waits up to one tick period.
func WithPublishTimeout(d time.Duration) ProducerOption {
	return func(p *Producer) {
		if d > 0 {
			p.publishWait = d
		}
	}
}

// NewProducer creates an idle producer publishing to hub.
func NewProducer(hub Broadcaster, opts ...ProducerOption) *Producer {
	p := &Producer{
		hub:      hub,
		fallback: FallbackZero,
		recorder: noopRecorder{},
		logger:   logging.ForService("producer"),
		grace:    DefaultStopGrace,

		limitReached: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current lifecycle state.
func (p *Producer) State() State {
	return State(p.state.Load())
}

// Ticks returns the number of ticks completed since the producer was created.
func (p *Producer) Ticks() uint64 {
	return p.ticks.Load()
}

// Sources returns the handles of the sources of the current run.
func (p *Producer) Sources() []SourceHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	handles := make([]SourceHandle, 0, len(p.sources))
	for _, src := range p.sources {
		handles = append(handles, src.Handle())
	}
	return handles
}

// Finished returns a channel that is closed when the current run reaches its
// tick limit. Stop does not close it. It returns nil when the pipeline is idle.
func (p *Producer) Finished() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}

// LimitReached delivers an event whenever a run reaches its tick limit. The
// channel is the same for every run, so a caller can wait on it across
// restarts. It never fires without a tick limit.
func (p *Producer) LimitReached() <-chan struct{} {
	return p.limitReached
}

func (p *Producer) setState(s State) {
	p.state.Store(int32(s))
	p.recorder.RecordState(s)
}

// Start opens every source, starts the hub and begins the tick loop.
// It is only valid from Idle. If any source fails to open, the sources that
// did open are closed again and the pipeline stays Idle.
func (p *Producer) Start(ctx context.Context, sources []SignalSource, period time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if st := p.State(); st != StateIdle {
		return lifecycleError(ErrAlreadyRunning, st, "start")
	}
	if len(sources) == 0 {
		return lifecycleError(ErrNoSources, StateIdle, "start")
	}
	if period <= 0 {
		return errors.Newf("tick period must be positive, got %v", period).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		g.Go(func() error {
			return src.Open(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		closeSources(sources, p.logger)
		p.logger.Error("failed to open sources, pipeline stays idle", "error", err)
		return err
	}

	if err := p.hub.Start(ctx); err != nil {
		closeSources(sources, p.logger)
		return errors.New(err).
			Component(ComponentAudioCore).
			Category(errors.CategoryLifecycle).
			Context("operation", "start_hub").
			Build()
	}

	// The loop outlives the caller's context; it ends through Stop.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.sources = sources
	p.period = period
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.finished = make(chan struct{})
	p.cancel = cancel

	p.setState(StateRunning)
	p.logger.Info("pipeline started",
		"sources", len(sources),
		"period", period,
		"fallback", string(p.fallback),
	)

	go p.run(loopCtx, sources, period, p.stop, p.done, p.finished)
	return nil
}

// Stop ends the tick loop after the tick in progress, closes every source,
// shuts the hub down and returns the pipeline to Idle. Calling Stop on an idle
// pipeline returns an error wrapping ErrNothingToStop and changes nothing.
func (p *Producer) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Stopping is never observed here since Stop holds mu until Idle.
	if st := p.State(); st != StateRunning {
		p.logger.Info("nothing to stop")
		return lifecycleError(ErrNothingToStop, st, "stop")
	}

	p.setState(StateStopping)
	p.logger.Info("stopping pipeline", "ticks", p.ticks.Load())

	close(p.stop)
	grace := time.NewTimer(p.grace)
	select {
	case <-p.done:
	case <-grace.C:
		p.logger.Warn("tick in progress exceeded stop grace period, cancelling", "grace", p.grace)
		p.cancel()
		<-p.done
	case <-ctx.Done():
		p.cancel()
		<-p.done
	}
	grace.Stop()
	p.cancel()

	var errs []error
	if err := closeSources(p.sources, p.logger); err != nil {
		errs = append(errs, err)
	}
	if err := p.hub.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	p.sources = nil
	p.stop = nil
	p.done = nil
	p.finished = nil
	p.cancel = nil
	p.setState(StateIdle)
	p.logger.Info("pipeline stopped")

	return errors.Join(errs...)
}

func closeSources(sources []SignalSource, logger *slog.Logger) error {
	var errs []error
	for _, src := range sources {
		if err := src.Close(); err != nil {
			logger.Warn("failed to close source", "source_id", src.Handle().ID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// run is the sampling loop. Tick boundaries are computed from the start
// instant so time spent reading and publishing does not accumulate as drift.
// When a tick overruns one or more boundaries they are skipped.
func (p *Producer) run(ctx context.Context, sources []SignalSource, period time.Duration, stop <-chan struct{}, done, finished chan<- struct{}) {
	defer close(done)

	last := make([]Reading, len(sources))
	haveLast := make([]bool, len(sources))
	next := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for tick := uint64(0); ; tick++ {
		if p.maxTicks > 0 && tick >= p.maxTicks {
			p.logger.Info("tick limit reached", "ticks", tick)
			close(finished)
			select {
			case p.limitReached <- struct{}{}:
			default:
			}
			return
		}

		select {
		case <-stop:
			return
		default:
		}

		tickStart := time.Now()
		p.tick(ctx, tick, period, sources, last, haveLast)
		p.ticks.Add(1)

		next = next.Add(period)
		now := time.Now()
		overrun := false
		if !next.After(now) {
			missed := now.Sub(next)/period + 1
			next = next.Add(missed * period)
			overrun = true
			p.logger.Warn("tick overran its period",
				"tick", tick,
				"duration", now.Sub(tickStart),
				"skipped_boundaries", int64(missed),
			)
		}
		p.recorder.RecordTick(now.Sub(tickStart), overrun)

		timer.Reset(time.Until(next))
		select {
		case <-stop:
			return
		case <-timer.C:
		}
	}
}

// tick reads every source in order and publishes one reading per source.
func (p *Producer) tick(ctx context.Context, tick uint64, period time.Duration, sources []SignalSource, last []Reading, haveLast []bool) {
	for i, src := range sources {
		handle := src.Handle()

		readCtx, cancel := context.WithTimeout(ctx, period)
		reading, err := src.Read(readCtx)
		cancel()

		switch {
		case err == nil:
		case errors.Is(err, ErrTransformDomain):
			p.recorder.RecordTransformWarning(handle.ID)
			p.logger.Debug("signal level undefined, publishing sentinel",
				"source_id", handle.ID,
				"tick", tick,
				"error", err,
			)
		default:
			p.recorder.RecordReadError(handle.ID)
			reading = p.fallbackReading(handle.ID, last[i], haveLast[i])
			p.logger.Warn("source read failed, publishing fallback reading",
				"source_id", handle.ID,
				"tick", tick,
				"fallback", string(p.fallback),
				"error", err,
			)
		}

		reading.Tick = tick
		last[i], haveLast[i] = reading, true

		wait := p.publishWait
		if wait <= 0 {
			wait = period
		}
		pubCtx, cancel := context.WithTimeout(ctx, wait)
		err = p.hub.Publish(pubCtx, reading)
		cancel()
		if err != nil {
			p.logger.Warn("failed to publish reading",
				"source_id", handle.ID,
				"tick", tick,
				"error", err,
			)
		}
	}
}

func (p *Producer) fallbackReading(sourceID int, previous Reading, havePrevious bool) Reading {
	value := SentinelDecibels
	if p.fallback == FallbackPrevious && havePrevious {
		value = previous.Value
	}
	return Reading{
		Value:     value,
		Timestamp: time.Now(),
		SourceID:  sourceID,
		Fallback:  true,
	}
}

type noopRecorder struct{}

func (noopRecorder) RecordTick(time.Duration, bool) {}
func (noopRecorder) RecordReadError(int)            {}
func (noopRecorder) RecordTransformWarning(int)     {}
func (noopRecorder) RecordState(State)              {}
