// Package hub fans readings out to a dynamic set of sinks. Each registration
// owns a queue with its own overflow policy and a worker goroutine, so a slow
// sink never stalls the producer or the other sinks.
package hub

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/errors"
	"github.com/tphakala/dbstation/internal/logging"
	"github.com/tphakala/dbstation/internal/queue"
)

// DefaultGrace bounds how long Shutdown lets workers drain their queues.
const DefaultGrace = 2 * time.Second

// dropLogInterval is the minimum spacing of drop warnings per sink.
const dropLogInterval = 5 * time.Second

// RegistrationID identifies a sink registration.
type RegistrationID string

// Recorder receives delivery statistics. Implemented by the hub collector in
// observability/metrics.
type Recorder interface {
	RecordDelivery(sink string, success bool, latency time.Duration)
	RecordDrop(sink string)
	SetQueueDepth(sink string, depth int)
}

// RegistrationInfo is a snapshot of one registration.
type RegistrationInfo struct {
	ID        RegistrationID `json:"id"`
	Sink      string         `json:"sink"`
	Policy    string         `json:"policy"`
	Delivered uint64         `json:"delivered"`
	Failed    uint64         `json:"failed"`
	Dropped   uint64         `json:"dropped"`
	Depth     int            `json:"depth"`
}

type registration struct {
	id     RegistrationID
	sink   audiocore.Sink
	name   string
	policy queue.Policy
	queue  *queue.Queue[audiocore.Reading]

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64

	dropLimiter *rate.Limiter
	suppressed  atomic.Uint64

	// done is closed when the worker of the current run exits. Guarded by Hub.mu.
	done chan struct{}

	sinkMu   sync.Mutex
	sinkOpen bool
}

func (r *registration) openSink(ctx context.Context) error {
	r.sinkMu.Lock()
	defer r.sinkMu.Unlock()

	if opener, ok := r.sink.(audiocore.Opener); ok {
		if err := opener.Open(ctx); err != nil {
			return errors.New(err).
				Component(componentHub).
				Category(errors.CategorySinkDelivery).
				Context("sink", r.name).
				Context("operation", "open_sink").
				Build()
		}
	}
	r.sinkOpen = true
	return nil
}

// closeSink closes the sink if it is open, so each run closes it exactly once.
func (r *registration) closeSink() error {
	r.sinkMu.Lock()
	defer r.sinkMu.Unlock()

	if !r.sinkOpen {
		return nil
	}
	r.sinkOpen = false
	if err := r.sink.Close(); err != nil {
		return errors.New(err).
			Component(componentHub).
			Category(errors.CategorySinkDelivery).
			Context("sink", r.name).
			Context("operation", "close_sink").
			Build()
	}
	return nil
}

func (r *registration) info() RegistrationInfo {
	return RegistrationInfo{
		ID:        r.id,
		Sink:      r.name,
		Policy:    r.policy.String(),
		Delivered: r.delivered.Load(),
		Failed:    r.failed.Load(),
		Dropped:   r.dropped.Load(),
		Depth:     r.queue.Len(),
	}
}

// Hub routes every published reading to every registered sink.
type Hub struct {
	mu      sync.Mutex // serializes Register, Unregister, Start and Shutdown
	regs    atomic.Pointer[[]*registration]
	running atomic.Bool

	cancel  context.CancelFunc // cancels in-flight deliveries of the current run
	runCtx  context.Context
	workers sync.WaitGroup
	closers sync.WaitGroup

	grace    time.Duration
	recorder Recorder
	logger   *slog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithGrace sets how long Shutdown lets workers drain before cancelling them.
func WithGrace(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.grace = d
		}
	}
}

// WithRecorder attaches delivery metrics.
func WithRecorder(r Recorder) Option {
	return func(h *Hub) {
		if r != nil {
			h.recorder = r
		}
	}
}

// WithLogger replaces the hub logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// New creates an idle hub with no registrations.
func New(opts ...Option) *Hub {
	h := &Hub{
		grace:    DefaultGrace,
		recorder: noopRecorder{},
		logger:   logging.ForService("hub"),
	}
	empty := make([]*registration, 0)
	h.regs.Store(&empty)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) snapshot() []*registration {
	return *h.regs.Load()
}

// Running reports whether the hub is between Start and Shutdown.
func (h *Hub) Running() bool {
	return h.running.Load()
}

// Register adds a sink with the given queue policy. On a running hub the sink
// is opened and its worker started before Register returns.
func (h *Hub) Register(sink audiocore.Sink, policy queue.Policy) (RegistrationID, error) {
	if sink == nil {
		return "", errors.Newf("cannot register a nil sink").
			Component(componentHub).
			Category(errors.CategoryValidation).
			Build()
	}
	q, err := queue.New[audiocore.Reading](policy)
	if err != nil {
		return "", err
	}

	_, isOpener := sink.(audiocore.Opener)
	reg := &registration{
		id:          RegistrationID(uuid.NewString()),
		sink:        sink,
		name:        sink.Name(),
		policy:      policy,
		queue:       q,
		dropLimiter: rate.NewLimiter(rate.Every(dropLogInterval), 1),
		sinkOpen:    !isOpener,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running.Load() {
		if err := reg.openSink(h.runCtx); err != nil {
			return "", err
		}
		h.startWorker(h.runCtx, reg)
	}

	next := slices.Clone(h.snapshot())
	next = append(next, reg)
	h.regs.Store(&next)

	h.logger.Info("sink registered",
		"sink", reg.name,
		"registration_id", string(reg.id),
		"policy", policy.String(),
	)
	return reg.id, nil
}

// Unregister removes a registration. No reading published after Unregister
// returns reaches the sink. Readings already queued are delivered in the
// background, then the sink is closed.
func (h *Hub) Unregister(id RegistrationID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	current := h.snapshot()
	idx := slices.IndexFunc(current, func(r *registration) bool { return r.id == id })
	if idx < 0 {
		return errors.New(ErrRegistrationNotFound).
			Component(componentHub).
			Category(errors.CategoryNotFound).
			Context("registration_id", string(id)).
			Build()
	}
	reg := current[idx]

	next := slices.Delete(slices.Clone(current), idx, idx+1)
	h.regs.Store(&next)
	reg.queue.Close()

	h.logger.Info("sink unregistered",
		"sink", reg.name,
		"registration_id", string(id),
		"pending", reg.queue.Len(),
	)

	if h.running.Load() && reg.done != nil {
		done := reg.done
		h.closers.Add(1)
		go func() {
			defer h.closers.Done()
			<-done
			h.finish(reg)
		}()
		return nil
	}

	return reg.closeSink()
}

// finish discards what a worker left behind and closes the sink.
func (h *Hub) finish(reg *registration) error {
	if left := reg.queue.Clear(); left > 0 {
		reg.dropped.Add(uint64(left))
		h.logger.Warn("discarded undelivered readings",
			"sink", reg.name,
			"count", left,
		)
	}
	h.recorder.SetQueueDepth(reg.name, 0)
	if err := reg.closeSink(); err != nil {
		h.logger.Warn("failed to close sink", "sink", reg.name, "error", err)
		return err
	}
	return nil
}

// Registrations returns a snapshot of every registration.
func (h *Hub) Registrations() []RegistrationInfo {
	regs := h.snapshot()
	out := make([]RegistrationInfo, 0, len(regs))
	for _, reg := range regs {
		out = append(out, reg.info())
	}
	return out
}

// Start opens every sink that implements audiocore.Opener and starts one
// worker per registration. If a sink fails to open, the sinks opened so far
// are closed and the hub stays idle.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running.Load() {
		return errors.New(ErrAlreadyRunning).
			Component(componentHub).
			Category(errors.CategoryState).
			Build()
	}

	regs := h.snapshot()
	for i, reg := range regs {
		if err := reg.openSink(ctx); err != nil {
			for _, opened := range regs[:i] {
				_ = opened.closeSink()
			}
			h.logger.Error("failed to open sink", "sink", reg.name, "error", err)
			return err
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.runCtx, h.cancel = runCtx, cancel
	for _, reg := range regs {
		reg.queue.Reset()
		h.startWorker(runCtx, reg)
	}
	h.running.Store(true)

	h.logger.Info("hub started", "sinks", len(regs))
	return nil
}

func (h *Hub) startWorker(ctx context.Context, reg *registration) {
	done := make(chan struct{})
	reg.done = done
	h.workers.Add(1)
	go h.worker(ctx, reg, done)
}

// Publish enqueues r on every registered sink. It never calls a sink inline;
// only a Block policy on a full queue makes it wait, and that wait ends with
// ctx. A reading whose wait hits the ctx deadline is dropped for that sink
// and counted, the same as a Drop eviction.
func (h *Hub) Publish(ctx context.Context, r audiocore.Reading) error {
	if !h.running.Load() {
		return errors.New(ErrNotRunning).
			Component(componentHub).
			Category(errors.CategoryState).
			Build()
	}

	var errs []error
	for _, reg := range h.snapshot() {
		evicted, err := reg.queue.Push(ctx, r)
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrClosed):
			// unregistered or shutting down
			continue
		case errors.Is(err, context.DeadlineExceeded):
			h.noteBlockTimeout(reg)
			continue
		default:
			reg.dropped.Add(1)
			h.recorder.RecordDrop(reg.name)
			errs = append(errs, errors.New(err).
				Component(componentHub).
				Category(errors.CategorySinkDelivery).
				Context("sink", reg.name).
				Context("source_id", r.SourceID).
				Context("tick", r.Tick).
				Build())
			continue
		}
		if evicted {
			h.noteDrop(reg)
		}
		h.recorder.SetQueueDepth(reg.name, reg.queue.Len())
	}
	return errors.Join(errs...)
}

func (h *Hub) noteDrop(reg *registration) {
	reg.dropped.Add(1)
	h.recorder.RecordDrop(reg.name)
	if !reg.dropLimiter.Allow() {
		reg.suppressed.Add(1)
		return
	}
	h.logger.Warn("sink queue full, dropped oldest reading",
		"sink", reg.name,
		"capacity", reg.policy.Capacity,
		"suppressed", reg.suppressed.Swap(0),
	)
}

func (h *Hub) noteBlockTimeout(reg *registration) {
	reg.dropped.Add(1)
	h.recorder.RecordDrop(reg.name)
	if !reg.dropLimiter.Allow() {
		reg.suppressed.Add(1)
		return
	}
	h.logger.Warn("sink queue full, publish wait timed out, reading dropped",
		"sink", reg.name,
		"capacity", reg.policy.Capacity,
		"depth", reg.queue.Len(),
		"suppressed", reg.suppressed.Swap(0),
	)
}

func (h *Hub) worker(ctx context.Context, reg *registration, done chan<- struct{}) {
	defer h.workers.Done()
	defer close(done)

	logger := h.logger.With("sink", reg.name, "registration_id", string(reg.id))
	logger.Debug("sink worker started")

	for ctx.Err() == nil {
		r, err := reg.queue.Pop(ctx)
		if err != nil {
			break
		}
		h.recorder.SetQueueDepth(reg.name, reg.queue.Len())
		h.deliver(ctx, reg, r, logger)
	}
	logger.Debug("sink worker stopped")
}

func (h *Hub) deliver(ctx context.Context, reg *registration, r audiocore.Reading, logger *slog.Logger) {
	start := time.Now()
	err := safeAccept(ctx, reg.sink, r)
	latency := time.Since(start)

	if err != nil {
		reg.failed.Add(1)
		h.recorder.RecordDelivery(reg.name, false, latency)
		logger.Warn("sink delivery failed",
			"source_id", r.SourceID,
			"tick", r.Tick,
			"error", err,
		)
		return
	}
	reg.delivered.Add(1)
	h.recorder.RecordDelivery(reg.name, true, latency)
}

func safeAccept(ctx context.Context, sink audiocore.Sink, r audiocore.Reading) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf("sink panicked: %v", p).
				Component(componentHub).
				Category(errors.CategorySinkDelivery).
				Priority(errors.PriorityHigh).
				Context("sink", sink.Name()).
				Build()
		}
	}()
	return sink.Accept(ctx, r)
}

// Shutdown stops routing, lets workers drain their queues for the grace
// period, then cancels deliveries still in flight and closes every sink once.
// Shutting down an idle hub is a no-op.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running.Swap(false) {
		return nil
	}

	regs := h.snapshot()
	for _, reg := range regs {
		reg.queue.Close()
	}

	drained := make(chan struct{})
	go func() {
		h.workers.Wait()
		close(drained)
	}()

	grace := time.NewTimer(h.grace)
	defer grace.Stop()
	select {
	case <-drained:
	case <-grace.C:
		h.logger.Warn("sink workers exceeded shutdown grace period, cancelling deliveries", "grace", h.grace)
		h.cancel()
		<-drained
	case <-ctx.Done():
		h.cancel()
		<-drained
	}
	h.cancel()
	h.closers.Wait()

	var errs []error
	for _, reg := range regs {
		reg.done = nil
		if err := h.finish(reg); err != nil {
			errs = append(errs, err)
		}
	}
	h.runCtx, h.cancel = nil, nil

	h.logger.Info("hub stopped", "sinks", len(regs))
	return errors.Join(errs...)
}

type noopRecorder struct{}

func (noopRecorder) RecordDelivery(string, bool, time.Duration) {}
func (noopRecorder) RecordDrop(string)                          {}
func (noopRecorder) SetQueueDepth(string, int)                  {}
