package sinks

import (
	"context"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/queue"
)

// DefaultQueueCapacity is the capacity of a QueueSink created without an
// explicit policy.
const DefaultQueueCapacity = 1000

// QueueSink buffers readings in process for a consumer such as the HTTP API.
// Readings stay in arrival order. Closing the sink wakes blocked takers and
// discards whatever was left; Open makes it usable again.
type QueueSink struct {
	q *queue.Queue[audiocore.Reading]
}

// DefaultQueuePolicy holds DefaultQueueCapacity readings and blocks when full.
func DefaultQueuePolicy() queue.Policy {
	return queue.Bounded(DefaultQueueCapacity, queue.Block)
}

// NewQueueSink creates a queue sink buffering under policy.
func NewQueueSink(policy queue.Policy) (*QueueSink, error) {
	q, err := queue.New[audiocore.Reading](policy)
	if err != nil {
		return nil, err
	}
	return &QueueSink{q: q}, nil
}

// Name implements audiocore.Sink.
func (s *QueueSink) Name() string { return NameQueue }

// Open empties and reopens the queue for a new run.
func (s *QueueSink) Open(context.Context) error {
	s.q.Reset()
	return nil
}

// Accept enqueues r. With the Block policy it waits for a consumer until ctx
// is cancelled.
func (s *QueueSink) Accept(ctx context.Context, r audiocore.Reading) error {
	if _, err := s.q.Push(ctx, r); err != nil {
		return deliveryError(err, NameQueue, r).Build()
	}
	return nil
}

// Take waits for the next reading.
func (s *QueueSink) Take(ctx context.Context) (audiocore.Reading, error) {
	return s.q.Pop(ctx)
}

// TryTake returns the next reading without waiting.
func (s *QueueSink) TryTake() (audiocore.Reading, bool) {
	return s.q.TryPop()
}

// Drain removes up to limit readings, or all of them when limit <= 0.
func (s *QueueSink) Drain(limit int) []audiocore.Reading {
	return s.q.Drain(limit)
}

// Len returns the number of buffered readings.
func (s *QueueSink) Len() int { return s.q.Len() }

// Dropped returns how many readings were evicted under the Drop policy.
func (s *QueueSink) Dropped() uint64 { return s.q.Dropped() }

// Policy returns the buffering policy.
func (s *QueueSink) Policy() queue.Policy { return s.q.Policy() }

// Close wakes blocked callers and discards buffered readings.
func (s *QueueSink) Close() error {
	s.q.Close()
	s.q.Clear()
	return nil
}
