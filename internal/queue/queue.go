// Package queue provides a FIFO queue with an explicit overflow policy. It
// backs both the per-sink buffers of the hub and the in-process queue sink.
package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tphakala/dbstation/internal/errors"
)

const componentQueue = "queue"

// Mode selects what Push does when a bounded queue is full.
type Mode int

const (
	// Unbounded queues never reject or drop.
	Unbounded Mode = iota
	// Block makes Push wait for space.
	Block
	// Drop evicts the oldest entry to make room for the new one.
	Drop
)

func (m Mode) String() string {
	switch m {
	case Unbounded:
		return "unbounded"
	case Block:
		return "block"
	case Drop:
		return "drop"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a configuration value. The empty string is Unbounded.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unbounded":
		return Unbounded, nil
	case "block":
		return Block, nil
	case "drop", "drop-oldest", "dropoldest":
		return Drop, nil
	default:
		return Unbounded, errors.Newf("unknown queue mode %q", s).
			Component(componentQueue).
			Category(errors.CategoryValidation).
			Build()
	}
}

// Policy describes the overflow behaviour of a queue.
type Policy struct {
	Mode     Mode
	Capacity int // ignored for Unbounded
}

// UnboundedPolicy is the default policy.
var UnboundedPolicy = Policy{Mode: Unbounded}

// Bounded returns a policy with the given capacity and overflow mode.
func Bounded(capacity int, mode Mode) Policy {
	return Policy{Mode: mode, Capacity: capacity}
}

// Validate checks that bounded policies have a positive capacity.
func (p Policy) Validate() error {
	switch p.Mode {
	case Unbounded:
		return nil
	case Block, Drop:
		if p.Capacity <= 0 {
			return errors.Newf("%s policy requires a positive capacity, got %d", p.Mode, p.Capacity).
				Component(componentQueue).
				Category(errors.CategoryValidation).
				Build()
		}
		return nil
	default:
		return errors.Newf("unknown queue mode %d", int(p.Mode)).
			Component(componentQueue).
			Category(errors.CategoryValidation).
			Build()
	}
}

func (p Policy) bounded() bool {
	return p.Mode != Unbounded
}

func (p Policy) String() string {
	if !p.bounded() {
		return p.Mode.String()
	}
	return fmt.Sprintf("%s(%d)", p.Mode, p.Capacity)
}

// ErrClosed is returned by Push on a closed queue and by Pop once a closed
// queue is empty.
var ErrClosed = errors.NewStd("queue closed")

const initialRingSize = 16

// Queue is a FIFO safe for concurrent use by any number of producers and
// consumers. Entries pushed before Close can still be popped after it.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	policy Policy
	buf    []T
	head   int
	n      int
	closed bool

	dropped uint64
}

// New creates a queue. An invalid policy is an error.
func New[T any](policy Policy) (*Queue[T], error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	size := initialRingSize
	if policy.bounded() && policy.Capacity < size {
		size = policy.Capacity
	}
	q := &Queue[T]{
		policy: policy,
		buf:    make([]T, size),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q, nil
}

// Policy returns the overflow policy of the queue.
func (q *Queue[T]) Policy() Policy {
	return q.policy
}

// Push appends v. Under Block it waits for space until ctx is done or the
// queue is closed. Under Drop a full queue evicts its oldest entry and Push
// reports evicted=true.
func (q *Queue[T]) Push(ctx context.Context, v T) (evicted bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, ErrClosed
	}

	if q.policy.bounded() && q.n == q.policy.Capacity {
		switch q.policy.Mode {
		case Drop:
			q.popLocked()
			q.dropped++
			evicted = true
		case Block:
			if err := q.waitLocked(ctx, q.notFull, func() bool {
				return q.closed || q.n < q.policy.Capacity
			}); err != nil {
				return false, err
			}
			if q.closed {
				return false, ErrClosed
			}
		}
	}

	q.pushLocked(v)
	q.notEmpty.Signal()
	return evicted, nil
}

// Pop removes the oldest entry, waiting until one is available, the queue is
// closed and empty, or ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if err := q.waitLocked(ctx, q.notEmpty, func() bool {
		return q.n > 0 || q.closed
	}); err != nil {
		return zero, err
	}
	if q.n == 0 {
		return zero, ErrClosed
	}

	v := q.popLocked()
	q.notFull.Signal()
	return v, nil
}

// TryPop removes the oldest entry without waiting.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.n == 0 {
		var zero T
		return zero, false
	}
	v := q.popLocked()
	q.notFull.Signal()
	return v, true
}

// Drain removes and returns up to limit entries in FIFO order without waiting.
// A limit of zero or less drains everything.
func (q *Queue[T]) Drain(limit int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := q.n
	if limit > 0 && limit < count {
		count = limit
	}
	out := make([]T, 0, count)
	for range count {
		out = append(out, q.popLocked())
	}
	if count > 0 {
		q.notFull.Broadcast()
	}
	return out
}

// Len returns the number of queued entries.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Dropped returns how many entries the Drop policy has evicted.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close rejects further pushes and wakes every waiter. Queued entries stay
// poppable. Closing twice is a no-op.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Closed reports whether Close has been called since the last Reset.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Clear discards every queued entry and returns how many were discarded.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.n
	q.clearLocked()
	q.notFull.Broadcast()
	return n
}

// Reset empties the queue and reopens it.
func (q *Queue[T]) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clearLocked()
	q.closed = false
	q.dropped = 0
}

// waitLocked waits on cond until ready returns true or ctx is done. q.mu must
// be held.
func (q *Queue[T]) waitLocked(ctx context.Context, cond *sync.Cond, ready func() bool) error {
	if ready() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		cond.Broadcast()
	})
	defer stop()

	for !ready() {
		if err := ctx.Err(); err != nil {
			return err
		}
		cond.Wait()
	}
	return nil
}

func (q *Queue[T]) pushLocked(v T) {
	if q.n == len(q.buf) {
		q.growLocked()
	}
	q.buf[(q.head+q.n)%len(q.buf)] = v
	q.n++
}

func (q *Queue[T]) popLocked() T {
	var zero T
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return v
}

func (q *Queue[T]) growLocked() {
	grown := make([]T, len(q.buf)*2)
	for i := range q.n {
		grown[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = grown
	q.head = 0
}

func (q *Queue[T]) clearLocked() {
	var zero T
	for i := range q.n {
		q.buf[(q.head+i)%len(q.buf)] = zero
	}
	q.head = 0
	q.n = 0
}
