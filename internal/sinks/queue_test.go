package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/queue"
)

func TestQueueSinkDefaults(t *testing.T) {
	t.Parallel()

	sink, err := NewQueueSink(DefaultQueuePolicy())
	require.NoError(t, err)
	assert.Equal(t, queue.Bounded(1000, queue.Block), sink.Policy())
	assert.Equal(t, NameQueue, sink.Name())
}

func TestQueueSinkKeepsOrder(t *testing.T) {
	t.Parallel()

	sink, err := NewQueueSink(queue.Bounded(10, queue.Block))
	require.NoError(t, err)

	for tick := range uint64(4) {
		require.NoError(t, sink.Accept(t.Context(), reading(int(tick%2), tick, float64(tick))))
	}
	assert.Equal(t, 4, sink.Len())

	first, err := sink.Take(t.Context())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), first.Tick)

	second, ok := sink.TryTake()
	require.True(t, ok)
	assert.Equal(t, uint64(1), second.Tick)

	rest := sink.Drain(0)
	require.Len(t, rest, 2)
	assert.Equal(t, uint64(2), rest[0].Tick)
	assert.Equal(t, uint64(3), rest[1].Tick)

	_, ok = sink.TryTake()
	assert.False(t, ok)
}

func TestQueueSinkBlockWaitsForConsumer(t *testing.T) {
	t.Parallel()

	sink, err := NewQueueSink(queue.Bounded(1, queue.Block))
	require.NoError(t, err)
	require.NoError(t, sink.Accept(t.Context(), reading(0, 0, 1)))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	err = sink.Accept(ctx, reading(0, 1, 2))
	require.Error(t, err)
	assert.ErrorIs(t, err, audiocore.ErrSinkDelivery)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, sink.Len())
}

func TestQueueSinkDropKeepsNewest(t *testing.T) {
	t.Parallel()

	sink, err := NewQueueSink(queue.Bounded(2, queue.Drop))
	require.NoError(t, err)
	for tick := range uint64(5) {
		require.NoError(t, sink.Accept(t.Context(), reading(0, tick, 0)))
	}

	got := sink.Drain(0)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(3), got[0].Tick)
	assert.Equal(t, uint64(4), got[1].Tick)
	assert.Equal(t, uint64(3), sink.Dropped())
}

func TestQueueSinkCloseWakesTakersAndClears(t *testing.T) {
	t.Parallel()

	sink, err := NewQueueSink(queue.Bounded(5, queue.Block))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := sink.Take(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, sink.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, queue.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("take was not woken by close")
	}

	require.NoError(t, sink.Open(t.Context()))
	require.NoError(t, sink.Accept(t.Context(), reading(0, 0, 1)))
	require.NoError(t, sink.Close())
	assert.Zero(t, sink.Len(), "close discards buffered readings")

	require.NoError(t, sink.Open(t.Context()))
	assert.Zero(t, sink.Len())
	require.NoError(t, sink.Accept(t.Context(), reading(0, 1, 1)))
	assert.Equal(t, 1, sink.Len())
}
