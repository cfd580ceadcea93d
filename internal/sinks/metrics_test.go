package sinks

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/dbstation/internal/observability/metrics"
)

func TestMetricsSinkExportsLevel(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	levels, err := metrics.NewSoundLevelMetrics(registry)
	require.NoError(t, err)

	sink := NewMetricsSink(levels)
	require.NoError(t, sink.Accept(t.Context(), reading(2, 0, 48.5)))
	fallback := reading(2, 1, 0)
	fallback.Fallback = true
	require.NoError(t, sink.Accept(t.Context(), fallback))

	count, err := testutil.GatherAndCount(registry, "dbstation_signal_strength_db", "dbstation_readings_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "one level series and two reading counters")
	require.NoError(t, sink.Close())
}

func TestMetricsSinkWithoutObserver(t *testing.T) {
	t.Parallel()

	assert.NoError(t, NewMetricsSink(nil).Accept(t.Context(), reading(0, 0, 1)))
}
