package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/dbstation/internal/audiocore"
)

// PipelineMetrics records producer activity. It implements audiocore.Recorder.
type PipelineMetrics struct {
	ticks             prometheus.Counter
	tickDuration      prometheus.Histogram
	overruns          prometheus.Counter
	readErrors        *prometheus.CounterVec
	transformWarnings *prometheus.CounterVec
	state             prometheus.Gauge

	collectors []prometheus.Collector
}

// NewPipelineMetrics creates pipeline metrics and registers them on registry.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.ticks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "pipeline_ticks_total",
		Help:      "Total number of sampling ticks completed",
	})

	m.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "pipeline_tick_duration_seconds",
		Help:      "Time spent reading and publishing all sources in one tick",
		Buckets:   prometheus.ExponentialBuckets(BucketStart100us, BucketFactor2, BucketCount12),
	})

	m.overruns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "pipeline_tick_overruns_total",
		Help:      "Ticks that took longer than the sampling period",
	})

	m.readErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "pipeline_source_read_errors_total",
		Help:      "Failed source reads replaced by a fallback reading",
	}, []string{"source"})

	m.transformWarnings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "pipeline_transform_warnings_total",
		Help:      "Readings published with the sentinel level because the frame was silent",
	}, []string{"source"})

	m.state = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "pipeline_state",
		Help:      "Pipeline lifecycle state (0 idle, 1 running, 2 stopping)",
	})

	m.collectors = []prometheus.Collector{
		m.ticks, m.tickDuration, m.overruns, m.readErrors, m.transformWarnings, m.state,
	}
}

// RecordTick records one completed tick.
func (m *PipelineMetrics) RecordTick(d time.Duration, overrun bool) {
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
	if overrun {
		m.overruns.Inc()
	}
}

// RecordReadError counts a failed read of source id.
func (m *PipelineMetrics) RecordReadError(id int) {
	m.readErrors.WithLabelValues(strconv.Itoa(id)).Inc()
}

// RecordTransformWarning counts a sentinel reading of source id.
func (m *PipelineMetrics) RecordTransformWarning(id int) {
	m.transformWarnings.WithLabelValues(strconv.Itoa(id)).Inc()
}

// RecordState exports the lifecycle state.
func (m *PipelineMetrics) RecordState(s audiocore.State) {
	m.state.Set(float64(s))
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}
