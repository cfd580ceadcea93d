package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HubMetrics records per-sink delivery statistics. It implements hub.Recorder.
type HubMetrics struct {
	deliveries *prometheus.CounterVec
	drops      *prometheus.CounterVec
	depth      *prometheus.GaugeVec
	latency    *prometheus.HistogramVec

	collectors []prometheus.Collector
}

// NewHubMetrics creates hub metrics and registers them on registry.
func NewHubMetrics(registry *prometheus.Registry) (*HubMetrics, error) {
	m := &HubMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register hub metrics: %w", err)
	}
	return m, nil
}

func (m *HubMetrics) initMetrics() {
	m.deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "hub_deliveries_total",
		Help:      "Readings handed to sinks, by outcome",
	}, []string{"sink", "status"})

	m.drops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "hub_dropped_total",
		Help:      "Readings discarded by a sink queue policy",
	}, []string{"sink"})

	m.depth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "hub_queue_depth",
		Help:      "Readings waiting in a sink queue",
	}, []string{"sink"})

	m.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "hub_delivery_latency_seconds",
		Help:      "Time a sink took to accept one reading",
		Buckets:   prometheus.ExponentialBuckets(BucketStart100us, BucketFactor2, BucketCount12),
	}, []string{"sink"})

	m.collectors = []prometheus.Collector{m.deliveries, m.drops, m.depth, m.latency}
}

// RecordDelivery records one delivery attempt.
func (m *HubMetrics) RecordDelivery(sink string, success bool, latency time.Duration) {
	status := StatusSuccess
	if !success {
		status = StatusError
	}
	m.deliveries.WithLabelValues(sink, status).Inc()
	m.latency.WithLabelValues(sink).Observe(latency.Seconds())
}

// RecordDrop counts one discarded reading.
func (m *HubMetrics) RecordDrop(sink string) {
	m.drops.WithLabelValues(sink).Inc()
}

// SetQueueDepth exports the current queue length of a sink.
func (m *HubMetrics) SetQueueDepth(sink string, depth int) {
	m.depth.WithLabelValues(sink).Set(float64(depth))
}

// Describe implements the prometheus.Collector interface.
func (m *HubMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *HubMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}
