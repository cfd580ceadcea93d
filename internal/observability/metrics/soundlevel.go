package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// SoundLevelMetrics exports the readings themselves.
type SoundLevelMetrics struct {
	level        *prometheus.GaugeVec
	distribution *prometheus.HistogramVec
	readings     *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewSoundLevelMetrics creates sound level metrics and registers them on registry.
func NewSoundLevelMetrics(registry *prometheus.Registry) (*SoundLevelMetrics, error) {
	m := &SoundLevelMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register sound level metrics: %w", err)
	}
	return m, nil
}

func (m *SoundLevelMetrics) initMetrics() {
	m.level = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "signal_strength_db",
		Help:      "Most recent signal level of a source in dB",
	}, []string{"source"})

	m.distribution = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "signal_strength_db_distribution",
		Help:      "Distribution of signal levels in dB",
		Buckets:   prometheus.LinearBuckets(LevelBucketStart, LevelBucketWidth, LevelBucketCount),
	}, []string{"source"})

	m.readings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "readings_total",
		Help:      "Readings observed, split by whether they were a fallback value",
	}, []string{"source", "fallback"})

	m.collectors = []prometheus.Collector{m.level, m.distribution, m.readings}
}

// ObserveLevel records one reading of source id.
func (m *SoundLevelMetrics) ObserveLevel(id int, db float64, fallback bool) {
	source := strconv.Itoa(id)
	m.readings.WithLabelValues(source, strconv.FormatBool(fallback)).Inc()
	if fallback {
		return
	}
	m.level.WithLabelValues(source).Set(db)
	m.distribution.WithLabelValues(source).Observe(db)
}

// Describe implements the prometheus.Collector interface.
func (m *SoundLevelMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *SoundLevelMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}
