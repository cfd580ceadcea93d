package sinks

import (
	"context"

	"github.com/tphakala/dbstation/internal/audiocore"
)

// LevelObserver receives sound levels, see metrics.SoundLevelMetrics.
type LevelObserver interface {
	ObserveLevel(sourceID int, db float64, fallback bool)
}

// MetricsSink exports each reading as prometheus sound level metrics.
type MetricsSink struct {
	observer LevelObserver
}

func NewMetricsSink(observer LevelObserver) *MetricsSink {
	return &MetricsSink{observer: observer}
}

// Name implements audiocore.Sink.
func (s *MetricsSink) Name() string { return NameMetrics }

// Accept implements audiocore.Sink.
func (s *MetricsSink) Accept(_ context.Context, r audiocore.Reading) error {
	if s.observer != nil {
		s.observer.ObserveLevel(r.SourceID, r.Value, r.Fallback)
	}
	return nil
}

// Close implements audiocore.Sink.
func (s *MetricsSink) Close() error { return nil }
