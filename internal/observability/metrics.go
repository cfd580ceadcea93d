// Package observability owns the Prometheus registry of dbstation and the
// handler that exposes it. Error telemetry lives in the telemetry package.
package observability

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/dbstation/internal/logging"
	"github.com/tphakala/dbstation/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	Pipeline   *metrics.PipelineMetrics
	Hub        *metrics.HubMetrics
	SoundLevel *metrics.SoundLevelMetrics
	MQTT       *metrics.MQTTMetrics
}

// NewMetrics creates a private registry with every collector registered,
// plus the Go runtime and process collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	pipeline, err := metrics.NewPipelineMetrics(registry)
	if err != nil {
		return nil, err
	}
	hub, err := metrics.NewHubMetrics(registry)
	if err != nil {
		return nil, err
	}
	soundLevel, err := metrics.NewSoundLevelMetrics(registry)
	if err != nil {
		return nil, err
	}
	mqtt, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		registry:   registry,
		Pipeline:   pipeline,
		Hub:        hub,
		SoundLevel: soundLevel,
		MQTT:       mqtt,
	}, nil
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(logging.ForService("metrics").Handler(), slog.LevelError),
		ErrorHandling: promhttp.ContinueOnError,
	})
}
