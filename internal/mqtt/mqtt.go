// Package mqtt wraps the paho client used by the MQTT sink.
package mqtt

import (
	"context"
	"time"
)

// Client defines the MQTT operations the sinks rely on.
type Client interface {
	// Connect establishes the broker connection.
	Connect(ctx context.Context) error

	// Publish sends payload to topic and waits for the broker handshake of
	// the configured QoS, bounded by ctx and the publish timeout.
	Publish(ctx context.Context, topic string, payload []byte) error

	// IsConnected reports whether the broker connection is up.
	IsConnected() bool

	// Disconnect closes the connection. Safe to call when not connected.
	Disconnect()
}

// Recorder receives client statistics. Implemented by MQTTMetrics in
// observability/metrics.
type Recorder interface {
	UpdateConnectionStatus(connected bool)
	IncrementMessagesDelivered()
	IncrementErrors()
	IncrementReconnectAttempts()
	ObserveMessageSize(sizeBytes float64)
	ObservePublishLatency(latencySeconds float64)
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // base topic; readings go to <Topic>/<mic_index>
	QoS      byte
	Retain   bool

	ReconnectCooldown time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values.
func DefaultConfig() Config {
	return Config{
		ClientID:          "dbstation",
		Topic:             "dbstation/level",
		ReconnectCooldown: 5 * time.Second,
		ConnectTimeout:    10 * time.Second,
		PublishTimeout:    5 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ClientID == "" {
		c.ClientID = d.ClientID
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = d.PublishTimeout
	}
	if c.DisconnectTimeout <= 0 {
		c.DisconnectTimeout = d.DisconnectTimeout
	}
	if c.ReconnectCooldown < 0 {
		c.ReconnectCooldown = 0
	}
	return c
}

type noopRecorder struct{}

func (noopRecorder) UpdateConnectionStatus(bool)   {}
func (noopRecorder) IncrementMessagesDelivered()   {}
func (noopRecorder) IncrementErrors()              {}
func (noopRecorder) IncrementReconnectAttempts()   {}
func (noopRecorder) ObserveMessageSize(float64)    {}
func (noopRecorder) ObservePublishLatency(float64) {}
