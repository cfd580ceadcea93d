package sinks

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/errors"
	"github.com/tphakala/dbstation/internal/logging"
	"github.com/tphakala/dbstation/internal/mqtt"
)

// MQTTSink publishes the wire record of each reading to <topic>/<mic_index>.
type MQTTSink struct {
	client mqtt.Client
	topic  string
	logger *slog.Logger
}

// NewMQTTSink creates a sink publishing through client under the base topic.
func NewMQTTSink(client mqtt.Client, topic string) (*MQTTSink, error) {
	if client == nil {
		return nil, errors.Newf("mqtt sink requires a client").
			Component(componentSinks).
			Category(errors.CategoryConfiguration).
			Build()
	}
	topic = strings.TrimRight(topic, "/")
	if topic == "" {
		topic = mqtt.DefaultConfig().Topic
	}
	return &MQTTSink{client: client, topic: topic, logger: logging.ForService("sinks")}, nil
}

// Name implements audiocore.Sink.
func (s *MQTTSink) Name() string { return NameMQTT }

// Open connects to the broker. A broker that is down does not prevent the
// run from starting; Accept keeps trying to reconnect, rate limited by the
// client's reconnect cooldown.
func (s *MQTTSink) Open(ctx context.Context) error {
	if s.client.IsConnected() {
		return nil
	}
	if err := s.client.Connect(ctx); err != nil {
		s.logger.Warn("mqtt broker unavailable, readings will fail until it connects",
			"topic", s.topic,
			"error", err)
	}
	return nil
}

// Topic returns the topic a reading of sourceID is published to.
func (s *MQTTSink) Topic(sourceID int) string {
	return s.topic + "/" + strconv.Itoa(sourceID)
}

// Accept implements audiocore.Sink.
func (s *MQTTSink) Accept(ctx context.Context, r audiocore.Reading) error {
	payload, err := encodeRecord(r)
	if err != nil {
		return err
	}
	if !s.client.IsConnected() {
		if err := s.client.Connect(ctx); err != nil {
			return deliveryError(err, NameMQTT, r).Build()
		}
	}
	topic := s.Topic(r.SourceID)
	if err := s.client.Publish(ctx, topic, payload); err != nil {
		return deliveryError(err, NameMQTT, r).Context("topic", topic).Build()
	}
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() error {
	s.client.Disconnect()
	return nil
}
