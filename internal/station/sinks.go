package station

import (
	"os"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/conf"
	"github.com/tphakala/dbstation/internal/errors"
	"github.com/tphakala/dbstation/internal/hub"
	"github.com/tphakala/dbstation/internal/mqtt"
	"github.com/tphakala/dbstation/internal/queue"
	"github.com/tphakala/dbstation/internal/sinks"
)

var (
	// ErrUnknownSink is returned by RegisterSink for a name no sink answers to.
	ErrUnknownSink = errors.NewStd("unknown sink")
	// ErrSinkRegistered is returned by RegisterSink when the sink already has
	// a registration.
	ErrSinkRegistered = errors.NewStd("sink is already registered")
)

// sinkNames lists every sink in registration order.
var sinkNames = []string{
	sinks.NameConsole,
	sinks.NameFile,
	sinks.NameHTTP,
	sinks.NameQueue,
	sinks.NameMQTT,
	sinks.NameMetrics,
}

// registerSinks builds every enabled sink and registers it on the hub.
func (s *Station) registerSinks() error {
	for _, name := range sinkNames {
		if !s.sinkEnabled(name) {
			continue
		}
		if _, err := s.registerSink(name); err != nil {
			return err
		}
	}

	if len(s.hub.Registrations()) == 0 {
		s.logger.Warn("no sinks enabled, readings will be discarded")
	}
	return nil
}

// RegisterSink builds the named sink from the settings and registers it on
// the hub, idle or running. It restores a sink removed with Unregister and
// also accepts a sink that is disabled in the settings.
func (s *Station) RegisterSink(name string) (hub.RegistrationID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, reg := range s.hub.Registrations() {
		if reg.Sink == name {
			return "", errors.New(ErrSinkRegistered).
				Component(componentStation).
				Category(errors.CategoryConflict).
				Context("sink", name).
				Context("registration_id", string(reg.ID)).
				Build()
		}
	}
	return s.registerSink(name)
}

func (s *Station) sinkEnabled(name string) bool {
	cfg := &s.settings.Sinks
	switch name {
	case sinks.NameConsole:
		return cfg.Console.Enabled
	case sinks.NameFile:
		return cfg.File.Enabled
	case sinks.NameHTTP:
		return cfg.HTTP.Enabled
	case sinks.NameQueue:
		return cfg.Queue.Enabled
	case sinks.NameMQTT:
		return cfg.MQTT.Enabled
	case sinks.NameMetrics:
		return cfg.Metrics.Enabled
	default:
		return false
	}
}

func (s *Station) registerSink(name string) (hub.RegistrationID, error) {
	sink, policy, err := s.buildSink(name)
	if err != nil {
		return "", err
	}
	return s.registerPolicy(sink, policy)
}

// buildSink creates the named sink and resolves its hub policy.
func (s *Station) buildSink(name string) (audiocore.Sink, queue.Policy, error) {
	cfg := &s.settings.Sinks

	switch name {
	case sinks.NameConsole:
		out := s.console
		if out == nil {
			out = os.Stdout
		}
		return withPolicy(sinks.NewConsoleSink(out), cfg.Console.Policy)

	case sinks.NameFile:
		sink, err := sinks.NewFileSink(cfg.File.Path)
		if err != nil {
			return nil, queue.Policy{}, err
		}
		return withPolicy(sink, cfg.File.Policy)

	case sinks.NameHTTP:
		sink, err := sinks.NewNetworkSink(cfg.HTTP.URL, sinks.WithAttemptTimeout(cfg.HTTP.Timeout))
		if err != nil {
			return nil, queue.Policy{}, err
		}
		return withPolicy(sink, cfg.HTTP.Policy)

	case sinks.NameQueue:
		policy, err := cfg.Queue.HubPolicy()
		if err != nil {
			return nil, queue.Policy{}, configError(err, sinks.NameQueue)
		}
		// The queue sink is reused so Readings keeps draining the same buffer.
		if sink := s.queue.Load(); sink != nil {
			return sink, policy, nil
		}
		buffer, err := cfg.Queue.BufferPolicy()
		if err != nil {
			return nil, queue.Policy{}, configError(err, sinks.NameQueue)
		}
		sink, err := sinks.NewQueueSink(buffer)
		if err != nil {
			return nil, queue.Policy{}, err
		}
		s.queue.Store(sink)
		return sink, policy, nil

	case sinks.NameMQTT:
		client, err := mqtt.NewClient(mqtt.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Topic:    cfg.MQTT.Topic,
			QoS:      byte(cfg.MQTT.QoS),
			Retain:   cfg.MQTT.Retain,
		}, s.metrics.MQTT)
		if err != nil {
			return nil, queue.Policy{}, err
		}
		sink, err := sinks.NewMQTTSink(client, cfg.MQTT.Topic)
		if err != nil {
			return nil, queue.Policy{}, err
		}
		return withPolicy(sink, cfg.MQTT.Policy)

	case sinks.NameMetrics:
		return withPolicy(sinks.NewMetricsSink(s.metrics.SoundLevel), cfg.Metrics.Policy)

	default:
		return nil, queue.Policy{}, errors.New(ErrUnknownSink).
			Component(componentStation).
			Category(errors.CategoryValidation).
			Context("sink", name).
			Build()
	}
}

func withPolicy(sink audiocore.Sink, settings conf.PolicySettings) (audiocore.Sink, queue.Policy, error) {
	policy, err := settings.Policy()
	if err != nil {
		return nil, queue.Policy{}, configError(err, sink.Name())
	}
	return sink, policy, nil
}

func (s *Station) registerPolicy(sink audiocore.Sink, policy queue.Policy) (hub.RegistrationID, error) {
	if policy.Mode == queue.Block {
		s.logger.Info("sink registered with a blocking policy, a slow sink can stall sampling",
			"sink", sink.Name(),
			"capacity", policy.Capacity,
			"publish_timeout", s.publishTimeout(),
		)
	}
	return s.hub.Register(sink, policy)
}

func configError(err error, sink string) error {
	return errors.New(err).
		Component(componentStation).
		Category(errors.CategoryConfiguration).
		Context("sink", sink).
		Build()
}
