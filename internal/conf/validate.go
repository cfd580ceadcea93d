// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/queue"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validatePipelineSettings(&settings.Pipeline)...)
	ve.Errors = append(ve.Errors, validateSinksSettings(&settings.Sinks)...)

	if err := validateWebServerSettings(&settings.WebServer); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry is enabled but no DSN is set")
	}
	if settings.Main.Log.Enabled && settings.Main.Log.Path == "" {
		ve.Errors = append(ve.Errors, "file logging is enabled but main.log.path is empty")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

var sourceTypes = map[string]bool{"": true, "malgo": true, "soundcard": true, "portaudio": true, "file": true, "tone": true}

func validatePipelineSettings(p *PipelineSettings) []string {
	var errs []string

	if p.Interval <= 0 {
		errs = append(errs, fmt.Sprintf("pipeline.interval must be positive, got %v", p.Interval))
	}
	if _, err := audiocore.ParseFallbackPolicy(p.Fallback); err != nil {
		errs = append(errs, fmt.Sprintf("pipeline.fallback: %v", err))
	}
	if p.ShutdownGrace < 0 {
		errs = append(errs, fmt.Sprintf("pipeline.shutdowngrace must not be negative, got %v", p.ShutdownGrace))
	}
	if p.PublishTimeout < 0 {
		errs = append(errs, fmt.Sprintf("pipeline.publishtimeout must not be negative, got %v", p.PublishTimeout))
	}
	if len(p.Sources) == 0 {
		errs = append(errs, "pipeline.sources must list at least one source")
	}

	ids := make(map[int]bool, len(p.Sources))
	for i := range p.Sources {
		s := &p.Sources[i]
		if ids[s.ID] {
			errs = append(errs, fmt.Sprintf("pipeline.sources[%d]: duplicate id %d", i, s.ID))
		}
		ids[s.ID] = true

		if s.ID < 0 {
			errs = append(errs, fmt.Sprintf("pipeline.sources[%d]: id must not be negative", i))
		}
		if !sourceTypes[s.Type] {
			errs = append(errs, fmt.Sprintf("pipeline.sources[%d]: unknown type %q", i, s.Type))
		}
		if s.Type == "file" && s.Path == "" {
			errs = append(errs, fmt.Sprintf("pipeline.sources[%d]: file source requires a path", i))
		}
		if s.Channels < 0 || s.SampleRate < 0 || s.FrameSize < 0 {
			errs = append(errs, fmt.Sprintf("pipeline.sources[%d]: channels, samplerate and framesize must not be negative", i))
		}
		if s.Amplitude < 0 || s.Amplitude > 1 || s.Noise < 0 || s.Noise > 1 {
			errs = append(errs, fmt.Sprintf("pipeline.sources[%d]: amplitude and noise must be within [0, 1]", i))
		}
	}
	return errs
}

func validateSinksSettings(s *SinksSettings) []string {
	var errs []string

	policies := map[string]PolicySettings{
		"console": s.Console.Policy,
		"file":    s.File.Policy,
		"http":    s.HTTP.Policy,
		"queue":   s.Queue.Policy,
		"mqtt":    s.MQTT.Policy,
		"metrics": s.Metrics.Policy,
	}
	for name, p := range policies {
		if _, err := p.Policy(); err != nil {
			errs = append(errs, fmt.Sprintf("sinks.%s.policy: %v", name, err))
		}
	}

	if s.File.Enabled && s.File.Path == "" {
		errs = append(errs, "sinks.file.path is required when the file sink is enabled")
	}
	if s.HTTP.Enabled {
		if u, err := url.Parse(s.HTTP.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("sinks.http.url is not a valid url: %q", s.HTTP.URL))
		}
		if s.HTTP.Timeout <= 0 {
			errs = append(errs, "sinks.http.timeout must be positive")
		}
	}
	if s.Queue.Enabled {
		if _, err := s.Queue.BufferPolicy(); err != nil {
			errs = append(errs, fmt.Sprintf("sinks.queue: %v", err))
		}
	}
	if s.MQTT.Enabled {
		if s.MQTT.Broker == "" {
			errs = append(errs, "sinks.mqtt.broker is required when the mqtt sink is enabled")
		}
		if s.MQTT.QoS < 0 || s.MQTT.QoS > 2 {
			errs = append(errs, fmt.Sprintf("sinks.mqtt.qos must be 0, 1 or 2, got %d", s.MQTT.QoS))
		}
	}
	return errs
}

func validateWebServerSettings(w *WebServerSettings) error {
	if !w.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(w.Listen); err != nil {
		return fmt.Errorf("webserver.listen %q: %w", w.Listen, err)
	}
	return nil
}

// Policy converts the settings into a registration policy. An empty mode is
// unbounded.
func (p PolicySettings) Policy() (queue.Policy, error) {
	mode, err := queue.ParseMode(p.Mode)
	if err != nil {
		return queue.Policy{}, err
	}
	if mode == queue.Unbounded {
		return queue.UnboundedPolicy, nil
	}
	policy := queue.Bounded(p.Capacity, mode)
	return policy, policy.Validate()
}

// BufferPolicy is the policy of the queue sink's own buffer.
func (q QueueSinkSettings) BufferPolicy() (queue.Policy, error) {
	mode := queue.Block
	if q.OnFull != "" {
		parsed, err := queue.ParseMode(q.OnFull)
		if err != nil {
			return queue.Policy{}, err
		}
		mode = parsed
	}
	if mode == queue.Unbounded {
		return queue.UnboundedPolicy, nil
	}
	capacity := q.Capacity
	if capacity == 0 {
		capacity = DefaultQueueCapacity
	}
	policy := queue.Bounded(capacity, mode)
	return policy, policy.Validate()
}

// HubPolicy is the policy the queue sink is registered on the hub with. An
// explicit policy wins. Otherwise a blocking buffer gets the same bounded
// blocking policy so a full buffer holds the producer back instead of piling
// readings up in the hub.
func (q QueueSinkSettings) HubPolicy() (queue.Policy, error) {
	if q.Policy.Mode != "" {
		return q.Policy.Policy()
	}
	buffer, err := q.BufferPolicy()
	if err != nil {
		return queue.Policy{}, err
	}
	if buffer.Mode == queue.Block {
		return buffer, nil
	}
	return queue.UnboundedPolicy, nil
}
