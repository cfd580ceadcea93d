package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/dbstation/internal/queue"
)

func validSettings() *Settings {
	return &Settings{
		Pipeline: PipelineSettings{
			Interval: 100 * time.Millisecond,
			Fallback: "zero",
			Sources:  []SourceSettings{{ID: 0, Type: "malgo"}, {ID: 1, Type: "portaudio"}},
		},
		Sinks: SinksSettings{
			Console: ConsoleSinkSettings{Enabled: true},
			Queue:   QueueSinkSettings{Enabled: true, Capacity: 1000, OnFull: "block"},
		},
		WebServer: WebServerSettings{Enabled: true, Listen: ":8080"},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{name: "valid", mutate: func(*Settings) {}},
		{name: "zero interval", mutate: func(s *Settings) { s.Pipeline.Interval = 0 }, wantErr: "pipeline.interval"},
		{name: "unknown fallback", mutate: func(s *Settings) { s.Pipeline.Fallback = "last" }, wantErr: "pipeline.fallback"},
		{name: "negative publish timeout", mutate: func(s *Settings) { s.Pipeline.PublishTimeout = -time.Second }, wantErr: "pipeline.publishtimeout"},
		{name: "no sources", mutate: func(s *Settings) { s.Pipeline.Sources = nil }, wantErr: "at least one source"},
		{name: "duplicate id", mutate: func(s *Settings) { s.Pipeline.Sources[1].ID = 0 }, wantErr: "duplicate id"},
		{name: "unknown source type", mutate: func(s *Settings) { s.Pipeline.Sources[0].Type = "rtsp" }, wantErr: "unknown type"},
		{name: "file without path", mutate: func(s *Settings) { s.Pipeline.Sources[0].Type = "file" }, wantErr: "requires a path"},
		{name: "bad policy mode", mutate: func(s *Settings) { s.Sinks.HTTP.Policy.Mode = "spill" }, wantErr: "sinks.http.policy"},
		{name: "bounded without capacity", mutate: func(s *Settings) { s.Sinks.File.Policy.Mode = "drop" }, wantErr: "sinks.file.policy"},
		{name: "http without url", mutate: func(s *Settings) {
			s.Sinks.HTTP.Enabled = true
			s.Sinks.HTTP.Timeout = time.Second
		}, wantErr: "sinks.http.url"},
		{name: "mqtt qos", mutate: func(s *Settings) {
			s.Sinks.MQTT.Enabled = true
			s.Sinks.MQTT.Broker = "tcp://localhost:1883"
			s.Sinks.MQTT.QoS = 3
		}, wantErr: "qos"},
		{name: "bad listen address", mutate: func(s *Settings) { s.WebServer.Listen = "localhost" }, wantErr: "webserver.listen"},
		{name: "sentry without dsn", mutate: func(s *Settings) { s.Sentry.Enabled = true }, wantErr: "sentry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPolicySettings(t *testing.T) {
	t.Parallel()

	p, err := PolicySettings{}.Policy()
	require.NoError(t, err)
	assert.Equal(t, queue.UnboundedPolicy, p)

	p, err = PolicySettings{Mode: "block", Capacity: 8}.Policy()
	require.NoError(t, err)
	assert.Equal(t, queue.Bounded(8, queue.Block), p)

	_, err = PolicySettings{Mode: "drop"}.Policy()
	assert.Error(t, err)
}

func TestQueueBufferPolicy(t *testing.T) {
	t.Parallel()

	p, err := QueueSinkSettings{}.BufferPolicy()
	require.NoError(t, err)
	assert.Equal(t, queue.Bounded(DefaultQueueCapacity, queue.Block), p)

	p, err = QueueSinkSettings{OnFull: "unbounded"}.BufferPolicy()
	require.NoError(t, err)
	assert.Equal(t, queue.UnboundedPolicy, p)
}

func TestQueueHubPolicy(t *testing.T) {
	t.Parallel()

	p, err := QueueSinkSettings{Capacity: 5, OnFull: "block"}.HubPolicy()
	require.NoError(t, err)
	assert.Equal(t, queue.Bounded(5, queue.Block), p, "a blocking buffer holds the hub queue to the same bound")

	p, err = QueueSinkSettings{}.HubPolicy()
	require.NoError(t, err)
	assert.Equal(t, queue.Bounded(DefaultQueueCapacity, queue.Block), p)

	p, err = QueueSinkSettings{Capacity: 5, OnFull: "drop"}.HubPolicy()
	require.NoError(t, err)
	assert.Equal(t, queue.UnboundedPolicy, p, "a dropping buffer never blocks the worker")

	p, err = QueueSinkSettings{Capacity: 5, OnFull: "block", Policy: PolicySettings{Mode: "drop", Capacity: 3}}.HubPolicy()
	require.NoError(t, err)
	assert.Equal(t, queue.Bounded(3, queue.Drop), p, "an explicit hub policy wins")
}
