package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/dbstation/internal/queue"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	settings, err := Load(path)
	require.NoError(t, err)
	assert.FileExists(t, path)

	assert.Equal(t, "dbstation", settings.Main.Name)
	assert.Equal(t, DefaultInterval, settings.Pipeline.Interval)
	assert.Equal(t, "zero", settings.Pipeline.Fallback)
	assert.Equal(t, DefaultShutdownGrace, settings.Pipeline.ShutdownGrace)
	require.Len(t, settings.Pipeline.Sources, 1)
	assert.Equal(t, "malgo", settings.Pipeline.Sources[0].Type)
	assert.Equal(t, 44100, settings.Pipeline.Sources[0].SampleRate)

	assert.True(t, settings.Sinks.Console.Enabled)
	assert.True(t, settings.Sinks.Queue.Enabled)
	assert.Equal(t, 1000, settings.Sinks.Queue.Capacity)
	hubPolicy, err := settings.Sinks.Queue.HubPolicy()
	require.NoError(t, err)
	assert.Equal(t, queue.Bounded(1000, queue.Block), hubPolicy, "the default queue sink blocks at the hub too")
	assert.Zero(t, settings.Pipeline.PublishTimeout)
	assert.Equal(t, 5*time.Second, settings.Sinks.HTTP.Timeout)
	assert.Equal(t, DefaultListen, settings.WebServer.Listen)
	assert.Same(t, settings, GetSettings())
}

func TestLoadOverridesAndPartialSections(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  interval: 250ms
  fallback: previous
  sources:
    - id: 0
      type: tone
      frequency: 440
      amplitude: 0.2
    - id: 1
      type: file
      path: /tmp/clip.wav
      loop: true
sinks:
  console:
    enabled: false
  file:
    enabled: true
    path: /tmp/readings.jsonl
  queue:
    capacity: 5
    onfull: drop
`)

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, settings.Pipeline.Interval)
	assert.Equal(t, "previous", settings.Pipeline.Fallback)
	require.Len(t, settings.Pipeline.Sources, 2)
	assert.InDelta(t, 440, settings.Pipeline.Sources[0].Frequency, 0)
	assert.True(t, settings.Pipeline.Sources[1].Loop)

	assert.False(t, settings.Sinks.Console.Enabled)
	assert.Equal(t, "unbounded", settings.Sinks.Console.Policy.Mode, "defaults fill keys the file leaves out")
	assert.True(t, settings.Sinks.File.Enabled)

	policy, err := settings.Sinks.Queue.BufferPolicy()
	require.NoError(t, err)
	assert.Equal(t, queue.Bounded(5, queue.Drop), policy)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("DBSTATION_PIPELINE_INTERVAL", "50ms")
	t.Setenv("DBSTATION_SINKS_MQTT_PASSWORD", "s3cret")
	t.Setenv("DBSTATION_WEBSERVER_ENABLED", "false")

	settings, err := Load(writeConfig(t, "debug: true\n"))
	require.NoError(t, err)

	assert.True(t, settings.Debug)
	assert.Equal(t, 50*time.Millisecond, settings.Pipeline.Interval)
	assert.Equal(t, "s3cret", settings.Sinks.MQTT.Password)
	assert.False(t, settings.WebServer.Enabled, "keys without an explicit binding follow the prefix")
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("DBSTATION_PIPELINE_FALLBACK", "repeat")

	_, err := Load(writeConfig(t, "debug: false\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DBSTATION_PIPELINE_FALLBACK")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DBSTATION_SINKS_HTTP_URL=http://collector.local:9000/levels\n"), 0o600))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sinks:\n  http:\n    enabled: true\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("DBSTATION_SINKS_HTTP_URL") })

	settings, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://collector.local:9000/levels", settings.Sinks.HTTP.URL)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	_, err := Load(writeConfig(t, "pipeline: [unterminated\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "pipeline:\n  interval: -1s\n"))
	require.Error(t, err)
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Error(), "pipeline.interval")
}

func TestSettingsYAMLRedacted(t *testing.T) {
	t.Parallel()

	s := &Settings{
		Pipeline: PipelineSettings{Sources: []SourceSettings{{ID: 0, Type: "tone"}}},
		Sinks:    SinksSettings{MQTT: MQTTSinkSettings{Password: "hunter2"}},
		Sentry:   SentrySettings{DSN: "https://key@sentry.example/1"},
	}
	red := s.Redacted()
	assert.Equal(t, "hunter2", s.Sinks.MQTT.Password, "the original is untouched")

	data, err := red.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
	assert.NotContains(t, string(data), "sentry.example")

	var back map[string]any
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Contains(t, back, "pipeline")
}

func TestEmbeddedDefaultMatchesDefaults(t *testing.T) {
	t.Parallel()

	data, err := DefaultConfig()
	require.NoError(t, err)

	var doc Settings
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, "dbstation", doc.Main.Name)
	assert.Equal(t, DefaultListen, doc.WebServer.Listen)
	assert.Equal(t, DefaultQueueCapacity, doc.Sinks.Queue.Capacity)
}
