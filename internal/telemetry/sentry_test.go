package telemetry

import (
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/dbstation/internal/conf"
	"github.com/tphakala/dbstation/internal/errors"
)

const testDSN = "https://public@o0.ingest.example.com/1"

func TestInitSentryDisabled(t *testing.T) {
	settings := &conf.Settings{}

	require.NoError(t, InitSentry(settings))
	assert.False(t, Enabled())
	assert.Nil(t, errors.GetTelemetryReporter())
}

func TestInitSentryReportsHighPriorityErrors(t *testing.T) {
	transport := NewMockTransport()
	settings := &conf.Settings{Sentry: conf.SentrySettings{Enabled: true, DSN: testDSN}}

	require.NoError(t, InitSentry(settings, WithTransport(transport), WithRelease("dbstation@test")))
	t.Cleanup(func() { Flush(time.Second) })
	require.True(t, Enabled())

	_ = errors.Newf("device vanished").
		Component("audiocore").
		Category(errors.CategoryAudioSource).
		Priority(errors.PriorityHigh).
		Context("operation", "open_source").
		Build()

	_ = errors.Newf("sink hiccup").
		Component("sinks").
		Category(errors.CategorySinkDelivery).
		Priority(errors.PriorityLow).
		Build()

	require.True(t, transport.WaitForEventCount(1, 2*time.Second))
	events := transport.Events()
	require.Len(t, events, 1)

	event := events[0]
	assert.Contains(t, event.Message, "device vanished")
	assert.Empty(t, event.ServerName)
	assert.NotContains(t, event.Contexts, "device")
	assert.NotContains(t, event.Contexts, "os")
	assert.Equal(t, "audiocore", event.Tags["component"])
}

func TestInitSentryRejectsMalformedDSN(t *testing.T) {
	settings := &conf.Settings{Sentry: conf.SentrySettings{Enabled: true, DSN: "not a dsn"}}

	err := InitSentry(settings, WithTransport(NewMockTransport()))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.False(t, Enabled())
}

func TestApplyPrivacyFilters(t *testing.T) {
	t.Parallel()

	event := &sentry.Event{
		ServerName: "raspberrypi.local",
		User:       sentry.User{ID: "42", IPAddress: "10.0.0.2"},
		Contexts: map[string]sentry.Context{
			"device":      {"arch": "arm64"},
			"os":          {"name": "linux"},
			"runtime":     {"name": "go"},
			"application": {"name": "dbstation"},
		},
		Extra: map[string]any{"component": "sinks", "path": "/home/pi/levels.jsonl"},
		Tags:  map[string]string{"hostname": "pi", "server_name": "pi", "category": "sink-delivery"},
	}

	filtered := applyPrivacyFilters(event)

	assert.Empty(t, filtered.ServerName)
	assert.True(t, filtered.User.IsEmpty())
	assert.Equal(t, []string{"application"}, keys(filtered.Contexts))
	assert.Equal(t, map[string]any{"component": "sinks"}, filtered.Extra)
	assert.Equal(t, map[string]string{"category": "sink-delivery"}, filtered.Tags)
}

func keys(m map[string]sentry.Context) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
