package config

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/dbstation/internal/conf"
)

func TestConfigCommandRedactsSecrets(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{
		Sinks:  conf.SinksSettings{MQTT: conf.MQTTSinkSettings{Broker: "tcp://broker:1883", Password: "hunter2"}},
		Sentry: conf.SentrySettings{DSN: "https://key@sentry.example.com/1"},
	}

	cmd := Command(settings)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	text := out.String()
	assert.Contains(t, text, "tcp://broker:1883")
	assert.NotContains(t, text, "hunter2")
	assert.NotContains(t, text, "key@sentry")
	assert.Equal(t, "hunter2", settings.Sinks.MQTT.Password, "settings must not be modified")
}
