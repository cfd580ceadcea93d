// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default values shared with other packages.
const (
	DefaultInterval      = 100 * time.Millisecond
	DefaultShutdownGrace = 2 * time.Second
	DefaultHTTPTimeout   = 5 * time.Second
	DefaultQueueCapacity = 1000
	DefaultListen        = "127.0.0.1:8080"
)

// setDefaultConfig sets default values for every configuration key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.name", "dbstation")
	v.SetDefault("main.log.enabled", false)
	v.SetDefault("main.log.path", "logs/dbstation.log")
	v.SetDefault("main.log.maxsize", 10)
	v.SetDefault("main.log.maxbackups", 3)
	v.SetDefault("main.log.maxage", 28)

	v.SetDefault("pipeline.interval", DefaultInterval)
	v.SetDefault("pipeline.fallback", "zero")
	v.SetDefault("pipeline.shutdowngrace", DefaultShutdownGrace)
	v.SetDefault("pipeline.publishtimeout", time.Duration(0))
	v.SetDefault("pipeline.sources", []map[string]any{
		{"id": 0, "type": "malgo", "device": "default", "channels": 1, "samplerate": 44100, "framesize": 1024},
	})

	v.SetDefault("sinks.console.enabled", true)
	v.SetDefault("sinks.console.policy.mode", "unbounded")

	v.SetDefault("sinks.file.enabled", false)
	v.SetDefault("sinks.file.path", "data/readings.jsonl")
	v.SetDefault("sinks.file.policy.mode", "unbounded")

	v.SetDefault("sinks.http.enabled", false)
	v.SetDefault("sinks.http.url", "http://127.0.0.1:5000/signal_strength")
	v.SetDefault("sinks.http.timeout", DefaultHTTPTimeout)
	v.SetDefault("sinks.http.policy.mode", "drop")
	v.SetDefault("sinks.http.policy.capacity", 100)

	v.SetDefault("sinks.queue.enabled", true)
	v.SetDefault("sinks.queue.capacity", DefaultQueueCapacity)
	v.SetDefault("sinks.queue.onfull", "block")

	v.SetDefault("sinks.mqtt.enabled", false)
	v.SetDefault("sinks.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("sinks.mqtt.clientid", "dbstation")
	v.SetDefault("sinks.mqtt.topic", "dbstation/level")
	v.SetDefault("sinks.mqtt.qos", 0)
	v.SetDefault("sinks.mqtt.retain", false)
	v.SetDefault("sinks.mqtt.policy.mode", "drop")
	v.SetDefault("sinks.mqtt.policy.capacity", 100)

	v.SetDefault("sinks.metrics.enabled", true)
	v.SetDefault("sinks.metrics.policy.mode", "drop")
	v.SetDefault("sinks.metrics.policy.capacity", 10)

	v.SetDefault("webserver.enabled", true)
	v.SetDefault("webserver.listen", DefaultListen)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.debug", false)
}
