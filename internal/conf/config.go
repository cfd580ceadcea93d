// config.go: settings of the dbstation application and the functions that load them.
package conf

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/dbstation/internal/errors"
)

//go:embed config.yaml
var configFiles embed.FS

const componentConf = "conf"

// LogConfig controls the rotated JSON log file.
type LogConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxsize"`    // megabytes before rotation
	MaxBackups int    `yaml:"maxbackups"` // rotated files kept
	MaxAge     int    `yaml:"maxage"`     // days a rotated file is kept
}

// MainSettings holds application wide settings.
type MainSettings struct {
	Name string    `yaml:"name"`
	Log  LogConfig `yaml:"log"`
}

// SourceSettings describes one microphone or synthetic source.
type SourceSettings struct {
	ID         int     `yaml:"id"`
	Type       string  `yaml:"type"`   // malgo, portaudio, file or tone
	Device     string  `yaml:"device"` // device name, index or "default"
	Channels   int     `yaml:"channels"`
	SampleRate int     `yaml:"samplerate"`
	FrameSize  int     `yaml:"framesize"` // frames per read
	Path       string  `yaml:"path,omitempty"`
	Loop       bool    `yaml:"loop,omitempty"`
	Frequency  float64 `yaml:"frequency,omitempty"`
	Amplitude  float64 `yaml:"amplitude,omitempty"`
	Noise      float64 `yaml:"noise,omitempty"`
}

// PipelineSettings controls the producer.
type PipelineSettings struct {
	Interval      time.Duration `yaml:"interval"`      // sampling period
	Fallback      string        `yaml:"fallback"`      // zero or previous
	ShutdownGrace time.Duration `yaml:"shutdowngrace"` // time sinks get to drain on stop
	// PublishTimeout bounds the wait on a full blocking sink queue. Zero
	// means one interval.
	PublishTimeout time.Duration    `yaml:"publishtimeout"`
	Sources        []SourceSettings `yaml:"sources"`
}

// PolicySettings is the buffering policy of a sink registration.
type PolicySettings struct {
	Mode     string `yaml:"mode"` // unbounded, block or drop
	Capacity int    `yaml:"capacity"`
}

// ConsoleSinkSettings enables printing readings to stdout.
type ConsoleSinkSettings struct {
	Enabled bool           `yaml:"enabled"`
	Policy  PolicySettings `yaml:"policy"`
}

// FileSinkSettings enables appending readings to a JSON Lines file.
type FileSinkSettings struct {
	Enabled bool           `yaml:"enabled"`
	Path    string         `yaml:"path"`
	Policy  PolicySettings `yaml:"policy"`
}

// HTTPSinkSettings enables posting readings to an endpoint.
type HTTPSinkSettings struct {
	Enabled bool           `yaml:"enabled"`
	URL     string         `yaml:"url"`
	Timeout time.Duration  `yaml:"timeout"` // per attempt
	Policy  PolicySettings `yaml:"policy"`
}

// QueueSinkSettings enables the in-process reading queue served by the API.
type QueueSinkSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Capacity int    `yaml:"capacity"`
	OnFull   string `yaml:"onfull"` // block or drop
	// Policy is the hub-side policy. Left empty it follows the buffer: a
	// blocking buffer is registered with the same bounded blocking policy.
	Policy PolicySettings `yaml:"policy"`
}

// MQTTSinkSettings enables publishing readings to a broker.
type MQTTSinkSettings struct {
	Enabled  bool           `yaml:"enabled"`
	Broker   string         `yaml:"broker"`
	ClientID string         `yaml:"clientid"`
	Username string         `yaml:"username"`
	Password string         `yaml:"password"`
	Topic    string         `yaml:"topic"`
	QoS      int            `yaml:"qos"`
	Retain   bool           `yaml:"retain"`
	Policy   PolicySettings `yaml:"policy"`
}

// MetricsSinkSettings enables exporting readings as prometheus metrics.
type MetricsSinkSettings struct {
	Enabled bool           `yaml:"enabled"`
	Policy  PolicySettings `yaml:"policy"`
}

// SinksSettings holds the configuration of every sink.
type SinksSettings struct {
	Console ConsoleSinkSettings `yaml:"console"`
	File    FileSinkSettings    `yaml:"file"`
	HTTP    HTTPSinkSettings    `yaml:"http"`
	Queue   QueueSinkSettings   `yaml:"queue"`
	MQTT    MQTTSinkSettings    `yaml:"mqtt"`
	Metrics MetricsSinkSettings `yaml:"metrics"`
}

// WebServerSettings controls the HTTP control API.
type WebServerSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// SentrySettings controls error reporting.
type SentrySettings struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	Debug   bool   `yaml:"debug"`
}

// Settings is the complete application configuration.
type Settings struct {
	Debug     bool              `yaml:"debug"`
	Main      MainSettings      `yaml:"main"`
	Pipeline  PipelineSettings  `yaml:"pipeline"`
	Sinks     SinksSettings     `yaml:"sinks"`
	WebServer WebServerSettings `yaml:"webserver"`
	Sentry    SentrySettings    `yaml:"sentry"`
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the optional .env file, the configuration file and the
// environment into a validated Settings. An empty configPath searches the
// default config paths and creates config.yaml from the embedded default when
// none exists; an explicit path that does not exist is created the same way.
func Load(configPath string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := loadDotEnv(configPath); err != nil {
		return nil, err
	}

	v := viper.New()
	if err := initViper(v, configPath); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component(componentConf).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_settings").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settings, nil
}

// initViper sets defaults, binds the environment and reads the config file.
func initViper(v *viper.Viper, configPath string) error {
	v.SetConfigType("yaml")
	setDefaultConfig(v)

	if err := bindEnvVars(v); err != nil {
		return err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
			if err := writeDefaultConfig(configPath); err != nil {
				return err
			}
		}
	} else {
		v.SetConfigName("config")
		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return err
		}
		for _, path := range configPaths {
			v.AddConfigPath(path)
		}
	}

	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if configPath == "" && errors.As(err, &notFound) {
		return createDefaultConfig(v)
	}
	return errors.New(err).
		Component(componentConf).
		Category(errors.CategoryConfiguration).
		Context("operation", "read_config").
		FileContext(configPath).
		Build()
}

// createDefaultConfig writes the embedded default to the first default config path.
func createDefaultConfig(v *viper.Viper) error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	if err := writeDefaultConfig(configPath); err != nil {
		return err
	}
	v.SetConfigFile(configPath)
	return v.ReadInConfig()
}

func writeDefaultConfig(configPath string) error {
	data, err := DefaultConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return errors.FileError(err, configPath)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.FileError(err, configPath)
	}
	GetLogger().Info("created default config file", "path", configPath)
	return nil
}

// DefaultConfig returns the embedded default config.yaml.
func DefaultConfig() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, errors.New(err).
			Component(componentConf).
			Category(errors.CategoryConfiguration).
			Context("operation", "read_embedded_config").
			Build()
	}
	return data, nil
}

// GetSettings returns the settings of the last successful Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// YAML returns the settings as a YAML document.
func (s *Settings) YAML() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, errors.New(err).
			Component(componentConf).
			Category(errors.CategoryConfiguration).
			Context("operation", "marshal_settings").
			Build()
	}
	return data, nil
}

// Redacted returns a copy with secrets removed, for printing.
func (s *Settings) Redacted() *Settings {
	c := *s
	c.Pipeline.Sources = append([]SourceSettings(nil), s.Pipeline.Sources...)
	if c.Sinks.MQTT.Password != "" {
		c.Sinks.MQTT.Password = redactedValue
	}
	if c.Sentry.DSN != "" {
		c.Sentry.DSN = redactedValue
	}
	return &c
}

const redactedValue = "[redacted]"
