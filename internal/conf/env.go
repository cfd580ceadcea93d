// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tphakala/dbstation/internal/errors"
)

// EnvPrefix prefixes every environment variable read by dbstation.
const EnvPrefix = "DBSTATION"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the explicitly validated environment variables. Any
// other key can still be set as DBSTATION_<KEY> with dots replaced by
// underscores.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "DBSTATION_DEBUG", validateEnvBool},
		{"pipeline.interval", "DBSTATION_PIPELINE_INTERVAL", validateEnvDuration},
		{"pipeline.fallback", "DBSTATION_PIPELINE_FALLBACK", validateEnvFallback},
		{"pipeline.shutdowngrace", "DBSTATION_PIPELINE_SHUTDOWNGRACE", validateEnvDuration},
		{"pipeline.publishtimeout", "DBSTATION_PIPELINE_PUBLISHTIMEOUT", validateEnvDuration},
		{"sinks.http.url", "DBSTATION_SINKS_HTTP_URL", validateEnvURL},
		{"sinks.mqtt.broker", "DBSTATION_SINKS_MQTT_BROKER", validateEnvURL},
		{"sinks.mqtt.username", "DBSTATION_SINKS_MQTT_USERNAME", nil},
		{"sinks.mqtt.password", "DBSTATION_SINKS_MQTT_PASSWORD", nil},
		{"webserver.listen", "DBSTATION_WEBSERVER_LISTEN", nil},
		{"sentry.enabled", "DBSTATION_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "DBSTATION_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var problems []string
	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			problems = append(problems, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}
		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				problems = append(problems, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, value, err))
			}
		}
	}

	if len(problems) > 0 {
		return errors.Newf("environment variable issues:\n  - %s", strings.Join(problems, "\n  - ")).
			Component(componentConf).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// loadDotEnv loads .env from the working directory and from the directory of
// configPath. Variables already set in the environment win.
func loadDotEnv(configPath string) error {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(configPath), ".env"))
	}

	var existing []string
	seen := make(map[string]bool)
	for _, path := range candidates {
		abs, err := filepath.Abs(path)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			existing = append(existing, abs)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return errors.New(err).
			Component(componentConf).
			Category(errors.CategoryConfiguration).
			Context("operation", "load_dotenv").
			Build()
	}
	return nil
}

// Environment variable validation functions

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true/false, 1/0, t/f")
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %v", d)
	}
	return nil
}

func validateEnvFallback(value string) error {
	switch value {
	case "zero", "previous":
		return nil
	default:
		return fmt.Errorf("must be one of: zero, previous")
	}
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("url must include scheme and host")
	}
	return nil
}
