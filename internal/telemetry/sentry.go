// Package telemetry provides opt-in, privacy filtered error reporting.
package telemetry

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/dbstation/internal/conf"
	"github.com/tphakala/dbstation/internal/errors"
	"github.com/tphakala/dbstation/internal/logging"
)

var initialized atomic.Bool

// Option adjusts the sentry client options before Init.
type Option func(*sentry.ClientOptions)

// WithTransport replaces the HTTP transport.
func WithTransport(t sentry.Transport) Option {
	return func(o *sentry.ClientOptions) { o.Transport = t }
}

// WithRelease sets the release reported with every event.
func WithRelease(release string) Option {
	return func(o *sentry.ClientOptions) { o.Release = release }
}

// InitSentry initializes the Sentry SDK when reporting is enabled and
// registers it as the reporter for enhanced errors. Reporting is opt-in; a
// disabled configuration is not an error.
func InitSentry(settings *conf.Settings, opts ...Option) error {
	logger := logging.ForService("telemetry")
	if settings == nil || !settings.Sentry.Enabled {
		logger.Info("sentry telemetry is disabled")
		return nil
	}

	options := sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		SampleRate:       1.0,
		Debug:            settings.Sentry.Debug,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	if err := sentry.Init(options); err != nil {
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("component", "dbstation")
		scope.SetContext("application", map[string]any{
			"name":     "dbstation",
			"sources":  len(settings.Pipeline.Sources),
			"interval": settings.Pipeline.Interval.String(),
		})
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	initialized.Store(true)
	logger.Info("sentry telemetry initialized", slog.Bool("debug", settings.Sentry.Debug))
	return nil
}

// Enabled reports whether InitSentry installed a client.
func Enabled() bool { return initialized.Load() }

// applyPrivacyFilters strips host and user identifying data from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}

// Flush waits up to timeout for queued events and detaches the reporter.
func Flush(timeout time.Duration) {
	if !initialized.Swap(false) {
		return
	}
	sentry.Flush(timeout)
	errors.SetTelemetryReporter(nil)
}
