// Package api serves the HTTP control interface of dbstation: pipeline start
// and stop, sink registrations, device listing, the reading queue and the
// Prometheus metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/buildinfo"
	"github.com/tphakala/dbstation/internal/conf"
	"github.com/tphakala/dbstation/internal/errors"
	"github.com/tphakala/dbstation/internal/hub"
	"github.com/tphakala/dbstation/internal/logging"
)

const (
	componentAPI = "api"

	readTimeout     = 10 * time.Second
	writeTimeout    = 30 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Pipeline is the station control surface the API exposes.
type Pipeline interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() audiocore.State
	Ticks() uint64
	Sources() []audiocore.SourceHandle
	ConfiguredSources() []conf.SourceSettings
	Registrations() []hub.RegistrationInfo
	RegisterSink(name string) (hub.RegistrationID, error)
	Unregister(id hub.RegistrationID) error
	Readings(limit int) ([]audiocore.Reading, error)
	Devices(ctx context.Context, backend string, all bool) ([]audiocore.DeviceInfo, error)
}

// Server is the echo instance serving the control API.
type Server struct {
	echo      *echo.Echo
	pipeline  Pipeline
	listen    string
	metrics   http.Handler
	logger    *slog.Logger
	build     buildinfo.Info
	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a server for pipeline listening on settings.Listen.
func New(pipeline Pipeline, settings conf.WebServerSettings, opts ...ServerOption) (*Server, error) {
	if pipeline == nil {
		return nil, errors.Newf("api server requires a pipeline").
			Component(componentAPI).
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Server{
		pipeline:  pipeline,
		listen:    settings.Listen,
		logger:    logging.ForService(componentAPI),
		build:     buildinfo.Current(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.listen == "" {
		s.listen = conf.DefaultListen
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = readTimeout
	s.echo.Server.WriteTimeout = writeTimeout
	s.echo.Server.IdleTimeout = idleTimeout

	s.echo.Use(echomw.Recover())
	s.echo.Use(newRequestLogger(s.logger))

	s.initRoutes()
	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves in a background goroutine and returns immediately.
func (s *Server) Start() {
	go func() {
		s.logger.Info("starting HTTP server", "address", s.listen)
		if err := s.echo.Start(s.listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "address", s.listen, "error", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for the active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return errors.New(err).
			Component(componentAPI).
			Category(errors.CategoryNetwork).
			Context("operation", "shutdown_http_server").
			Build()
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// newRequestLogger logs every request except metrics scrapes.
func newRequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.String("ip", v.RemoteIP),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(c.Request().Context(), slog.LevelDebug, "request", attrs...)
			return nil
		},
	})
}
