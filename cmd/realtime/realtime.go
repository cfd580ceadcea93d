package realtime

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/dbstation/internal/api"
	"github.com/tphakala/dbstation/internal/buildinfo"
	"github.com/tphakala/dbstation/internal/conf"
	"github.com/tphakala/dbstation/internal/errors"
	"github.com/tphakala/dbstation/internal/logging"
	"github.com/tphakala/dbstation/internal/station"
	"github.com/tphakala/dbstation/internal/telemetry"
)

const (
	stopTimeout  = 10 * time.Second
	flushTimeout = 2 * time.Second
)

// Command creates the command that samples the configured microphones until
// interrupted.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		ticks  uint64
		listen string
		noWeb  bool
	)

	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Sample sound levels in realtime",
		Long:  "Start sampling the configured audio sources and deliver decibel readings to the enabled sinks until SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				settings.WebServer.Listen = listen
			}
			if noWeb {
				settings.WebServer.Enabled = false
			}
			return Run(cmd.Context(), settings, ticks)
		},
	}

	cmd.Flags().Uint64Var(&ticks, "ticks", 0, "Stop after this many ticks (0 runs until interrupted)")
	cmd.Flags().StringVar(&listen, "listen", "", "Override the control API listen address")
	cmd.Flags().BoolVar(&noWeb, "no-web", false, "Disable the control API")

	return cmd
}

// Run starts the station and the control API and blocks until ctx is done, a
// termination signal arrives or a run reaches the tick limit. Stopping and
// starting the pipeline through the API does not end Run.
func Run(ctx context.Context, settings *conf.Settings, ticks uint64) error {
	logger := logging.ForService("realtime")

	if err := telemetry.InitSentry(settings, telemetry.WithRelease(buildinfo.Current().Release())); err != nil {
		logger.Warn("failed to initialize error reporting", "error", err)
	}
	defer telemetry.Flush(flushTimeout)

	st, err := station.New(settings, station.WithTickLimit(ticks))
	if err != nil {
		return err
	}

	if settings.WebServer.Enabled {
		server, err := api.New(st, settings.WebServer, api.WithMetricsHandler(st.Metrics().Handler()))
		if err != nil {
			return err
		}
		server.Start()
		defer func() {
			if err := server.Shutdown(context.Background()); err != nil {
				logger.Warn("failed to stop HTTP server", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.Start(ctx); err != nil {
		return err
	}
	logger.Info("station running",
		"sources", len(settings.Pipeline.Sources),
		"interval", settings.Pipeline.Interval,
		"sinks", len(st.Registrations()),
	)

	// A stop through the API leaves the process serving until a signal.
	// LimitReached only fires with a tick limit and follows API restarts.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case <-st.LimitReached():
		logger.Info("tick limit reached", "ticks", ticks)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := st.Close(stopCtx); err != nil {
		return errors.New(err).
			Component("realtime").
			Category(errors.CategoryLifecycle).
			Context("operation", "stop_station").
			Build()
	}
	return nil
}
