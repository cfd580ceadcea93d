package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/conf"
	"github.com/tphakala/dbstation/internal/errors"
	"github.com/tphakala/dbstation/internal/hub"
)

const (
	defaultReadingsLimit = 100
	maxReadingsLimit     = 1000
)

// PipelineStatus is the response of GET /api/v1/pipeline.
type PipelineStatus struct {
	State      string                 `json:"state"`
	Ticks      uint64                 `json:"ticks"`
	Running    []SourceInfo           `json:"running_sources"`
	Configured []conf.SourceSettings  `json:"configured_sources"`
	Sinks      []hub.RegistrationInfo `json:"sinks"`
}

// SourceInfo describes a running source.
type SourceInfo struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	FrameSize  int    `json:"frame_size"`
}

// ControlResult is the response of the start and stop actions.
type ControlResult struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Action    string    `json:"action"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// RegisterSinkRequest is the body of POST /api/v1/sinks.
type RegisterSinkRequest struct {
	Sink string `json:"sink"`
}

// ReadingsResponse is the response of GET /api/v1/readings.
type ReadingsResponse struct {
	Count    int                `json:"count"`
	Readings []audiocore.Record `json:"readings"`
}

func (s *Server) initRoutes() {
	s.echo.GET("/health", s.healthCheck)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/health", s.healthCheck)
	v1.GET("/pipeline", s.getPipeline)
	v1.POST("/pipeline/start", s.startPipeline)
	v1.POST("/pipeline/stop", s.stopPipeline)
	v1.GET("/devices", s.listDevices)
	v1.GET("/sinks", s.listSinks)
	v1.POST("/sinks", s.registerSink)
	v1.DELETE("/sinks/:id", s.unregisterSink)
	v1.GET("/readings", s.drainReadings)

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        s.build.Version,
		"build_date":     s.build.BuildDate,
		"pipeline":       s.pipeline.State().String(),
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

func (s *Server) getPipeline(c echo.Context) error {
	handles := s.pipeline.Sources()
	running := make([]SourceInfo, 0, len(handles))
	for _, h := range handles {
		running = append(running, SourceInfo{
			ID:         h.ID,
			Name:       h.Name,
			Channels:   h.Channels,
			SampleRate: h.SampleRate,
			FrameSize:  h.FrameSize,
		})
	}
	return c.JSON(http.StatusOK, PipelineStatus{
		State:      s.pipeline.State().String(),
		Ticks:      s.pipeline.Ticks(),
		Running:    running,
		Configured: s.pipeline.ConfiguredSources(),
		Sinks:      s.pipeline.Registrations(),
	})
}

func (s *Server) startPipeline(c echo.Context) error {
	if err := s.pipeline.Start(c.Request().Context()); err != nil {
		return s.handleError(c, err, "Failed to start pipeline")
	}
	return c.JSON(http.StatusOK, s.controlResult("start", "Pipeline started"))
}

func (s *Server) stopPipeline(c echo.Context) error {
	err := s.pipeline.Stop(c.Request().Context())
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, s.controlResult("stop", "Pipeline stopped"))
	case errors.Is(err, audiocore.ErrNothingToStop):
		return c.JSON(http.StatusOK, s.controlResult("stop", "nothing to stop"))
	default:
		return s.handleError(c, err, "Failed to stop pipeline")
	}
}

func (s *Server) controlResult(action, message string) ControlResult {
	return ControlResult{
		Success:   true,
		Message:   message,
		Action:    action,
		State:     s.pipeline.State().String(),
		Timestamp: time.Now(),
	}
}

func (s *Server) listDevices(c echo.Context) error {
	all, _ := strconv.ParseBool(c.QueryParam("all"))
	devices, err := s.pipeline.Devices(c.Request().Context(), c.QueryParam("backend"), all)
	if err != nil {
		return s.handleError(c, err, "Failed to list input devices")
	}
	if devices == nil {
		devices = []audiocore.DeviceInfo{}
	}
	return c.JSON(http.StatusOK, devices)
}

func (s *Server) listSinks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.pipeline.Registrations())
}

func (s *Server) registerSink(c echo.Context) error {
	var req RegisterSinkRequest
	if err := c.Bind(&req); err != nil || req.Sink == "" {
		return s.handleError(c,
			errors.Newf("request body must name a sink").
				Component(componentAPI).
				Category(errors.CategoryValidation).
				Build(),
			"Invalid sink request")
	}

	id, err := s.pipeline.RegisterSink(req.Sink)
	if err != nil {
		return s.handleError(c, err, "Failed to register sink")
	}
	for _, reg := range s.pipeline.Registrations() {
		if reg.ID == id {
			return c.JSON(http.StatusCreated, reg)
		}
	}
	return c.JSON(http.StatusCreated, hub.RegistrationInfo{ID: id, Sink: req.Sink})
}

func (s *Server) unregisterSink(c echo.Context) error {
	id := hub.RegistrationID(c.Param("id"))
	if err := s.pipeline.Unregister(id); err != nil {
		return s.handleError(c, err, "Failed to remove sink")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) drainReadings(c echo.Context) error {
	limit := defaultReadingsLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return s.handleError(c,
				errors.Newf("limit must be a positive integer, got %q", raw).
					Component(componentAPI).
					Category(errors.CategoryValidation).
					Build(),
				"Invalid limit")
		}
		limit = min(n, maxReadingsLimit)
	}

	readings, err := s.pipeline.Readings(limit)
	if err != nil {
		return s.handleError(c, err, "Failed to read queued readings")
	}
	records := make([]audiocore.Record, 0, len(readings))
	for _, r := range readings {
		records = append(records, r.Record())
	}
	return c.JSON(http.StatusOK, ReadingsResponse{Count: len(records), Readings: records})
}
