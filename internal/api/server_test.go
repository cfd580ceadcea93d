package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/dbstation/internal/audiocore"
	"github.com/tphakala/dbstation/internal/audiocore/sources"
	"github.com/tphakala/dbstation/internal/conf"
	"github.com/tphakala/dbstation/internal/errors"
	"github.com/tphakala/dbstation/internal/hub"
	"github.com/tphakala/dbstation/internal/station"
)

// fakePipeline records calls and returns canned results.
type fakePipeline struct {
	state       audiocore.State
	startErr    error
	stopErr     error
	readings    []audiocore.Reading
	readingsErr error
	devices     []audiocore.DeviceInfo
	regs        []hub.RegistrationInfo

	lastLimit   int
	lastBackend string
	lastAll     bool
	removed     []hub.RegistrationID
	added       []string
}

func (f *fakePipeline) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.state = audiocore.StateRunning
	return nil
}

func (f *fakePipeline) Stop(context.Context) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.state = audiocore.StateIdle
	return nil
}

func (f *fakePipeline) State() audiocore.State { return f.state }
func (f *fakePipeline) Ticks() uint64          { return 42 }

func (f *fakePipeline) Sources() []audiocore.SourceHandle {
	return []audiocore.SourceHandle{{ID: 0, Name: "tone", Channels: 1, SampleRate: 8000, FrameSize: 256}}
}

func (f *fakePipeline) ConfiguredSources() []conf.SourceSettings {
	return []conf.SourceSettings{{ID: 0, Type: "tone"}}
}

func (f *fakePipeline) Registrations() []hub.RegistrationInfo { return f.regs }

func (f *fakePipeline) RegisterSink(name string) (hub.RegistrationID, error) {
	switch name {
	case "console", "file":
	default:
		return "", errors.New(station.ErrUnknownSink).
			Component("station").
			Category(errors.CategoryValidation).
			Build()
	}
	for _, r := range f.regs {
		if r.Sink == name {
			return "", errors.New(station.ErrSinkRegistered).
				Component("station").
				Category(errors.CategoryConflict).
				Build()
		}
	}
	id := hub.RegistrationID("reg-" + name)
	f.regs = append(f.regs, hub.RegistrationInfo{ID: id, Sink: name, Policy: "unbounded"})
	f.added = append(f.added, name)
	return id, nil
}

func (f *fakePipeline) Unregister(id hub.RegistrationID) error {
	for _, r := range f.regs {
		if r.ID == id {
			f.removed = append(f.removed, id)
			return nil
		}
	}
	return errors.New(hub.ErrRegistrationNotFound).
		Component("hub").
		Category(errors.CategoryNotFound).
		Build()
}

func (f *fakePipeline) Readings(limit int) ([]audiocore.Reading, error) {
	f.lastLimit = limit
	return f.readings, f.readingsErr
}

func (f *fakePipeline) Devices(_ context.Context, backend string, all bool) ([]audiocore.DeviceInfo, error) {
	f.lastBackend, f.lastAll = backend, all
	return f.devices, nil
}

func newTestServer(t *testing.T, p Pipeline, opts ...ServerOption) *Server {
	t.Helper()
	s, err := New(p, conf.WebServerSettings{Listen: "127.0.0.1:0"}, opts...)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, http.NoBody))
	return rec
}

func doJSON(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakePipeline{state: audiocore.StateRunning})
	for _, path := range []string{"/health", "/api/v1/health"} {
		rec := do(t, s, http.MethodGet, path)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[map[string]any](t, rec)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "running", body["pipeline"])
		assert.Equal(t, "unknown", body["version"])
	}
}

func TestGetPipeline(t *testing.T) {
	t.Parallel()

	p := &fakePipeline{
		state: audiocore.StateRunning,
		regs:  []hub.RegistrationInfo{{ID: "a", Sink: "console", Policy: "unbounded", Delivered: 7}},
	}
	rec := do(t, newTestServer(t, p), http.MethodGet, "/api/v1/pipeline")
	require.Equal(t, http.StatusOK, rec.Code)

	status := decode[PipelineStatus](t, rec)
	assert.Equal(t, "running", status.State)
	assert.Equal(t, uint64(42), status.Ticks)
	require.Len(t, status.Running, 1)
	assert.Equal(t, 8000, status.Running[0].SampleRate)
	require.Len(t, status.Sinks, 1)
	assert.Equal(t, uint64(7), status.Sinks[0].Delivered)
}

func TestStartAndStop(t *testing.T) {
	t.Parallel()

	p := &fakePipeline{}
	s := newTestServer(t, p)

	rec := do(t, s, http.MethodPost, "/api/v1/pipeline/start")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", decode[ControlResult](t, rec).State)

	rec = do(t, s, http.MethodPost, "/api/v1/pipeline/stop")
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[ControlResult](t, rec)
	assert.Equal(t, "idle", result.State)
	assert.Equal(t, "Pipeline stopped", result.Message)
}

func TestStopWhenIdleReportsNothingToStop(t *testing.T) {
	t.Parallel()

	p := &fakePipeline{stopErr: errors.New(audiocore.ErrNothingToStop).
		Component("audiocore").
		Category(errors.CategoryLifecycle).
		Build()}

	rec := do(t, newTestServer(t, p), http.MethodPost, "/api/v1/pipeline/stop")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nothing to stop", decode[ControlResult](t, rec).Message)
}

func TestControlErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		category errors.ErrorCategory
		want     int
	}{
		{"lifecycle", errors.CategoryLifecycle, http.StatusConflict},
		{"configuration", errors.CategoryConfiguration, http.StatusBadRequest},
		{"device", errors.CategoryAudioSource, http.StatusServiceUnavailable},
		{"other", errors.CategorySystem, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &fakePipeline{startErr: errors.Newf("start refused").
				Component("audiocore").
				Category(tt.category).
				Build()}

			rec := do(t, newTestServer(t, p), http.MethodPost, "/api/v1/pipeline/start")
			require.Equal(t, tt.want, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.want, resp.Code)
			assert.Len(t, resp.CorrelationID, 8)
			assert.Contains(t, resp.Error, "start refused")
		})
	}
}

func TestListDevices(t *testing.T) {
	t.Parallel()

	p := &fakePipeline{devices: []audiocore.DeviceInfo{{ID: "0", Name: "USB Microphone", MaxInputChannels: 1}}}
	s := newTestServer(t, p)

	rec := do(t, s, http.MethodGet, "/api/v1/devices?backend=portaudio&all=true")
	require.Equal(t, http.StatusOK, rec.Code)
	devices := decode[[]audiocore.DeviceInfo](t, rec)
	require.Len(t, devices, 1)
	assert.Equal(t, "USB Microphone", devices[0].Name)
	assert.Equal(t, "portaudio", p.lastBackend)
	assert.True(t, p.lastAll)

	p.devices = nil
	rec = do(t, s, http.MethodGet, "/api/v1/devices")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
	assert.False(t, p.lastAll)
}

func TestUnregisterSink(t *testing.T) {
	t.Parallel()

	p := &fakePipeline{regs: []hub.RegistrationInfo{{ID: "abc", Sink: "file"}}}
	s := newTestServer(t, p)

	rec := do(t, s, http.MethodDelete, "/api/v1/sinks/abc")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []hub.RegistrationID{"abc"}, p.removed)

	rec = do(t, s, http.MethodDelete, "/api/v1/sinks/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterSink(t *testing.T) {
	t.Parallel()

	p := &fakePipeline{regs: []hub.RegistrationInfo{{ID: "abc", Sink: "file"}}}
	s := newTestServer(t, p)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/sinks", `{"sink":"console"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	info := decode[hub.RegistrationInfo](t, rec)
	assert.Equal(t, hub.RegistrationID("reg-console"), info.ID)
	assert.Equal(t, "console", info.Sink)
	assert.Equal(t, []string{"console"}, p.added)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"already registered", `{"sink":"file"}`, http.StatusConflict},
		{"unknown sink", `{"sink":"pager"}`, http.StatusBadRequest},
		{"missing name", `{}`, http.StatusBadRequest},
		{"malformed body", `{"sink":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/sinks", tt.body)
		assert.Equal(t, tt.want, rec.Code, tt.name)
	}
	assert.Equal(t, []string{"console"}, p.added)
}

func TestDrainReadings(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 1, 12, 0, 0, 500_000_000, time.UTC)
	p := &fakePipeline{readings: []audiocore.Reading{
		{Value: 61.5, Timestamp: at, SourceID: 0},
		{Value: 48.25, Timestamp: at, SourceID: 1},
	}}
	s := newTestServer(t, p)

	rec := do(t, s, http.MethodGet, "/api/v1/readings?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ReadingsResponse](t, rec)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 5, p.lastLimit)
	assert.InDelta(t, 48.25, resp.Readings[1].SignalStrengthDB, 1e-9)
	assert.Equal(t, 1, resp.Readings[1].MicIndex)
	assert.InDelta(t, float64(at.Unix())+0.5, resp.Readings[0].Time, 1e-6)

	do(t, s, http.MethodGet, "/api/v1/readings")
	assert.Equal(t, defaultReadingsLimit, p.lastLimit)

	do(t, s, http.MethodGet, "/api/v1/readings?limit=100000")
	assert.Equal(t, maxReadingsLimit, p.lastLimit)

	for _, bad := range []string{"0", "-3", "many"} {
		rec = do(t, s, http.MethodGet, "/api/v1/readings?limit="+bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestDrainReadingsWithoutQueueSink(t *testing.T) {
	t.Parallel()

	p := &fakePipeline{readingsErr: errors.New(station.ErrNoQueueSink).
		Component("station").
		Category(errors.CategoryNotFound).
		Build()}

	rec := do(t, newTestServer(t, p), http.MethodGet, "/api/v1/readings")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "dbstation_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	s := newTestServer(t, &fakePipeline{}, WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	rec := do(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dbstation_test_total 1")

	rec = do(t, newTestServer(t, &fakePipeline{}), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewRequiresPipeline(t *testing.T) {
	t.Parallel()

	_, err := New(nil, conf.WebServerSettings{})
	require.Error(t, err)
}

func TestStationRoundTrip(t *testing.T) {
	settings := &conf.Settings{
		Pipeline: conf.PipelineSettings{
			Interval:      10 * time.Millisecond,
			ShutdownGrace: 100 * time.Millisecond,
			Sources: []conf.SourceSettings{
				{ID: 0, Type: sources.TypeTone, Channels: 1, SampleRate: 8000, FrameSize: 256, Frequency: 440, Amplitude: 0.5},
			},
		},
		Sinks: conf.SinksSettings{
			Queue: conf.QueueSinkSettings{Enabled: true, Capacity: 1000, OnFull: "drop"},
		},
	}
	st, err := station.New(settings, station.WithTickLimit(5))
	require.NoError(t, err)
	s := newTestServer(t, st, WithMetricsHandler(st.Metrics().Handler()))

	rec := do(t, s, http.MethodPost, "/api/v1/pipeline/start")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/v1/pipeline/start")
	assert.Equal(t, http.StatusConflict, rec.Code)

	select {
	case <-st.Finished():
	case <-time.After(5 * time.Second):
		t.Fatal("sampling loop did not finish")
	}

	require.Eventually(t, func() bool {
		return st.QueueSink().Len() == 5
	}, 2*time.Second, 10*time.Millisecond)

	rec = do(t, s, http.MethodGet, "/api/v1/readings?limit=3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[ReadingsResponse](t, rec).Count)

	rec = do(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = do(t, s, http.MethodPost, "/api/v1/pipeline/stop")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", decode[ControlResult](t, rec).State)

	rec = do(t, s, http.MethodPost, "/api/v1/pipeline/stop")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nothing to stop", decode[ControlResult](t, rec).Message)
}
