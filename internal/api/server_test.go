package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/uav-offload-sim/core"
	"github.com/signalsfoundry/uav-offload-sim/internal/observability"
	"github.com/signalsfoundry/uav-offload-sim/internal/report"
	"github.com/signalsfoundry/uav-offload-sim/internal/store"
	"github.com/signalsfoundry/uav-offload-sim/metrics"
	"github.com/signalsfoundry/uav-offload-sim/model"
	"github.com/signalsfoundry/uav-offload-sim/offload"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestEnv(t *testing.T) *core.Environment {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.Engine.Scorer = offload.ScorerHeuristic
	env, err := core.NewEnvironment(cfg)
	require.NoError(t, err)

	uavLoc := model.NewLocation(500, 500, 80)
	err = env.InitializeWith(context.Background(),
		[]model.DeviceConfig{{
			ID:             "device-0",
			Location:       model.NewLocation(500, 500, 2),
			CPUCapacity:    1000,
			Memory:         512,
			BatteryJoules:  30000,
			GenerationRate: 10,
			Radio:          model.RadioWiFi,
			Categories:     []model.Category{model.CategoryEnvironmental},
		}},
		[]model.UAVConfig{{ID: "uav-0", Location: &uavLoc}},
	)
	require.NoError(t, err)
	return env
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	srv := NewServer(env)

	rr := do(t, srv.Handler(), http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, env.State().String(), body["state"])
	assert.NotEmpty(t, rr.Header().Get(requestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := NewServer(newTestEnv(t))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get(requestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.Run(context.Background(), 1))
	srv := NewServer(env)

	rr := do(t, srv.Handler(), http.MethodGet, "/api/v1/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, env.Metrics().TotalTasks, snap.TotalTasks)
	assert.Positive(t, snap.TotalTasks)
}

func TestReportFormats(t *testing.T) {
	env := newTestEnv(t)
	srv := NewServer(env)

	rr := do(t, srv.Handler(), http.MethodGet, "/api/v1/report", "")
	require.Equal(t, http.StatusOK, rr.Code)
	doc, err := report.Decode(rr.Body.Bytes())
	require.NoError(t, err)
	assert.Contains(t, doc, "metrics")
	assert.Len(t, doc["uavs"], 1)

	rr = do(t, srv.Handler(), http.MethodGet, "/api/v1/report?format=text", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "=== Simulation Metrics ===")
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/plain")

	rr = do(t, srv.Handler(), http.MethodGet, "/api/v1/report?format=xml", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDevicesAndUAVs(t *testing.T) {
	srv := NewServer(newTestEnv(t))
	h := srv.Handler()

	rr := do(t, h, http.MethodGet, "/api/v1/devices", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var devices []model.DeviceSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, "device-0", devices[0].ID)

	rr = do(t, h, http.MethodGet, "/api/v1/uavs/uav-0", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var uav model.UAVSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &uav))
	assert.Equal(t, "uav-0", uav.ID)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/uavs/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/devices/nope", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/devices/device-0", "").Code)
}

func TestSetUAVTarget(t *testing.T) {
	env := newTestEnv(t)
	h := NewServer(env).Handler()

	rr := do(t, h, http.MethodPost, "/api/v1/uavs/uav-0/target", `{"x": 600, "y": 500, "z": 80}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var uav model.UAVSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &uav))
	assert.Equal(t, "MOVING", uav.Status)
	require.NotNil(t, uav.Target)
	assert.Equal(t, 600.0, uav.Target.X)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/uavs/uav-0/target", `{"x": 600}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/uavs/uav-0/target", `{"x": -5, "y": 0, "z": 80}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/v1/uavs/ghost/target", `{"x": 1, "y": 1, "z": 80}`).Code)
}

func TestMaintenanceBlocksRetarget(t *testing.T) {
	env := newTestEnv(t)
	h := NewServer(env).Handler()

	rr := do(t, h, http.MethodPut, "/api/v1/uavs/uav-0/maintenance", `{"enabled": true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var uav model.UAVSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &uav))
	assert.Equal(t, "MAINTENANCE", uav.Status)

	rr = do(t, h, http.MethodPost, "/api/v1/uavs/uav-0/target", `{"x": 1, "y": 1, "z": 80}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodPut, "/api/v1/uavs/uav-0/maintenance", `{"enabled": false}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &uav))
	assert.Equal(t, "IDLE", uav.Status)
}

func TestRunsWithoutStore(t *testing.T) {
	h := NewServer(newTestEnv(t)).Handler()
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/v1/runs", "").Code)
}

func TestRunsFromStore(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	env := newTestEnv(t)
	rec, err := store.NewRecorder(ctx, s, env, "api", 2, nil)
	require.NoError(t, err)
	env.AddStepListener(rec.Listener())
	require.NoError(t, env.Run(ctx, 0.6))
	require.NoError(t, rec.Finish(ctx, store.StatusCompleted))

	h := NewServer(env, WithRunStore(s)).Handler()

	rr := do(t, h, http.MethodGet, "/api/v1/runs?limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var runs []store.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, rec.RunID(), runs[0].ID)

	rr = do(t, h, http.MethodGet, "/api/v1/runs/"+rec.RunID()+"/samples", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var samples []store.Sample
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &samples))
	assert.Len(t, samples, 3)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/runs/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/runs/missing/samples", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/runs?limit=-1", "").Code)
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewHTTPCollector(reg)
	require.NoError(t, err)
	h := NewServer(newTestEnv(t), WithHTTPMetrics(collector)).Handler()

	do(t, h, http.MethodGet, "/api/v1/uavs/uav-0", "")
	do(t, h, http.MethodGet, "/api/v1/uavs/ghost", "")

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Requests.WithLabelValues("GET", "/api/v1/uavs/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Requests.WithLabelValues("GET", "/api/v1/uavs/:id", "404")))
}

func TestCORSPreflight(t *testing.T) {
	h := NewServer(newTestEnv(t), WithAllowedOrigins("http://localhost:3000")).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
}
