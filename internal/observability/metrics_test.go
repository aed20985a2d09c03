package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/uav-offload-sim/core"
	"github.com/signalsfoundry/uav-offload-sim/metrics"
	"github.com/signalsfoundry/uav-offload-sim/model"
)

func TestObserveRecordsStepAndSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	info := core.StepInfo{Step: 4, Time: 0.4, Pending: 3, Elapsed: 2 * time.Millisecond}
	snap := metrics.Snapshot{
		TotalTasks:     10,
		CompletedTasks: 7,
		FailedTasks:    2,
		DroppedTasks:   1,
		DeviceEnergyJ:  1.5,
		UAVEnergyJ:     20,
		PolicyRetrains: 2,
		Decisions:      map[string]int64{"uav": 4, "local": 3},
	}
	uavs := []model.UAVSnapshot{{ID: "uav-0", EnergyPercentage: 80, Load: 0.25}}
	collector.Observe(info, snap, uavs)

	if got := testutil.ToFloat64(collector.Steps); got != 1 {
		t.Fatalf("sim_steps_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.SimTime); got != 0.4 {
		t.Fatalf("sim_time_seconds = %v, want 0.4", got)
	}
	if got := testutil.ToFloat64(collector.PendingTasks); got != 3 {
		t.Fatalf("sim_pending_tasks = %v, want 3", got)
	}
	if got := testutil.ToFloat64(collector.Tasks.WithLabelValues("completed")); got != 7 {
		t.Fatalf("sim_tasks{completed} = %v, want 7", got)
	}
	if got := testutil.ToFloat64(collector.Tasks.WithLabelValues("dropped")); got != 1 {
		t.Fatalf("sim_tasks{dropped} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Decisions.WithLabelValues("uav")); got != 4 {
		t.Fatalf("sim_offloading_decisions{uav} = %v, want 4", got)
	}
	if got := testutil.ToFloat64(collector.Energy.WithLabelValues("uav")); got != 20 {
		t.Fatalf("sim_energy_joules{uav} = %v, want 20", got)
	}
	if got := testutil.ToFloat64(collector.UAVEnergy.WithLabelValues("uav-0")); got != 0.8 {
		t.Fatalf("sim_uav_energy_ratio = %v, want 0.8", got)
	}
	if got := testutil.ToFloat64(collector.UAVLoad.WithLabelValues("uav-0")); got != 0.25 {
		t.Fatalf("sim_uav_load_ratio = %v, want 0.25", got)
	}
	if count := histogramSampleCount(t, reg, "sim_step_duration_seconds", nil); count != 1 {
		t.Fatalf("sim_step_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestObserveOnNilCollectorIsNoop(t *testing.T) {
	var c *SimCollector
	c.Observe(core.StepInfo{}, metrics.Snapshot{}, nil)
}

func TestNewSimCollectorReusesRegisteredSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	second, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("second NewSimCollector: %v", err)
	}
	first.Steps.Inc()
	if got := testutil.ToFloat64(second.Steps); got != 1 {
		t.Fatalf("second collector steps = %v, want shared counter value 1", got)
	}
}

func TestStepListenerFollowsEnvironment(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	cfg := core.DefaultConfig()
	env, err := core.NewEnvironment(cfg)
	if err != nil {
		t.Fatalf("NewEnvironment: %v", err)
	}
	env.AddStepListener(collector.StepListener(env))
	if err := env.Initialize(context.Background(), 3, 2); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := env.Step(context.Background()); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}

	if got := testutil.ToFloat64(collector.Steps); got != 5 {
		t.Fatalf("sim_steps_total = %v, want 5", got)
	}
	if got := testutil.ToFloat64(collector.SimTime); got != env.Now() {
		t.Fatalf("sim_time_seconds = %v, want %v", got, env.Now())
	}
	if got := testutil.ToFloat64(collector.Tasks.WithLabelValues("created")); got != float64(env.Metrics().TotalTasks) {
		t.Fatalf("sim_tasks{created} = %v, want %d", got, env.Metrics().TotalTasks)
	}
	for _, u := range env.UAVs() {
		if got := testutil.ToFloat64(collector.UAVEnergy.WithLabelValues(u.ID)); got <= 0 || got > 1 {
			t.Fatalf("energy ratio for %s = %v, want (0,1]", u.ID, got)
		}
	}
}

func TestMiddlewareRecordsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	collector, err := NewHTTPCollector(reg)
	if err != nil {
		t.Fatalf("NewHTTPCollector: %v", err)
	}

	r := gin.New()
	r.Use(collector.Middleware())
	r.GET("/api/v1/uavs/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, path := range []string{"/api/v1/uavs/a", "/api/v1/uavs/b", "/nowhere"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(collector.Requests.WithLabelValues("GET", "/api/v1/uavs/:id", "404")); got != 2 {
		t.Fatalf("api_requests_total route label = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.Requests.WithLabelValues("GET", "unknown", "404")); got != 1 {
		t.Fatalf("api_requests_total unknown label = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "api_request_duration_seconds", map[string]string{
		"method": "GET",
		"route":  "/api/v1/uavs/:id",
	}); count != 2 {
		t.Fatalf("api_request_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestMetricsHandlerExposesSimulationSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	collector.Observe(core.StepInfo{Step: 1, Time: 0.1}, metrics.Snapshot{
		TotalTasks: 3,
		Decisions:  map[string]int64{"local": 3},
	}, []model.UAVSnapshot{{ID: "uav-7", EnergyPercentage: 50}})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"sim_steps_total",
		"sim_step_duration_seconds",
		"sim_tasks",
		"sim_offloading_decisions",
		"sim_energy_joules",
		`sim_uav_energy_ratio{uav="uav-7"} 0.5`,
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestTracingDisabledReturnsNoopShutdown(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("SIM_TRACING_ENABLED", "TRUE")
	t.Setenv("SIM_TRACING_EXPORTER", "OTLP")
	t.Setenv("SIM_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("SIM_OTLP_ENDPOINT", "collector:4317")

	cfg := TracingConfigFromEnv()
	if !cfg.Enabled || cfg.Exporter != "otlp" || cfg.SampleRatio != 0.25 || cfg.Endpoint != "collector:4317" {
		t.Fatalf("unexpected tracing config: %+v", cfg)
	}
	if cfg.ServiceName != "uav-offload-sim" {
		t.Fatalf("service name = %q, want default", cfg.ServiceName)
	}
}

func TestTracingRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin", SampleRatio: 1}, nil)
	if err == nil {
		t.Fatalf("expected error for unsupported exporter")
	}
}

func TestTracingMiddlewareExportsRequestSpans(t *testing.T) {
	var spans bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		Exporter:    ExporterStdout,
		SampleRatio: 1,
		Writer:      &spans,
		Attributes:  []attribute.KeyValue{attribute.String("sim.scorer", "heuristic")},
	}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	t.Cleanup(func() { _, _ = InitTracing(context.Background(), TracingConfig{}, nil) })

	router := gin.New()
	router.Use(TracingMiddleware())
	router.GET("/api/v1/uavs/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/uavs/uav-0", nil))

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	out := spans.String()
	for _, want := range []string{"GET /api/v1/uavs/:id", "sim.scorer", "http.response.status_code"} {
		if !strings.Contains(out, want) {
			t.Fatalf("exported spans missing %q:\n%s", want, out)
		}
	}
}

func TestTracingConfigValidate(t *testing.T) {
	if err := (TracingConfig{Exporter: "OTLP", SampleRatio: 0.5}).Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := (TracingConfig{Exporter: ExporterStdout, SampleRatio: 1.5}).Validate(); err == nil {
		t.Fatalf("expected error for sample ratio above 1")
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
