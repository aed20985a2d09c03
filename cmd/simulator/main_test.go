package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/uav-offload-sim/core"
	"github.com/signalsfoundry/uav-offload-sim/internal/config"
	"github.com/signalsfoundry/uav-offload-sim/internal/report"
	"github.com/signalsfoundry/uav-offload-sim/internal/store"
	"github.com/signalsfoundry/uav-offload-sim/offload"
)

func TestRunAcceleratedPrintsTextReport(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-devices", "4",
		"-uavs", "2",
		"-duration", "2",
		"-scorer", "heuristic",
	}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v, stderr = %s", err, stderr.String())
	}
	out := stdout.String()
	if !strings.HasPrefix(out, "Simulated time: 2.0 s (20 steps)") {
		t.Fatalf("unexpected report header: %q", out)
	}
	if !strings.Contains(out, "=== Simulation Metrics ===") {
		t.Fatalf("report missing metrics block: %s", out)
	}
}

func TestRunRecordsHistoryAndPrintsJSON(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-devices", "3",
		"-uavs", "1",
		"-duration", "1",
		"-scorer", "mlp",
		"-db", db,
		"-name", "smoke",
		"-format", "json",
	}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v, stderr = %s", err, stderr.String())
	}

	doc, err := report.Decode(stdout.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := doc["steps"]; got != 10.0 {
		t.Fatalf("steps = %v, want 10", got)
	}

	s, err := store.Open(db)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()
	runs, err := s.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	if runs[0].Name != "smoke" || runs[0].Status != store.StatusCompleted || runs[0].Steps != 10 {
		t.Fatalf("unexpected run record: %+v", runs[0])
	}
	samples, err := s.Samples(context.Background(), runs[0].ID, 0)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("len(samples) = %d, want 1 (every 10 steps)", len(samples))
	}
}

func TestRunWithScenarioFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	body := `
simulation:
  engine:
    scorer: heuristic
scenario:
  duration: 0.5
devices:
  - id: sensor-a
    position: [100, 100, 2]
    cpu_mips: 800
    battery_j: 20000
    generation_rate: 10
    categories: [environmental_monitoring]
uavs:
  - id: hover-1
    position: [100, 100, 60]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"-config", path}, &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v, stderr = %s", err, stderr.String())
	}
	if !strings.Contains(stdout.String(), "UAV hover-1:") {
		t.Fatalf("report does not list declared UAV: %s", stdout.String())
	}
}

func TestRunRejectsInvalidFlags(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"-duration", "0"}, &stdout, &stderr); err == nil {
		t.Fatalf("expected error for zero duration")
	}
	if stdout.Len() != 0 {
		t.Fatalf("no report expected on invalid config, got %q", stdout.String())
	}
}

func TestRunUnknownReportFormat(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-duration", "0.1", "-scorer", "heuristic", "-format", "xml"}, &stdout, &stderr)
	if err == nil {
		t.Fatalf("expected error for unknown report format")
	}
}

func TestDriveRealTimePacesSteps(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Engine.Scorer = offload.ScorerHeuristic
	var states []core.State
	var env *core.Environment
	env, err := core.NewEnvironment(cfg, core.WithStepListener(func(context.Context, core.StepInfo) {
		states = append(states, env.State())
	}))
	if err != nil {
		t.Fatalf("NewEnvironment: %v", err)
	}
	if err := env.Initialize(context.Background(), 2, 1); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	start := time.Now()
	if err := drive(context.Background(), env, config.Scenario{Duration: 0.3, RealTime: true}); err != nil {
		t.Fatalf("drive() error = %v", err)
	}
	if got := env.Steps(); got != 3 {
		t.Fatalf("Steps() = %d, want 3", got)
	}
	if env.State() != core.StateStopped {
		t.Fatalf("State() = %s, want STOPPED", env.State())
	}
	for _, st := range states {
		if st != core.StateRunning {
			t.Fatalf("step ran in state %s, want RUNNING", st)
		}
	}
	if elapsed := time.Since(start); elapsed < 250*time.Millisecond {
		t.Fatalf("real-time run finished in %v, want about 300ms", elapsed)
	}
}

func TestDriveRealTimeStopsOnCancel(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Engine.Scorer = offload.ScorerHeuristic
	env, err := core.NewEnvironment(cfg)
	if err != nil {
		t.Fatalf("NewEnvironment: %v", err)
	}
	if err := env.Initialize(context.Background(), 2, 1); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	err = drive(ctx, env, config.Scenario{Duration: 60, RealTime: true})
	if err == nil {
		t.Fatalf("expected context error from cancelled real-time run")
	}
	if steps := env.Steps(); steps == 0 || steps >= 600 {
		t.Fatalf("Steps() = %d, want a partial run", steps)
	}
}

func TestTracingConfigPrefersEnabledFileSection(t *testing.T) {
	t.Setenv("SIM_TRACING_ENABLED", "false")
	cfg := config.Default()
	cfg.Tracing = config.TracingConfig{Enabled: true, Exporter: "otlp", Endpoint: "otel:4317", SampleRatio: 0.5}

	var spans bytes.Buffer
	tc := tracingConfig(cfg, &spans)
	if !tc.Enabled || tc.Exporter != "otlp" || tc.Endpoint != "otel:4317" || tc.SampleRatio != 0.5 {
		t.Fatalf("unexpected tracing config: %+v", tc)
	}
	if tc.Writer != &spans || len(tc.Attributes) != 3 {
		t.Fatalf("span writer or run attributes not set: %+v", tc)
	}

	tc = tracingConfig(config.Default(), &spans)
	if tc.Enabled {
		t.Fatalf("tracing should stay disabled: %+v", tc)
	}
}
