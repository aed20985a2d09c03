package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFieldsAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: FormatJSON, Output: &buf})

	ctx := ContextWithRequestID(context.Background(), "req-1")
	log.With(String("component", "core")).Info(ctx, "step done", Int("tasks", 3), SimTime(1.5))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	want := map[string]any{
		"msg":        "step done",
		"component":  "core",
		"tasks":      3.0,
		"sim_time":   1.5,
		"request_id": "req-1",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Fatalf("rec[%q] = %v, want %v", k, rec[k], v)
		}
	}
}

func TestLevelFiltersRecords(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})
	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestNilContextIsAccepted(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Output: &buf}).Info(nil, "no context")
	if !strings.Contains(buf.String(), "no context") {
		t.Fatalf("record missing: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	for _, lvl := range []string{"", "debug", "INFO", "warning", "error"} {
		if _, err := ParseLevel(lvl); err != nil {
			t.Fatalf("ParseLevel(%q) error = %v", lvl, err)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{Format: "JSON"}).Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := (Config{Format: "logfmt"}).Validate(); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestFromEnvFillsEmptyValues(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")

	cfg := FromEnv(Config{Level: "error"})
	if cfg.Level != "error" || cfg.Format != "json" {
		t.Fatalf("FromEnv() = %+v", cfg)
	}
}

func TestEnsureRequestID(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if id == "" || RequestIDFromContext(ctx) != id {
		t.Fatalf("generated id %q not stored on context", id)
	}
	again, same := EnsureRequestID(ctx)
	if same != id || again != ctx {
		t.Fatalf("EnsureRequestID replaced an existing id: %q -> %q", id, same)
	}
}

func TestLoggerFromContext(t *testing.T) {
	if LoggerFromContext(context.Background()) != nil {
		t.Fatalf("expected nil logger on empty context")
	}
	ctx := ContextWithLogger(context.Background(), nil)
	if _, ok := LoggerFromContext(ctx).(noopLogger); !ok {
		t.Fatalf("nil logger should be stored as noop")
	}
}
