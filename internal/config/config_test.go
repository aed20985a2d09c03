package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/uav-offload-sim/core"
	"github.com/signalsfoundry/uav-offload-sim/model"
	"github.com/signalsfoundry/uav-offload-sim/offload"
)

const scenarioYAML = `
simulation:
  time_step: 0.5
  max_tasks_per_step: 8
  seed: 42
  mobility: random-waypoint
  engine:
    scorer: heuristic
    slots: 3
scenario:
  duration: 120
devices:
  - id: cam-1
    position: [10, 20, 2]
    cpu_mips: 1200
    battery_j: 20000
    generation_rate: 0.5
    radio: lte
    categories: [traffic_monitoring, real_time_video_analytics]
uavs:
  - id: drone-1
    position: [100, 100, 80]
    cpu_mips: 12000
    range: 900
storage:
  path: runs.db
  sample_every: 5
http:
  listen: ":8080"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Scenario.Devices)
	assert.Equal(t, 3, cfg.Scenario.UAVs)
	assert.False(t, cfg.Explicit())
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, scenarioYAML))
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Simulation.TimeStep)
	assert.Equal(t, 8, cfg.Simulation.MaxTasksPerStep)
	assert.Equal(t, int64(42), cfg.Simulation.Seed)
	assert.Equal(t, core.MobilityRandomWaypoint, cfg.Simulation.Mobility)
	assert.Equal(t, offload.ScorerHeuristic, cfg.Simulation.Engine.Scorer)
	assert.Equal(t, 3, cfg.Simulation.Engine.Slots)
	// Unset engine fields keep their defaults.
	assert.Equal(t, offload.DefaultConfig().BatchSize, cfg.Simulation.Engine.BatchSize)
	assert.Equal(t, 1000.0, cfg.Simulation.Area.Width)

	assert.Equal(t, 120.0, cfg.Scenario.Duration)
	assert.Equal(t, "runs.db", cfg.Storage.Path)
	assert.Equal(t, 5, cfg.Storage.SampleEvery)
	assert.Equal(t, ":8080", cfg.HTTP.Listen)
	assert.True(t, cfg.Explicit())
}

func TestFleetConvertsSpecs(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, scenarioYAML))
	require.NoError(t, err)

	devices, uavs, err := cfg.Fleet()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Len(t, uavs, 1)

	d := devices[0]
	assert.Equal(t, "cam-1", d.ID)
	assert.Equal(t, model.NewLocation(10, 20, 2), d.Location)
	assert.Equal(t, model.RadioLTE, d.Radio)
	assert.Equal(t, []model.Category{model.CategoryTraffic, model.CategoryVideoAnalytics}, d.Categories)

	u := uavs[0]
	require.NotNil(t, u.Location)
	assert.Equal(t, model.NewLocation(100, 100, 80), *u.Location)
	assert.Equal(t, 900.0, u.CommunicationRange)

	_, err = model.NewUAV(u)
	assert.NoError(t, err)
}

func TestDeviceSpecDefaultsToWiFi(t *testing.T) {
	dc, err := DeviceSpec{ID: "d"}.ModelConfig()
	require.NoError(t, err)
	assert.Equal(t, model.RadioWiFi, dc.Radio)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"non-positive duration": func(c *Config) { c.Scenario.Duration = 0 },
		"negative uavs":         func(c *Config) { c.Scenario.UAVs = -1 },
		"no devices":            func(c *Config) { c.Scenario.Devices = 0 },
		"bad time step":         func(c *Config) { c.Simulation.TimeStep = 0 },
		"bad scorer":            func(c *Config) { c.Simulation.Engine.Scorer = "oracle" },
		"bad sample ratio":      func(c *Config) { c.Tracing.SampleRatio = 2 },
		"negative sampling":     func(c *Config) { c.Storage.SampleEvery = -1 },
		"unknown exporter":      func(c *Config) { c.Tracing.Exporter = "zipkin" },
		"unknown log level":     func(c *Config) { c.Log.Level = "chatty" },
		"unknown log format":    func(c *Config) { c.Log.Format = "xml" },
		"unknown radio": func(c *Config) {
			c.Devices = []DeviceSpec{{ID: "d", Radio: "smoke-signal"}}
		},
		"unknown category": func(c *Config) {
			c.Devices = []DeviceSpec{{ID: "d", Categories: []string{"weather"}}}
		},
		"duplicate id": func(c *Config) {
			c.Devices = []DeviceSpec{{ID: "x"}}
			c.UAVs = []UAVSpec{{ID: "x"}}
		},
		"missing uav id": func(c *Config) {
			c.Devices = []DeviceSpec{{ID: "d"}}
			c.UAVs = []UAVSpec{{}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("simulation: [unclosed"))
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoaderWithFlagsOnly(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	loader := NewLoader(fs)

	cfg, err := loader.Load([]string{
		"-devices", "25",
		"-uavs", "4",
		"-duration", "30",
		"-seed", "7",
		"-realtime",
		"-scorer", "heuristic",
		"-db", "history.db",
		"-http-listen", ":9000",
		"-metrics-listen", ":9100",
	})
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Scenario.Devices)
	assert.Equal(t, 4, cfg.Scenario.UAVs)
	assert.Equal(t, 30.0, cfg.Scenario.Duration)
	assert.True(t, cfg.Scenario.RealTime)
	assert.Equal(t, int64(7), cfg.Simulation.Seed)
	assert.Equal(t, int64(7), cfg.Simulation.Engine.Seed)
	assert.Equal(t, offload.ScorerHeuristic, cfg.Simulation.Engine.Scorer)
	assert.Equal(t, "history.db", cfg.Storage.Path)
	assert.Equal(t, ":9000", cfg.HTTP.Listen)
	assert.Equal(t, ":9100", cfg.HTTP.MetricsListen)
}

func TestLoaderFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, scenarioYAML)
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	loader := NewLoader(fs)

	cfg, err := loader.Load([]string{"-config", path, "-duration", "15"})
	require.NoError(t, err)

	assert.Equal(t, path, loader.ConfigPath())
	assert.Equal(t, 15.0, cfg.Scenario.Duration, "explicit flag wins")
	assert.Equal(t, int64(42), cfg.Simulation.Seed, "unset flag keeps file value")
	assert.Equal(t, "runs.db", cfg.Storage.Path)
}

func TestLoaderRejectsInvalidValues(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	loader := NewLoader(fs)

	_, err := loader.Load([]string{"-duration", "-1"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoaderRejectsUnknownFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	loader := NewLoader(fs)

	_, err := loader.Load([]string{"-warp-speed"})
	assert.Error(t, err)
}
