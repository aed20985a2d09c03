// Package config loads simulator scenarios from YAML files and command-line
// flags.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/uav-offload-sim/core"
	"github.com/signalsfoundry/uav-offload-sim/internal/logging"
	"github.com/signalsfoundry/uav-offload-sim/internal/observability"
	"github.com/signalsfoundry/uav-offload-sim/model"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full process configuration.
type Config struct {
	Simulation core.Config   `yaml:"simulation"`
	Scenario   Scenario      `yaml:"scenario"`
	Devices    []DeviceSpec  `yaml:"devices"`
	UAVs       []UAVSpec     `yaml:"uavs"`
	Storage    StorageConfig `yaml:"storage"`
	HTTP       HTTPConfig    `yaml:"http"`
	Tracing    TracingConfig `yaml:"tracing"`
	Log        LogConfig     `yaml:"log"`
}

// Scenario sizes a randomly generated fleet and bounds the run. Explicit
// device and UAV lists take precedence over the counts.
type Scenario struct {
	Devices  int     `yaml:"devices"`
	UAVs     int     `yaml:"uavs"`
	Duration float64 `yaml:"duration"` // simulated seconds
	RealTime bool    `yaml:"realtime"`
}

// DeviceSpec declares one IoT device.
type DeviceSpec struct {
	ID             string     `yaml:"id"`
	Position       [3]float64 `yaml:"position"`
	CPU            float64    `yaml:"cpu_mips"`
	Memory         float64    `yaml:"memory_mb"`
	Battery        float64    `yaml:"battery_j"`
	GenerationRate float64    `yaml:"generation_rate"`
	Radio          string     `yaml:"radio"`
	Categories     []string   `yaml:"categories"`
}

// UAVSpec declares one UAV. Zero values fall back to the model defaults.
type UAVSpec struct {
	ID         string     `yaml:"id"`
	Position   [3]float64 `yaml:"position"`
	MaxSpeed   float64    `yaml:"max_speed"`
	FlightTime float64    `yaml:"flight_time"`
	Energy     float64    `yaml:"energy_j"`
	CPU        float64    `yaml:"cpu_mips"`
	Memory     float64    `yaml:"memory_mb"`
	Storage    float64    `yaml:"storage_mb"`
	Bandwidth  float64    `yaml:"bandwidth"`
	TxPowerMW  float64    `yaml:"tx_power_mw"`
	Range      float64    `yaml:"range"`
}

// StorageConfig enables run history persistence when Path is set.
type StorageConfig struct {
	Path string `yaml:"path"`
	// SampleEvery stores a metrics sample every N steps.
	SampleEvery int `yaml:"sample_every"`
}

// HTTPConfig holds listen addresses. Empty addresses disable the listener.
type HTTPConfig struct {
	Listen        string `yaml:"listen"`
	MetricsListen string `yaml:"metrics_listen"`
}

// TracingConfig mirrors the SIM_TRACING_* environment variables.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// LogConfig selects the log level and handler format. Empty values defer to
// LOG_LEVEL and LOG_FORMAT.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a small accelerated scenario with no listeners and no
// storage.
func Default() *Config {
	return &Config{
		Simulation: core.DefaultConfig(),
		Scenario: Scenario{
			Devices:  10,
			UAVs:     3,
			Duration: 60,
		},
		Storage: StorageConfig{SampleEvery: 10},
		Tracing: TracingConfig{Exporter: "stdout", SampleRatio: 1},
	}
}

// LoadConfig reads a YAML file on top of Default and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := c.Simulation.Validate(); err != nil {
		return fmt.Errorf("%w: simulation: %v", ErrInvalid, err)
	}
	if c.Scenario.Duration <= 0 {
		return fmt.Errorf("%w: scenario duration must be positive, got %v", ErrInvalid, c.Scenario.Duration)
	}
	if c.Scenario.Devices < 0 || c.Scenario.UAVs < 0 {
		return fmt.Errorf("%w: fleet sizes must not be negative", ErrInvalid)
	}
	if len(c.Devices) == 0 && c.Scenario.Devices == 0 {
		return fmt.Errorf("%w: at least one device is required", ErrInvalid)
	}
	seen := make(map[string]bool)
	for i, d := range c.Devices {
		if d.ID == "" {
			return fmt.Errorf("%w: devices[%d]: id is required", ErrInvalid, i)
		}
		if seen[d.ID] {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalid, d.ID)
		}
		seen[d.ID] = true
		if _, err := d.ModelConfig(); err != nil {
			return fmt.Errorf("%w: devices[%d]: %v", ErrInvalid, i, err)
		}
	}
	for i, u := range c.UAVs {
		if u.ID == "" {
			return fmt.Errorf("%w: uavs[%d]: id is required", ErrInvalid, i)
		}
		if seen[u.ID] {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalid, u.ID)
		}
		seen[u.ID] = true
	}
	if c.Storage.SampleEvery < 0 {
		return fmt.Errorf("%w: storage sample_every must not be negative", ErrInvalid)
	}
	tc := observability.TracingConfig{Exporter: c.Tracing.Exporter, SampleRatio: c.Tracing.SampleRatio}
	if err := tc.Validate(); err != nil {
		return fmt.Errorf("%w: tracing: %v", ErrInvalid, err)
	}
	if err := c.Log.LoggingConfig().Validate(); err != nil {
		return fmt.Errorf("%w: log: %v", ErrInvalid, err)
	}
	return nil
}

// LoggingConfig converts the log section, filling empty values from
// LOG_LEVEL and LOG_FORMAT.
func (l LogConfig) LoggingConfig() logging.Config {
	return logging.FromEnv(logging.Config{Level: l.Level, Format: l.Format})
}

// Explicit reports whether the fleet is declared rather than generated.
func (c *Config) Explicit() bool { return len(c.Devices) > 0 }

// ModelConfig converts the declared device into a constructor argument.
func (d DeviceSpec) ModelConfig() (model.DeviceConfig, error) {
	radio := model.RadioTechnology(d.Radio)
	if d.Radio == "" {
		radio = model.RadioWiFi
	}
	if _, ok := radio.Profile(); !ok {
		return model.DeviceConfig{}, fmt.Errorf("unknown radio %q", d.Radio)
	}
	cats := make([]model.Category, 0, len(d.Categories))
	for _, name := range d.Categories {
		c, err := model.ParseCategory(name)
		if err != nil {
			return model.DeviceConfig{}, err
		}
		cats = append(cats, c)
	}
	return model.DeviceConfig{
		ID:             d.ID,
		Location:       model.NewLocation(d.Position[0], d.Position[1], d.Position[2]),
		CPUCapacity:    d.CPU,
		Memory:         d.Memory,
		BatteryJoules:  d.Battery,
		GenerationRate: d.GenerationRate,
		Radio:          radio,
		Categories:     cats,
	}, nil
}

// ModelConfig converts the declared UAV into a constructor argument.
func (u UAVSpec) ModelConfig() model.UAVConfig {
	loc := model.NewLocation(u.Position[0], u.Position[1], u.Position[2])
	return model.UAVConfig{
		ID:                 u.ID,
		Location:           &loc,
		MaxSpeed:           u.MaxSpeed,
		MaxFlightTime:      u.FlightTime,
		TotalEnergy:        u.Energy,
		CPUCapacity:        u.CPU,
		Memory:             u.Memory,
		Storage:            u.Storage,
		Bandwidth:          u.Bandwidth,
		TransmitPowerMW:    u.TxPowerMW,
		CommunicationRange: u.Range,
	}
}

// Fleet returns the declared devices and UAVs as model configs.
func (c *Config) Fleet() ([]model.DeviceConfig, []model.UAVConfig, error) {
	devices := make([]model.DeviceConfig, 0, len(c.Devices))
	for _, d := range c.Devices {
		dc, err := d.ModelConfig()
		if err != nil {
			return nil, nil, fmt.Errorf("device %q: %w", d.ID, err)
		}
		devices = append(devices, dc)
	}
	uavs := make([]model.UAVConfig, 0, len(c.UAVs))
	for _, u := range c.UAVs {
		uavs = append(uavs, u.ModelConfig())
	}
	return devices, uavs, nil
}
