package config

import (
	"flag"
	"fmt"
)

// Loader parses command-line flags and an optional config file. Flags given
// explicitly override values from the file. It can be instantiated with a
// custom FlagSet for testing.
type Loader struct {
	fs            *flag.FlagSet
	configPath    *string
	devices       *int
	uavs          *int
	duration      *float64
	seed          *int64
	realtime      *bool
	scorer        *string
	mobility      *string
	db            *string
	httpListen    *string
	metricsListen *string
	logLevel      *string
}

// NewLoader registers the simulator flags on fs. If fs is nil, the default
// flag.CommandLine is used.
func NewLoader(fs *flag.FlagSet) *Loader {
	if fs == nil {
		fs = flag.CommandLine
	}
	def := Default()
	l := &Loader{fs: fs}
	l.configPath = fs.String("config", "", "Path to YAML scenario file")
	l.devices = fs.Int("devices", def.Scenario.Devices, "Number of randomly generated IoT devices")
	l.uavs = fs.Int("uavs", def.Scenario.UAVs, "Number of randomly generated UAVs")
	l.duration = fs.Float64("duration", def.Scenario.Duration, "Simulated duration in seconds")
	l.seed = fs.Int64("seed", def.Simulation.Seed, "Random seed")
	l.realtime = fs.Bool("realtime", def.Scenario.RealTime, "Pace steps against the wall clock")
	l.scorer = fs.String("scorer", def.Simulation.Engine.Scorer, "Decision policy: heuristic or mlp")
	l.mobility = fs.String("mobility", def.Simulation.Mobility, "UAV mobility: static or random-waypoint")
	l.db = fs.String("db", def.Storage.Path, "SQLite file for run history (empty disables storage)")
	l.httpListen = fs.String("http-listen", def.HTTP.Listen, "HTTP API listen address (empty disables the API)")
	l.metricsListen = fs.String("metrics-listen", def.HTTP.MetricsListen, "Prometheus listen address (empty disables /metrics)")
	l.logLevel = fs.String("log-level", "", "Log level: debug, info, warn, error (defaults to LOG_LEVEL)")
	return l
}

// Load parses args (if not already parsed), loads --config when given and
// applies explicitly set flags on top.
func (l *Loader) Load(args []string) (*Config, error) {
	if !l.fs.Parsed() {
		if err := l.fs.Parse(args); err != nil {
			return nil, fmt.Errorf("failed to parse flags: %w", err)
		}
	}

	cfg := Default()
	if *l.configPath != "" {
		loaded, err := LoadConfig(*l.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	l.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "devices":
			cfg.Scenario.Devices = *l.devices
		case "uavs":
			cfg.Scenario.UAVs = *l.uavs
		case "duration":
			cfg.Scenario.Duration = *l.duration
		case "seed":
			cfg.Simulation.Seed = *l.seed
			cfg.Simulation.Engine.Seed = *l.seed
		case "realtime":
			cfg.Scenario.RealTime = *l.realtime
		case "scorer":
			cfg.Simulation.Engine.Scorer = *l.scorer
		case "mobility":
			cfg.Simulation.Mobility = *l.mobility
		case "db":
			cfg.Storage.Path = *l.db
		case "http-listen":
			cfg.HTTP.Listen = *l.httpListen
		case "metrics-listen":
			cfg.HTTP.MetricsListen = *l.metricsListen
		case "log-level":
			cfg.Log.Level = *l.logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigPath returns the --config value after Load.
func (l *Loader) ConfigPath() string { return *l.configPath }
