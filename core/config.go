package core

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/uav-offload-sim/offload"
)

// Mobility model names accepted by Config.Mobility.
const (
	MobilityStatic         = "static"
	MobilityRandomWaypoint = "random-waypoint"
)

// Area is the simulated volume in metres, anchored at the origin.
type Area struct {
	Width  float64 `yaml:"width"`
	Length float64 `yaml:"length"`
	Height float64 `yaml:"height"`
}

// Contains reports whether (x, y) lies on the ground footprint of the area.
func (a Area) Contains(x, y float64) bool {
	return x >= 0 && x <= a.Width && y >= 0 && y <= a.Length
}

// Config controls an Environment.
type Config struct {
	Area Area `yaml:"area"`
	// TimeStep is the simulated seconds advanced by every Step.
	TimeStep float64 `yaml:"time_step"`
	// MaxTasksPerStep bounds how many queued tasks one Step dispatches.
	MaxTasksPerStep int            `yaml:"max_tasks_per_step"`
	Seed            int64          `yaml:"seed"`
	Mobility        string         `yaml:"mobility"`
	Engine          offload.Config `yaml:"engine"`
}

// DefaultConfig returns a 1000 m × 1000 m × 150 m area stepped every 100 ms.
func DefaultConfig() Config {
	return Config{
		Area:            Area{Width: 1000, Length: 1000, Height: 150},
		TimeStep:        0.1,
		MaxTasksPerStep: 20,
		Seed:            1,
		Mobility:        MobilityStatic,
		Engine:          offload.DefaultConfig(),
	}
}

// ErrInvalidConfig is returned for out-of-range environment settings.
var ErrInvalidConfig = errors.New("invalid environment config")

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.Area.Width <= 0 || c.Area.Length <= 0 || c.Area.Height <= 0:
		return fmt.Errorf("%w: area %+v must have positive dimensions", ErrInvalidConfig, c.Area)
	case c.TimeStep <= 0:
		return fmt.Errorf("%w: time step %v must be positive", ErrInvalidConfig, c.TimeStep)
	case c.MaxTasksPerStep <= 0:
		return fmt.Errorf("%w: max tasks per step %d must be positive", ErrInvalidConfig, c.MaxTasksPerStep)
	case c.Mobility != "" && c.Mobility != MobilityStatic && c.Mobility != MobilityRandomWaypoint:
		return fmt.Errorf("%w: unknown mobility model %q", ErrInvalidConfig, c.Mobility)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
