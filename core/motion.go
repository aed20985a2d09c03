package core

import (
	"math/rand"

	"github.com/signalsfoundry/uav-offload-sim/model"
)

// MotionModel plans UAV movement before positions are advanced each step.
type MotionModel interface {
	Plan(u *model.UAV, rng *rand.Rand)
}

// StaticMotion never sets targets. UAVs only move when an operator calls
// SetUAVTarget.
type StaticMotion struct{}

// Plan for static motion does nothing.
func (StaticMotion) Plan(*model.UAV, *rand.Rand) {}

// RandomWaypointMotion sends every idle UAV to a uniformly drawn point of the
// area at its current altitude.
type RandomWaypointMotion struct {
	Area Area
}

// Plan picks a new waypoint once the previous one was reached.
func (m RandomWaypointMotion) Plan(u *model.UAV, rng *rand.Rand) {
	if u.Status() != model.UAVIdle {
		return
	}
	if _, ok := u.Target(); ok {
		return
	}
	alt := u.Location().Z
	_ = u.SetTarget(model.NewLocation(rng.Float64()*m.Area.Width, rng.Float64()*m.Area.Length, alt))
}

// NewMotionModel chooses the motion model named by kind. Unknown or empty
// names fall back to static motion.
func NewMotionModel(kind string, area Area) MotionModel {
	if kind == MobilityRandomWaypoint {
		return RandomWaypointMotion{Area: area}
	}
	return StaticMotion{}
}
