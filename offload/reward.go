package offload

import "math"

// Reward weights. They sum to 1 so rewards stay in [0, 1].
const (
	deadlineWeight = 0.4
	latencyWeight  = 0.3
	energyWeight   = 0.3
)

// Outcome describes how a placed task ended.
type Outcome struct {
	Completed bool
	Latency   float64 // seconds
	Deadline  float64 // seconds
	// Energy is what the source device spent on the task.
	Energy float64
	// EnergyBudget is the cost of running the task locally.
	EnergyBudget float64
}

// Reward scores an outcome in [0, 1]. Failed tasks score 0.
func Reward(o Outcome) float64 {
	if !o.Completed || o.Deadline <= 0 {
		return 0
	}
	var r float64
	if o.Latency <= o.Deadline {
		r += deadlineWeight
	}
	r += latencyWeight * (1 - math.Min(o.Latency/o.Deadline, 1))
	if o.EnergyBudget > 0 {
		r += energyWeight * (1 - math.Min(o.Energy/o.EnergyBudget, 1))
	}
	return r
}
