package model

import "fmt"

// OffloadingTarget is where a task is executed.
type OffloadingTarget int

const (
	TargetLocal OffloadingTarget = iota
	TargetUAV
	// TargetCloud is reserved; the simulator never produces it.
	TargetCloud
)

func (t OffloadingTarget) String() string {
	switch t {
	case TargetLocal:
		return "local"
	case TargetUAV:
		return "uav"
	case TargetCloud:
		return "cloud"
	default:
		return fmt.Sprintf("OffloadingTarget(%d)", int(t))
	}
}

// OffloadingDecision is the placement chosen for one task. It is never
// modified after construction.
type OffloadingDecision struct {
	Target           OffloadingTarget
	UAV              *UAV // nil unless Target == TargetUAV
	EstimatedLatency float64
	EstimatedEnergy  float64
	// Fallback names why the policy's choice was overridden, or is empty.
	Fallback string
}

// LocalDecision places the task on its source device.
func LocalDecision(latency, energy float64, fallback string) OffloadingDecision {
	return OffloadingDecision{Target: TargetLocal, EstimatedLatency: latency, EstimatedEnergy: energy, Fallback: fallback}
}

// UAVDecision places the task on u.
func UAVDecision(u *UAV, latency, energy float64, fallback string) OffloadingDecision {
	return OffloadingDecision{Target: TargetUAV, UAV: u, EstimatedLatency: latency, EstimatedEnergy: energy, Fallback: fallback}
}

// Kind returns the metrics label of the decision target.
func (d OffloadingDecision) Kind() string { return d.Target.String() }

func (d OffloadingDecision) String() string {
	if d.UAV != nil {
		return fmt.Sprintf("%s(%s) latency=%.3fs energy=%.3fJ", d.Target, d.UAV.ID, d.EstimatedLatency, d.EstimatedEnergy)
	}
	return fmt.Sprintf("%s latency=%.3fs energy=%.3fJ", d.Target, d.EstimatedLatency, d.EstimatedEnergy)
}
