package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTask is returned when task parameters are out of range.
	ErrInvalidTask = errors.New("invalid task")
	// ErrInvalidDevice is returned when device parameters are out of range.
	ErrInvalidDevice = errors.New("invalid device")
	// ErrInvalidUAV is returned when UAV parameters are out of range.
	ErrInvalidUAV = errors.New("invalid uav")
	// ErrMissingLocation is returned when a UAV is constructed without a position.
	ErrMissingLocation = errors.New("uav location is required")

	// ErrTerminalTask is returned when a transition out of a terminal state is attempted.
	ErrTerminalTask = errors.New("task is in a terminal state")
	// ErrInvalidTransition is returned for transitions not in the lifecycle graph.
	ErrInvalidTransition = errors.New("invalid task transition")

	// ErrBatteryDepleted is returned when a device has no battery left.
	ErrBatteryDepleted = errors.New("device battery depleted")
	// ErrInsufficientBattery is returned when remaining battery cannot cover an operation.
	ErrInsufficientBattery = errors.New("insufficient device battery")
	// ErrDeadlineInfeasible is returned when local execution cannot meet the deadline.
	ErrDeadlineInfeasible = errors.New("deadline cannot be met locally")

	// ErrTaskNotAssigned is returned when completing a task the UAV does not hold.
	ErrTaskNotAssigned = errors.New("task not assigned to uav")
	// ErrNotOperational is returned for commands against a UAV that cannot act.
	ErrNotOperational = errors.New("uav not operational")
)

// RejectReason explains why a UAV refused a task.
type RejectReason int

const (
	RejectNone RejectReason = iota
	// RejectNotOperational: the UAV is OUT_OF_ENERGY or in MAINTENANCE.
	RejectNotOperational
	// RejectDeadline: estimated completion exceeds the task deadline.
	RejectDeadline
	// RejectEnergy: uncommitted energy is below the processing requirement.
	RejectEnergy
	// RejectCapacity: admitting the task would push load above 1.
	RejectCapacity
)

func (r RejectReason) String() string {
	switch r {
	case RejectNone:
		return "none"
	case RejectNotOperational:
		return "not_operational"
	case RejectDeadline:
		return "deadline"
	case RejectEnergy:
		return "energy"
	case RejectCapacity:
		return "capacity"
	default:
		return fmt.Sprintf("RejectReason(%d)", int(r))
	}
}

// AdmissionError is returned by UAV admission checks.
type AdmissionError struct {
	UAVID  string
	TaskID string
	Reason RejectReason
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("uav %q rejected task %q: %s", e.UAVID, e.TaskID, e.Reason)
}

// RejectReasonOf extracts the rejection reason from err, or RejectNone.
func RejectReasonOf(err error) RejectReason {
	var ae *AdmissionError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return RejectNone
}
