package model

import "fmt"

// TaskStatus is the lifecycle state of a task.
type TaskStatus int

const (
	TaskCreated TaskStatus = iota
	TaskReady
	TaskWaiting
	TaskTransferring
	TaskProcessing
	TaskCompleted
	TaskFailed
	TaskDropped
	TaskReturned
)

var taskStatusNames = map[TaskStatus]string{
	TaskCreated:      "CREATED",
	TaskReady:        "READY",
	TaskWaiting:      "WAITING",
	TaskTransferring: "TRANSFERRING",
	TaskProcessing:   "PROCESSING",
	TaskCompleted:    "COMPLETED",
	TaskFailed:       "FAILED",
	TaskDropped:      "DROPPED",
	TaskReturned:     "RETURNED",
}

func (s TaskStatus) String() string {
	if name, ok := taskStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("TaskStatus(%d)", int(s))
}

// taskTransitions is the lifecycle graph. COMPLETED may only move to RETURNED.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskCreated:      {TaskReady},
	TaskReady:        {TaskWaiting, TaskTransferring, TaskProcessing, TaskDropped, TaskFailed},
	TaskWaiting:      {TaskTransferring, TaskProcessing, TaskDropped, TaskFailed},
	TaskTransferring: {TaskProcessing, TaskFailed},
	TaskProcessing:   {TaskCompleted, TaskFailed},
	TaskCompleted:    {TaskReturned},
}

// IsTerminal reports whether the status ends the task's life. COMPLETED is
// terminal for placement purposes even though RETURNED may follow it.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskDropped, TaskReturned:
		return true
	}
	return false
}

// CanTransition reports whether from → to is a legal lifecycle edge.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range taskTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

const (
	MinPriority = 1
	MaxPriority = 10
)

// TaskConfig carries the parameters of a new task.
type TaskConfig struct {
	ID             string
	Category       Category
	Length         float64 // million instructions
	InputSize      int64   // bytes
	OutputSize     int64   // bytes
	Deadline       float64 // seconds
	Priority       int
	MaxEnergy      float64 // joules, informational
	SourceLocation Location
	SubmissionTime float64 // simulated seconds
}

// Task is a unit of computation generated by an IoT device.
type Task struct {
	ID             string
	Category       Category
	Length         float64
	InputSize      int64
	OutputSize     int64
	Deadline       float64
	Priority       int
	MaxEnergy      float64
	SourceLocation Location
	SubmissionTime float64

	status           TaskStatus
	assignedResource string
}

// NewTask validates cfg and returns a CREATED task. Priority is clamped to
// [MinPriority, MaxPriority].
func NewTask(cfg TaskConfig) (*Task, error) {
	switch {
	case cfg.ID == "":
		return nil, fmt.Errorf("%w: empty id", ErrInvalidTask)
	case cfg.Length <= 0:
		return nil, fmt.Errorf("%w: length %v must be positive", ErrInvalidTask, cfg.Length)
	case cfg.Deadline <= 0:
		return nil, fmt.Errorf("%w: deadline %v must be positive", ErrInvalidTask, cfg.Deadline)
	case cfg.InputSize < 0 || cfg.OutputSize < 0:
		return nil, fmt.Errorf("%w: negative data size", ErrInvalidTask)
	}
	return &Task{
		ID:             cfg.ID,
		Category:       cfg.Category,
		Length:         cfg.Length,
		InputSize:      cfg.InputSize,
		OutputSize:     cfg.OutputSize,
		Deadline:       cfg.Deadline,
		Priority:       clampPriority(cfg.Priority),
		MaxEnergy:      cfg.MaxEnergy,
		SourceLocation: cfg.SourceLocation,
		SubmissionTime: cfg.SubmissionTime,
		status:         TaskCreated,
	}, nil
}

func clampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// Status returns the current lifecycle state.
func (t *Task) Status() TaskStatus { return t.status }

// AssignedResource returns the ID of the executing device or UAV, or "".
func (t *Task) AssignedResource() string { return t.assignedResource }

// Transition moves the task to the given status. The task is left untouched
// when the edge is not allowed.
func (t *Task) Transition(to TaskStatus) error {
	if t.status.IsTerminal() && !(t.status == TaskCompleted && to == TaskReturned) {
		return fmt.Errorf("%w: %s -> %s", ErrTerminalTask, t.status, to)
	}
	if !CanTransition(t.status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.status, to)
	}
	t.status = to
	return nil
}

func (t *Task) assignTo(resourceID string) {
	t.assignedResource = resourceID
}

// Utility is a unitless value score used for ranking work: priority scaled by
// how much computation fits into each second of deadline.
func (t *Task) Utility() float64 {
	return float64(t.Priority) * (t.Length / 1000) / t.Deadline
}

// LocalEnergy is the energy (J) needed to run the task on a CPU drawing
// cpuPowerW watts.
func (t *Task) LocalEnergy(cpuPowerW float64) float64 {
	return cpuPowerW * t.Length / 1000
}

// TransmissionEnergy is the energy (J) needed to send the input over a link
// of rate bit/s with a radio drawing txPowerW watts.
func (t *Task) TransmissionEnergy(txPowerW, rate float64) float64 {
	if rate <= 0 {
		return 0
	}
	return txPowerW * 8 * float64(t.InputSize) / rate
}

// IsExpired reports whether the deadline has passed at simulated time now.
func (t *Task) IsExpired(now float64) bool {
	return now-t.SubmissionTime > t.Deadline
}

func (t *Task) String() string {
	return fmt.Sprintf("Task{id=%s category=%s length=%.0f status=%s}", t.ID, t.Category, t.Length, t.status)
}
