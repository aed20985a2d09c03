package model

import (
	"fmt"
	"math"
)

// UAVStatus is the operational state of a UAV.
type UAVStatus int

const (
	UAVIdle UAVStatus = iota
	UAVProcessing
	UAVMoving
	UAVOutOfEnergy
	UAVMaintenance
)

func (s UAVStatus) String() string {
	switch s {
	case UAVIdle:
		return "IDLE"
	case UAVProcessing:
		return "PROCESSING"
	case UAVMoving:
		return "MOVING"
	case UAVOutOfEnergy:
		return "OUT_OF_ENERGY"
	case UAVMaintenance:
		return "MAINTENANCE"
	default:
		return fmt.Sprintf("UAVStatus(%d)", int(s))
	}
}

// Defaults applied to zero-valued UAVConfig fields. Speed is in m/s, flight
// time in s, energy in J, CPU in MIPS, memory and storage in MB, range in m.
const (
	DefaultUAVSpeed      = 10.0
	DefaultUAVFlightTime = 1800.0
	DefaultUAVEnergy     = 18000.0
	DefaultUAVCPU        = 10000.0
	DefaultUAVMemory     = 4096.0
	DefaultUAVStorage    = 65536.0
	DefaultUAVBandwidth  = 100 * mbps
	DefaultUAVTxPowerMW  = 100.0
	DefaultUAVRange      = 1000.0
)

const (
	// MovementEnergyPerMetre is the propulsion cost of flight in J/m.
	MovementEnergyPerMetre = 0.1
	// ArrivalTolerance is the distance under which a target counts as reached.
	ArrivalTolerance = 0.1
)

// ProcessingEnergy is the energy (J) a UAV spends executing t.
func ProcessingEnergy(t *Task) float64 {
	return 0.01*t.Length + 0.5
}

// UAVConfig carries the parameters of a new UAV. Location is required.
type UAVConfig struct {
	ID                 string
	Location           *Location
	MaxSpeed           float64 // m/s
	MaxFlightTime      float64 // s
	TotalEnergy        float64 // J
	CPUCapacity        float64 // MIPS
	Memory             float64 // MB
	Storage            float64 // MB
	Bandwidth          float64 // bit/s
	TransmitPowerMW    float64
	CommunicationRange float64 // m
}

// UAV is a mobile edge server with finite energy and CPU capacity.
type UAV struct {
	ID                 string
	MaxSpeed           float64
	MaxFlightTime      float64
	TotalEnergy        float64
	CPUCapacity        float64
	Memory             float64
	Storage            float64
	Bandwidth          float64
	TransmitPowerMW    float64
	CommunicationRange float64

	location        Location
	target          *Location
	speed           float64
	energy          float64
	committedEnergy float64
	load            float64
	status          UAVStatus
	assigned        []*Task
	completed       int64
	sentinel        bool
}

// NewUAV validates cfg, applies defaults and returns an IDLE UAV with full
// energy.
func NewUAV(cfg UAVConfig) (*UAV, error) {
	if cfg.Location == nil {
		return nil, fmt.Errorf("%w: uav %q", ErrMissingLocation, cfg.ID)
	}
	if cfg.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidUAV)
	}
	for name, v := range map[string]float64{
		"max speed":           cfg.MaxSpeed,
		"max flight time":     cfg.MaxFlightTime,
		"total energy":        cfg.TotalEnergy,
		"cpu capacity":        cfg.CPUCapacity,
		"memory":              cfg.Memory,
		"storage":             cfg.Storage,
		"bandwidth":           cfg.Bandwidth,
		"transmit power":      cfg.TransmitPowerMW,
		"communication range": cfg.CommunicationRange,
	} {
		if v < 0 {
			return nil, fmt.Errorf("%w: uav %q %s %v is negative", ErrInvalidUAV, cfg.ID, name, v)
		}
	}
	u := &UAV{
		ID:                 cfg.ID,
		MaxSpeed:           orDefault(cfg.MaxSpeed, DefaultUAVSpeed),
		MaxFlightTime:      orDefault(cfg.MaxFlightTime, DefaultUAVFlightTime),
		TotalEnergy:        orDefault(cfg.TotalEnergy, DefaultUAVEnergy),
		CPUCapacity:        orDefault(cfg.CPUCapacity, DefaultUAVCPU),
		Memory:             orDefault(cfg.Memory, DefaultUAVMemory),
		Storage:            orDefault(cfg.Storage, DefaultUAVStorage),
		Bandwidth:          orDefault(cfg.Bandwidth, DefaultUAVBandwidth),
		TransmitPowerMW:    orDefault(cfg.TransmitPowerMW, DefaultUAVTxPowerMW),
		CommunicationRange: orDefault(cfg.CommunicationRange, DefaultUAVRange),
		location:           *cfg.Location,
		status:             UAVIdle,
	}
	u.energy = u.TotalEnergy
	return u, nil
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// NewSentinelUAV returns a placeholder that fills an unused decision slot. It
// sits at loc with 1 MIPS and a drained 1 J battery, so it can never admit a
// task.
func NewSentinelUAV(index int, loc Location) *UAV {
	u, _ := NewUAV(UAVConfig{
		ID:          fmt.Sprintf("sentinel-%d", index),
		Location:    &loc,
		CPUCapacity: 1,
		TotalEnergy: 1,
	})
	u.ConsumeEnergy(u.energy)
	u.sentinel = true
	return u
}

// IsSentinel reports whether u is a padding placeholder.
func (u *UAV) IsSentinel() bool { return u.sentinel }

// Location returns the current position.
func (u *UAV) Location() Location { return u.location }

// Target returns the movement target, if any.
func (u *UAV) Target() (Location, bool) {
	if u.target == nil {
		return Location{}, false
	}
	return *u.target, true
}

// Speed returns the current speed in m/s.
func (u *UAV) Speed() float64 { return u.speed }

// Status returns the operational state.
func (u *UAV) Status() UAVStatus { return u.status }

// Energy returns the remaining energy in joules.
func (u *UAV) Energy() float64 { return u.energy }

// AvailableEnergy is remaining energy not yet committed to assigned tasks.
func (u *UAV) AvailableEnergy() float64 {
	return math.Max(0, u.energy-u.committedEnergy)
}

// EnergyPercentage returns remaining energy in [0, 100].
func (u *UAV) EnergyPercentage() float64 {
	if u.TotalEnergy <= 0 {
		return 0
	}
	return 100 * u.energy / u.TotalEnergy
}

// Load returns the fraction of CPU capacity reserved by assigned tasks.
func (u *UAV) Load() float64 { return u.load }

// AssignedTasks returns a copy of the assigned task list.
func (u *UAV) AssignedTasks() []*Task {
	return append([]*Task(nil), u.assigned...)
}

// CompletedTasks returns the number of tasks this UAV finished.
func (u *UAV) CompletedTasks() int64 { return u.completed }

// IsOperational reports whether the UAV may accept work or move.
func (u *UAV) IsOperational() bool {
	return u.status != UAVOutOfEnergy && u.status != UAVMaintenance
}

// IsInRangeOf reports whether loc is within communication range.
func (u *UAV) IsInRangeOf(loc Location) bool {
	return u.location.DistanceTo(loc) <= u.CommunicationRange
}

// TaskLoad is the CPU fraction t reserves on u for the length of its deadline.
func (u *UAV) TaskLoad(t *Task) float64 {
	return t.Length / (u.CPUCapacity * t.Deadline)
}

// EstimateCompletionTime returns the seconds u needs for t given the current
// load. Effective capacity never drops below 1 MIPS.
func (u *UAV) EstimateCompletionTime(t *Task) float64 {
	return t.Length / math.Max(1, u.CPUCapacity*(1-u.load))
}

// CheckAdmission returns an *AdmissionError describing the first failed check
// (operational, deadline, energy, capacity) or nil when u can take t.
func (u *UAV) CheckAdmission(t *Task) error {
	reject := func(r RejectReason) error {
		return &AdmissionError{UAVID: u.ID, TaskID: t.ID, Reason: r}
	}
	if !u.IsOperational() {
		return reject(RejectNotOperational)
	}
	if u.EstimateCompletionTime(t) > t.Deadline {
		return reject(RejectDeadline)
	}
	if ProcessingEnergy(t) > u.AvailableEnergy() {
		return reject(RejectEnergy)
	}
	if u.load+u.TaskLoad(t) > 1 {
		return reject(RejectCapacity)
	}
	return nil
}

// CanProcessTask reports whether CheckAdmission passes.
func (u *UAV) CanProcessTask(t *Task) bool {
	return u.CheckAdmission(t) == nil
}

// AssignTask admits t and moves it to PROCESSING. It fails without side
// effects when admission fails.
func (u *UAV) AssignTask(t *Task) error {
	if err := u.CheckAdmission(t); err != nil {
		return err
	}
	if err := t.Transition(TaskProcessing); err != nil {
		return err
	}
	t.assignTo(u.ID)
	u.assigned = append(u.assigned, t)
	u.committedEnergy += ProcessingEnergy(t)
	u.load += u.TaskLoad(t)
	if u.status == UAVIdle {
		u.status = UAVProcessing
	}
	return nil
}

// CompleteTask finishes t, releases its load and charges its processing
// energy. It returns the energy consumed.
func (u *UAV) CompleteTask(t *Task) (float64, error) {
	idx := u.indexOf(t)
	if idx < 0 {
		return 0, fmt.Errorf("%w: uav %q task %q", ErrTaskNotAssigned, u.ID, t.ID)
	}
	if err := t.Transition(TaskCompleted); err != nil {
		return 0, err
	}
	u.release(idx, t)
	used := u.ConsumeEnergy(ProcessingEnergy(t))
	u.completed++
	u.settle()
	return used, nil
}

// AbortTask fails an assigned task and releases its reservation without
// charging energy.
func (u *UAV) AbortTask(t *Task) error {
	idx := u.indexOf(t)
	if idx < 0 {
		return fmt.Errorf("%w: uav %q task %q", ErrTaskNotAssigned, u.ID, t.ID)
	}
	if err := t.Transition(TaskFailed); err != nil {
		return err
	}
	u.release(idx, t)
	u.settle()
	return nil
}

func (u *UAV) indexOf(t *Task) int {
	for i, a := range u.assigned {
		if a == t {
			return i
		}
	}
	return -1
}

func (u *UAV) release(idx int, t *Task) {
	u.assigned = append(u.assigned[:idx], u.assigned[idx+1:]...)
	u.load = math.Max(0, u.load-u.TaskLoad(t))
	if len(u.assigned) == 0 {
		u.load = 0
	}
	u.committedEnergy = math.Max(0, u.committedEnergy-ProcessingEnergy(t))
}

// ConsumeEnergy draws up to j joules and returns the amount actually drawn.
// Reaching zero moves the UAV to OUT_OF_ENERGY permanently.
func (u *UAV) ConsumeEnergy(j float64) float64 {
	if j <= 0 {
		return 0
	}
	used := math.Min(j, u.energy)
	u.energy -= used
	if u.energy <= 0 {
		u.energy = 0
		u.status = UAVOutOfEnergy
		u.speed = 0
		u.target = nil
	}
	return used
}

// SetTarget starts a straight-line flight towards loc at maximum speed.
func (u *UAV) SetTarget(loc Location) error {
	if !u.IsOperational() {
		return fmt.Errorf("%w: uav %q is %s", ErrNotOperational, u.ID, u.status)
	}
	u.target = &loc
	u.speed = u.MaxSpeed
	u.status = UAVMoving
	return nil
}

// SetMaintenance takes the UAV out of service or returns it. An UAV that ran
// out of energy stays OUT_OF_ENERGY. A target set before maintenance is kept
// and flight towards it resumes on return.
func (u *UAV) SetMaintenance(on bool) {
	if u.status == UAVOutOfEnergy {
		return
	}
	if on {
		u.status = UAVMaintenance
		u.speed = 0
		return
	}
	if u.status != UAVMaintenance {
		return
	}
	if u.target != nil {
		u.speed = u.MaxSpeed
		u.status = UAVMoving
		return
	}
	u.status = UAVIdle
	u.settle()
}

// UpdatePosition advances the UAV along its target for dt seconds and returns
// the distance flown.
func (u *UAV) UpdatePosition(dt float64) float64 {
	if u.target == nil || !u.IsOperational() {
		u.speed = 0
		return 0
	}
	remaining := u.location.DistanceTo(*u.target)
	if remaining < ArrivalTolerance {
		u.location = *u.target
		u.arrive()
		return 0
	}
	step := math.Min(remaining, u.speed*dt)
	if affordable := u.energy / MovementEnergyPerMetre; step > affordable {
		step = affordable
	}
	u.location = u.location.MoveTowards(*u.target, step)
	u.ConsumeEnergy(step * MovementEnergyPerMetre)
	if u.IsOperational() && u.location.DistanceTo(*u.target) < ArrivalTolerance {
		u.location = *u.target
		u.arrive()
	}
	return step
}

func (u *UAV) arrive() {
	u.target = nil
	u.speed = 0
	u.status = UAVIdle
	u.settle()
}

// settle derives IDLE or PROCESSING from the assigned set when not flying.
func (u *UAV) settle() {
	if !u.IsOperational() || u.target != nil {
		return
	}
	if len(u.assigned) > 0 {
		u.status = UAVProcessing
	} else {
		u.status = UAVIdle
	}
}

// UAVSnapshot is a point-in-time copy of a UAV.
type UAVSnapshot struct {
	ID                 string    `json:"id"`
	Location           Location  `json:"location"`
	Target             *Location `json:"target,omitempty"`
	Status             string    `json:"status"`
	Speed              float64   `json:"speed"`
	Energy             float64   `json:"energy"`
	EnergyPercentage   float64   `json:"energyPercentage"`
	CPUCapacity        float64   `json:"cpuCapacity"`
	Load               float64   `json:"load"`
	CommunicationRange float64   `json:"communicationRange"`
	AssignedTasks      []string  `json:"assignedTasks"`
	CompletedTasks     int64     `json:"completedTasks"`
}

// Snapshot returns a copy of the UAV state.
func (u *UAV) Snapshot() UAVSnapshot {
	s := UAVSnapshot{
		ID:                 u.ID,
		Location:           u.location,
		Status:             u.status.String(),
		Speed:              u.speed,
		Energy:             u.energy,
		EnergyPercentage:   u.EnergyPercentage(),
		CPUCapacity:        u.CPUCapacity,
		Load:               u.load,
		CommunicationRange: u.CommunicationRange,
		AssignedTasks:      make([]string, 0, len(u.assigned)),
		CompletedTasks:     u.completed,
	}
	if u.target != nil {
		tgt := *u.target
		s.Target = &tgt
	}
	for _, t := range u.assigned {
		s.AssignedTasks = append(s.AssignedTasks, t.ID)
	}
	return s
}
