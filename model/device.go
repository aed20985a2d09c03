package model

import (
	"fmt"
	"math"
	"math/rand"
)

// RadioTechnology is the wireless interface an IoT device uses to reach UAVs.
type RadioTechnology string

const (
	RadioWiFi      RadioTechnology = "wifi"
	RadioBluetooth RadioTechnology = "bluetooth"
	RadioZigbee    RadioTechnology = "zigbee"
	RadioLoRa      RadioTechnology = "lora"
	RadioLTE       RadioTechnology = "lte"
	Radio5G        RadioTechnology = "5g"
)

// RadioProfile holds nominal link parameters of a radio technology.
type RadioProfile struct {
	Bandwidth float64 // nominal data rate, bit/s
	TxPowerMW float64
}

// mbps is one megabit per second. Link rates are in bit/s and data sizes in
// bytes.
const mbps = 1024 * 1024

var radioProfiles = map[RadioTechnology]RadioProfile{
	RadioWiFi:      {Bandwidth: 54 * mbps, TxPowerMW: 100},
	RadioBluetooth: {Bandwidth: 2 * mbps, TxPowerMW: 10},
	RadioZigbee:    {Bandwidth: 0.25 * mbps, TxPowerMW: 1},
	RadioLoRa:      {Bandwidth: 0.05 * mbps, TxPowerMW: 25},
	RadioLTE:       {Bandwidth: 50 * mbps, TxPowerMW: 200},
	Radio5G:        {Bandwidth: 1000 * mbps, TxPowerMW: 200},
}

// RadioTechnologies lists the supported radios in a stable order.
func RadioTechnologies() []RadioTechnology {
	return []RadioTechnology{RadioWiFi, RadioBluetooth, RadioZigbee, RadioLoRa, RadioLTE, Radio5G}
}

// Profile returns the nominal parameters of r.
func (r RadioTechnology) Profile() (RadioProfile, bool) {
	p, ok := radioProfiles[r]
	return p, ok
}

const (
	// maxSpectralEfficiency caps log2(1+SNR); a radio reaches its nominal
	// bandwidth at this efficiency.
	maxSpectralEfficiency = 10.0
	// minLinkRate (bit/s) keeps transfer estimates finite at the edge of
	// coverage.
	minLinkRate = 1024.0
)

// DeviceConfig carries the parameters of a new IoT device.
type DeviceConfig struct {
	ID             string
	Location       Location
	CPUCapacity    float64 // MIPS
	Memory         float64 // MB
	BatteryJoules  float64
	GenerationRate float64 // tasks per second
	Radio          RadioTechnology
	Categories     []Category
}

// IoTDevice is a stationary task source with a battery-powered CPU and radio.
type IoTDevice struct {
	ID              string
	Location        Location
	CPUCapacity     float64
	Memory          float64
	BatteryCapacity float64
	GenerationRate  float64
	Radio           RadioTechnology
	Categories      []Category

	battery          float64
	tasksGenerated   int64
	processedLocally int64
	tasksOffloaded   int64
}

// NewIoTDevice validates cfg and returns a device with a full battery.
func NewIoTDevice(cfg DeviceConfig) (*IoTDevice, error) {
	switch {
	case cfg.ID == "":
		return nil, fmt.Errorf("%w: empty id", ErrInvalidDevice)
	case cfg.CPUCapacity <= 0:
		return nil, fmt.Errorf("%w: device %q cpu capacity %v must be positive", ErrInvalidDevice, cfg.ID, cfg.CPUCapacity)
	case cfg.BatteryJoules < 0:
		return nil, fmt.Errorf("%w: device %q battery %v is negative", ErrInvalidDevice, cfg.ID, cfg.BatteryJoules)
	case cfg.GenerationRate < 0:
		return nil, fmt.Errorf("%w: device %q generation rate %v is negative", ErrInvalidDevice, cfg.ID, cfg.GenerationRate)
	case len(cfg.Categories) == 0:
		return nil, fmt.Errorf("%w: device %q supports no task categories", ErrInvalidDevice, cfg.ID)
	}
	radio := cfg.Radio
	if radio == "" {
		radio = RadioWiFi
	}
	if _, ok := radio.Profile(); !ok {
		return nil, fmt.Errorf("%w: device %q unknown radio %q", ErrInvalidDevice, cfg.ID, radio)
	}
	for _, c := range cfg.Categories {
		if _, ok := c.Profile(); !ok {
			return nil, fmt.Errorf("%w: device %q unknown category %q", ErrInvalidDevice, cfg.ID, c)
		}
	}
	return &IoTDevice{
		ID:              cfg.ID,
		Location:        cfg.Location,
		CPUCapacity:     cfg.CPUCapacity,
		Memory:          cfg.Memory,
		BatteryCapacity: cfg.BatteryJoules,
		GenerationRate:  cfg.GenerationRate,
		Radio:           radio,
		Categories:      append([]Category(nil), cfg.Categories...),
		battery:         cfg.BatteryJoules,
	}, nil
}

// CPUPowerW is the draw of the device CPU while computing.
func (d *IoTDevice) CPUPowerW() float64 {
	return 0.5 + d.CPUCapacity/2000
}

// TxPowerW is the draw of the device radio while transmitting.
func (d *IoTDevice) TxPowerW() float64 {
	p, _ := d.Radio.Profile()
	return p.TxPowerMW / 1000
}

// Battery returns the remaining battery in joules.
func (d *IoTDevice) Battery() float64 { return d.battery }

// BatteryPercentage returns remaining battery in [0, 100].
func (d *IoTDevice) BatteryPercentage() float64 {
	if d.BatteryCapacity <= 0 {
		return 0
	}
	return 100 * d.battery / d.BatteryCapacity
}

// GenerateTask creates a task of a randomly chosen supported category at the
// device location.
func (d *IoTDevice) GenerateTask(id string, rng *rand.Rand, now float64) (*Task, error) {
	c := d.Categories[rng.Intn(len(d.Categories))]
	p, _ := c.Profile()
	length, in, out, deadline := p.Sample(rng)
	t, err := NewTask(TaskConfig{
		ID:             id,
		Category:       c,
		Length:         length,
		InputSize:      in,
		OutputSize:     out,
		Deadline:       deadline,
		Priority:       p.DefaultPriority,
		MaxEnergy:      localEnergyBudget(d, length),
		SourceLocation: d.Location,
		SubmissionTime: now,
	})
	if err != nil {
		return nil, err
	}
	d.tasksGenerated++
	return t, nil
}

// localEnergyBudget is what running a task of the given length on d costs.
func localEnergyBudget(d *IoTDevice, length float64) float64 {
	return d.CPUPowerW() * length / 1000
}

// EstimateLocalExecutionTime returns the seconds needed to run t on the device.
func (d *IoTDevice) EstimateLocalExecutionTime(t *Task) float64 {
	return t.Length / d.CPUCapacity
}

// CanProcessLocally reports the reason local execution would fail, or nil.
func (d *IoTDevice) CanProcessLocally(t *Task) error {
	if d.battery <= 0 {
		return fmt.Errorf("%w: device %q", ErrBatteryDepleted, d.ID)
	}
	if d.EstimateLocalExecutionTime(t) > t.Deadline {
		return fmt.Errorf("%w: device %q task %q", ErrDeadlineInfeasible, d.ID, t.ID)
	}
	if need := t.LocalEnergy(d.CPUPowerW()); need > d.battery {
		return fmt.Errorf("%w: device %q needs %.2f J has %.2f J", ErrInsufficientBattery, d.ID, need, d.battery)
	}
	return nil
}

// ProcessTaskLocally runs t on the device. On failure nothing is changed.
func (d *IoTDevice) ProcessTaskLocally(t *Task) error {
	if err := d.CanProcessLocally(t); err != nil {
		return err
	}
	if !CanTransition(t.Status(), TaskProcessing) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status(), TaskProcessing)
	}
	d.battery -= t.LocalEnergy(d.CPUPowerW())
	_ = t.Transition(TaskProcessing)
	_ = t.Transition(TaskCompleted)
	t.assignTo(d.ID)
	d.processedLocally++
	return nil
}

// EffectiveBandwidth returns the achievable data rate in bit/s from the
// device to u.
// The radio's nominal bandwidth is scaled by Shannon efficiency at the current
// SNR and capped by the UAV's own bandwidth.
func (d *IoTDevice) EffectiveBandwidth(u *UAV) float64 {
	p, _ := d.Radio.Profile()
	snr := d.Location.SNRDB(u.Location(), MilliwattsToDBm(p.TxPowerMW), NoiseFloorDBm)
	eff := math.Min(ShannonEfficiency(snr), maxSpectralEfficiency)
	rate := p.Bandwidth * eff / maxSpectralEfficiency
	if u.Bandwidth > 0 {
		rate = math.Min(rate, u.Bandwidth)
	}
	return math.Max(rate, minLinkRate)
}

// EstimateTransferTime returns the seconds needed to upload t's input and
// download its output over the link to u.
func (d *IoTDevice) EstimateTransferTime(t *Task, u *UAV) float64 {
	return 8 * float64(t.InputSize+t.OutputSize) / d.EffectiveBandwidth(u)
}

// CalculateOffloadingEnergy returns the device-side energy to send t to u.
func (d *IoTDevice) CalculateOffloadingEnergy(t *Task, u *UAV) float64 {
	return t.TransmissionEnergy(d.TxPowerW(), d.EffectiveBandwidth(u))
}

// EstimateTotalOffloadingTime is transfer time plus UAV processing time.
func (d *IoTDevice) EstimateTotalOffloadingTime(t *Task, u *UAV) float64 {
	return d.EstimateTransferTime(t, u) + u.EstimateCompletionTime(t)
}

// OffloadTask hands t to u. The UAV must admit the task and the device must
// afford the transmission; otherwise nothing is changed.
func (d *IoTDevice) OffloadTask(t *Task, u *UAV) error {
	if err := u.CheckAdmission(t); err != nil {
		return err
	}
	if d.battery <= 0 {
		return fmt.Errorf("%w: device %q", ErrBatteryDepleted, d.ID)
	}
	energy := d.CalculateOffloadingEnergy(t, u)
	if energy > d.battery {
		return fmt.Errorf("%w: device %q needs %.2f J to transmit has %.2f J", ErrInsufficientBattery, d.ID, energy, d.battery)
	}
	prev := t.status
	if err := t.Transition(TaskTransferring); err != nil {
		return err
	}
	// The battery is charged only once the UAV has taken the task; a late
	// rejection restores the task's previous status.
	if err := u.AssignTask(t); err != nil {
		t.status = prev
		return err
	}
	d.battery -= energy
	d.tasksOffloaded++
	return nil
}

// DeviceSnapshot is a point-in-time copy of a device.
type DeviceSnapshot struct {
	ID                string          `json:"id"`
	Location          Location        `json:"location"`
	CPUCapacity       float64         `json:"cpuCapacity"`
	Memory            float64         `json:"memory"`
	Battery           float64         `json:"battery"`
	BatteryPercentage float64         `json:"batteryPercentage"`
	GenerationRate    float64         `json:"generationRate"`
	Radio             RadioTechnology `json:"radio"`
	Categories        []Category      `json:"categories"`
	TasksGenerated    int64           `json:"tasksGenerated"`
	ProcessedLocally  int64           `json:"processedLocally"`
	TasksOffloaded    int64           `json:"tasksOffloaded"`
}

// Snapshot returns a copy of the device state.
func (d *IoTDevice) Snapshot() DeviceSnapshot {
	return DeviceSnapshot{
		ID:                d.ID,
		Location:          d.Location,
		CPUCapacity:       d.CPUCapacity,
		Memory:            d.Memory,
		Battery:           d.battery,
		BatteryPercentage: d.BatteryPercentage(),
		GenerationRate:    d.GenerationRate,
		Radio:             d.Radio,
		Categories:        append([]Category(nil), d.Categories...),
		TasksGenerated:    d.tasksGenerated,
		ProcessedLocally:  d.processedLocally,
		TasksOffloaded:    d.tasksOffloaded,
	}
}
