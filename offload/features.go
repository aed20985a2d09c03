package offload

import "github.com/signalsfoundry/uav-offload-sim/model"

// Feature layout: task (5), device (3), then 3 values per UAV slot.
const (
	taskFeatures   = 5
	deviceFeatures = 3
	slotFeatures   = 3

	featLength   = 0
	featInput    = 1
	featOutput   = 2
	featDeadline = 3
	featPriority = 4
	featDeviceX  = 5
	featDeviceY  = 6
	featBattery  = 7
	featSlots    = taskFeatures + deviceFeatures

	megabyte = 1024 * 1024
)

// FeatureLen returns the feature vector length for the given slot count.
func FeatureLen(slots int) int {
	return taskFeatures + deviceFeatures + slotFeatures*slots
}

// Features encodes a task, its device and exactly len(slots) UAVs.
func Features(t *model.Task, d *model.IoTDevice, slots []*model.UAV) []float64 {
	f := make([]float64, FeatureLen(len(slots)))
	f[featLength] = t.Length / 10000
	f[featInput] = float64(t.InputSize) / megabyte
	f[featOutput] = float64(t.OutputSize) / megabyte
	f[featDeadline] = t.Deadline / 10
	f[featPriority] = float64(t.Priority) / 10
	f[featDeviceX] = d.Location.X / 1000
	f[featDeviceY] = d.Location.Y / 1000
	f[featBattery] = d.BatteryPercentage() / 100
	for i, u := range slots {
		base := featSlots + slotFeatures*i
		loc := u.Location()
		f[base] = loc.X / 1000
		f[base+1] = loc.Y / 1000
		f[base+2] = u.EnergyPercentage() / 100
	}
	return f
}

// fitSlots returns exactly n UAVs: the first n of reachable in order, padded
// with sentinels at the device location. It also reports whether padding or
// truncation happened.
func fitSlots(reachable []*model.UAV, n int, at model.Location) (slots []*model.UAV, padded, truncated int) {
	slots = make([]*model.UAV, 0, n)
	for _, u := range reachable {
		if len(slots) == n {
			break
		}
		slots = append(slots, u)
	}
	truncated = len(reachable) - len(slots)
	for i := len(slots); i < n; i++ {
		slots = append(slots, model.NewSentinelUAV(i, at))
		padded++
	}
	return slots, padded, truncated
}
