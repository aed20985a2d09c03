// Package metrics aggregates simulation outcomes with lock-free counters.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Decision kinds recorded by RecordDecision.
const (
	DecisionLocal = "local"
	DecisionUAV   = "uav"
	DecisionCloud = "cloud"
)

type utilization struct {
	sum     atomicFloat
	samples atomic.Int64
}

// Collector accumulates task outcomes, energy and decision counts. All
// recording methods are safe for concurrent use and never block.
type Collector struct {
	tasksCreated   atomic.Int64
	tasksCompleted atomic.Int64
	tasksFailed    atomic.Int64
	tasksDropped   atomic.Int64

	deadlinesMet    atomic.Int64
	deadlinesMissed atomic.Int64
	latencySumMs    atomicFloat
	latency         extrema

	deviceEnergy     atomicFloat
	uavEnergy        atomicFloat
	bytesTransferred atomic.Int64

	decisionLocal atomic.Int64
	decisionUAV   atomic.Int64
	decisionCloud atomic.Int64
	fallbacks     atomic.Int64
	retrains      atomic.Int64

	utilSum     atomicFloat
	utilSamples atomic.Int64
	perUAV      sync.Map // uav id -> *utilization
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	c := &Collector{}
	c.latency.Reset()
	return c
}

// RecordTaskCreated counts a generated task.
func (c *Collector) RecordTaskCreated() { c.tasksCreated.Add(1) }

// RecordTaskCompleted counts a finished task with its end-to-end latency.
func (c *Collector) RecordTaskCompleted(latencyMs float64, deadlineMet bool) {
	c.tasksCompleted.Add(1)
	c.latencySumMs.Add(latencyMs)
	c.latency.Observe(latencyMs)
	if deadlineMet {
		c.deadlinesMet.Add(1)
	} else {
		c.deadlinesMissed.Add(1)
	}
}

// RecordTaskFailed counts a task that could not be executed.
func (c *Collector) RecordTaskFailed() { c.tasksFailed.Add(1) }

// RecordTaskDropped counts a task abandoned as infeasible.
func (c *Collector) RecordTaskDropped() { c.tasksDropped.Add(1) }

// RecordDeviceEnergy adds energy drawn from device batteries.
func (c *Collector) RecordDeviceEnergy(j float64) { c.deviceEnergy.Add(j) }

// RecordUAVEnergy adds energy drawn from UAV batteries.
func (c *Collector) RecordUAVEnergy(j float64) { c.uavEnergy.Add(j) }

// RecordBytesTransferred adds payload moved over device-UAV links.
func (c *Collector) RecordBytesTransferred(n int64) { c.bytesTransferred.Add(n) }

// RecordDecision counts one placement of the given kind.
func (c *Collector) RecordDecision(kind string) {
	switch kind {
	case DecisionLocal:
		c.decisionLocal.Add(1)
	case DecisionUAV:
		c.decisionUAV.Add(1)
	case DecisionCloud:
		c.decisionCloud.Add(1)
	}
}

// RecordFallback counts a decision where the policy's choice was overridden.
func (c *Collector) RecordFallback() { c.fallbacks.Add(1) }

// RecordRetrain counts a completed policy refit.
func (c *Collector) RecordRetrain() { c.retrains.Add(1) }

// RecordUAVUtilization samples the load of one UAV.
func (c *Collector) RecordUAVUtilization(uavID string, load float64) {
	c.utilSum.Add(load)
	c.utilSamples.Add(1)
	v, ok := c.perUAV.Load(uavID)
	if !ok {
		v, _ = c.perUAV.LoadOrStore(uavID, &utilization{})
	}
	u := v.(*utilization)
	u.sum.Add(load)
	u.samples.Add(1)
}

// Reset zeroes every counter.
func (c *Collector) Reset() {
	for _, v := range []*atomic.Int64{
		&c.tasksCreated, &c.tasksCompleted, &c.tasksFailed, &c.tasksDropped,
		&c.deadlinesMet, &c.deadlinesMissed, &c.bytesTransferred,
		&c.decisionLocal, &c.decisionUAV, &c.decisionCloud,
		&c.fallbacks, &c.retrains, &c.utilSamples,
	} {
		v.Store(0)
	}
	for _, f := range []*atomicFloat{&c.latencySumMs, &c.deviceEnergy, &c.uavEnergy, &c.utilSum} {
		f.Store(0)
	}
	c.latency.Reset()
	c.perUAV.Range(func(k, _ any) bool {
		c.perUAV.Delete(k)
		return true
	})
}

// Snapshot returns a consistent-enough copy of every counter with derived
// rates. Counters are read individually, so a snapshot taken while another
// goroutine records may straddle an event.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		TotalTasks:       c.tasksCreated.Load(),
		CompletedTasks:   c.tasksCompleted.Load(),
		FailedTasks:      c.tasksFailed.Load(),
		DroppedTasks:     c.tasksDropped.Load(),
		DeadlinesMet:     c.deadlinesMet.Load(),
		DeadlinesMissed:  c.deadlinesMissed.Load(),
		DeviceEnergyJ:    c.deviceEnergy.Load(),
		UAVEnergyJ:       c.uavEnergy.Load(),
		BytesTransferred: c.bytesTransferred.Load(),
		PolicyFallbacks:  c.fallbacks.Load(),
		PolicyRetrains:   c.retrains.Load(),
		Decisions: map[string]int64{
			DecisionLocal: c.decisionLocal.Load(),
			DecisionUAV:   c.decisionUAV.Load(),
			DecisionCloud: c.decisionCloud.Load(),
		},
		UAVUtilization: make(map[string]float64),
	}
	s.TotalEnergyJ = s.DeviceEnergyJ + s.UAVEnergyJ
	s.MinLatencyMs, s.MaxLatencyMs = c.latency.Load()
	if s.CompletedTasks > 0 {
		s.AverageLatencyMs = c.latencySumMs.Load() / float64(s.CompletedTasks)
		s.AverageEnergyJ = s.TotalEnergyJ / float64(s.CompletedTasks)
		s.DeadlineMeetRate = float64(s.DeadlinesMet) / float64(s.CompletedTasks)
	}
	if s.TotalTasks > 0 {
		total := float64(s.TotalTasks)
		s.SuccessRate = float64(s.CompletedTasks) / total
		s.FailureRate = float64(s.FailedTasks) / total
		s.DropRate = float64(s.DroppedTasks) / total
	}
	if n := c.utilSamples.Load(); n > 0 {
		s.AverageUAVUtilization = c.utilSum.Load() / float64(n)
	}
	c.perUAV.Range(func(k, v any) bool {
		u := v.(*utilization)
		if n := u.samples.Load(); n > 0 {
			s.UAVUtilization[k.(string)] = u.sum.Load() / float64(n)
		}
		return true
	})
	return s
}

// uavIDs returns the keys of m sorted.
func uavIDs(m map[string]float64) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
