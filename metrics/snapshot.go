package metrics

import (
	"fmt"
	"strings"
)

// Snapshot is an immutable view of the collector at one instant.
type Snapshot struct {
	TotalTasks     int64 `json:"totalTasks"`
	CompletedTasks int64 `json:"completedTasks"`
	FailedTasks    int64 `json:"failedTasks"`
	DroppedTasks   int64 `json:"droppedTasks"`

	SuccessRate float64 `json:"successRate"`
	FailureRate float64 `json:"failureRate"`
	DropRate    float64 `json:"dropRate"`

	AverageLatencyMs float64 `json:"averageLatencyMs"`
	MinLatencyMs     float64 `json:"minLatencyMs"`
	MaxLatencyMs     float64 `json:"maxLatencyMs"`
	DeadlinesMet     int64   `json:"deadlinesMet"`
	DeadlinesMissed  int64   `json:"deadlinesMissed"`
	DeadlineMeetRate float64 `json:"deadlineMeetRate"`

	TotalEnergyJ     float64 `json:"totalEnergyJ"`
	DeviceEnergyJ    float64 `json:"deviceEnergyJ"`
	UAVEnergyJ       float64 `json:"uavEnergyJ"`
	AverageEnergyJ   float64 `json:"averageEnergyJ"`
	BytesTransferred int64   `json:"bytesTransferred"`

	Decisions       map[string]int64 `json:"offloadingDecisions"`
	PolicyFallbacks int64            `json:"policyFallbacks"`
	PolicyRetrains  int64            `json:"policyRetrains"`

	AverageUAVUtilization float64            `json:"averageUavUtilization"`
	UAVUtilization        map[string]float64 `json:"uavUtilization"`
}

// Map flattens the snapshot into a string-keyed map. Decision counts are
// nested under "offloadingDecisions" and per-UAV load under "uavUtilization".
func (s Snapshot) Map() map[string]any {
	decisions := make(map[string]any, len(s.Decisions))
	for k, v := range s.Decisions {
		decisions[k] = v
	}
	util := make(map[string]any, len(s.UAVUtilization))
	for k, v := range s.UAVUtilization {
		util[k] = v
	}
	return map[string]any{
		"totalTasks":            s.TotalTasks,
		"completedTasks":        s.CompletedTasks,
		"failedTasks":           s.FailedTasks,
		"droppedTasks":          s.DroppedTasks,
		"successRate":           s.SuccessRate,
		"failureRate":           s.FailureRate,
		"dropRate":              s.DropRate,
		"averageLatencyMs":      s.AverageLatencyMs,
		"minLatencyMs":          s.MinLatencyMs,
		"maxLatencyMs":          s.MaxLatencyMs,
		"deadlinesMet":          s.DeadlinesMet,
		"deadlinesMissed":       s.DeadlinesMissed,
		"deadlineMeetRate":      s.DeadlineMeetRate,
		"totalEnergyJ":          s.TotalEnergyJ,
		"deviceEnergyJ":         s.DeviceEnergyJ,
		"uavEnergyJ":            s.UAVEnergyJ,
		"averageEnergyJ":        s.AverageEnergyJ,
		"bytesTransferred":      s.BytesTransferred,
		"policyFallbacks":       s.PolicyFallbacks,
		"policyRetrains":        s.PolicyRetrains,
		"averageUavUtilization": s.AverageUAVUtilization,
		"offloadingDecisions":   decisions,
		"uavUtilization":        util,
	}
}

// Report renders the snapshot as a human-readable block of text.
func (s Snapshot) Report() string {
	var b strings.Builder
	fmt.Fprintln(&b, "=== Simulation Metrics ===")
	fmt.Fprintf(&b, "Tasks: total=%d completed=%d failed=%d dropped=%d\n",
		s.TotalTasks, s.CompletedTasks, s.FailedTasks, s.DroppedTasks)
	fmt.Fprintf(&b, "Rates: success=%.2f%% failure=%.2f%% drop=%.2f%%\n",
		100*s.SuccessRate, 100*s.FailureRate, 100*s.DropRate)
	fmt.Fprintf(&b, "Latency (ms): avg=%.2f min=%.2f max=%.2f\n",
		s.AverageLatencyMs, s.MinLatencyMs, s.MaxLatencyMs)
	fmt.Fprintf(&b, "Deadlines: met=%d missed=%d rate=%.2f%%\n",
		s.DeadlinesMet, s.DeadlinesMissed, 100*s.DeadlineMeetRate)
	fmt.Fprintf(&b, "Energy (J): total=%.2f device=%.2f uav=%.2f avg/task=%.3f\n",
		s.TotalEnergyJ, s.DeviceEnergyJ, s.UAVEnergyJ, s.AverageEnergyJ)
	fmt.Fprintf(&b, "Data transferred: %d bytes\n", s.BytesTransferred)
	fmt.Fprintf(&b, "Decisions: local=%d uav=%d cloud=%d (fallbacks=%d, retrains=%d)\n",
		s.Decisions[DecisionLocal], s.Decisions[DecisionUAV], s.Decisions[DecisionCloud],
		s.PolicyFallbacks, s.PolicyRetrains)
	fmt.Fprintf(&b, "UAV utilization: avg=%.2f%%\n", 100*s.AverageUAVUtilization)
	for _, id := range uavIDs(s.UAVUtilization) {
		fmt.Fprintf(&b, "  %s: %.2f%%\n", id, 100*s.UAVUtilization[id])
	}
	return b.String()
}
