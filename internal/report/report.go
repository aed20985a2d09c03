// Package report encodes simulation snapshots as protobuf Struct documents
// and renders them as JSON or text.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/uav-offload-sim/metrics"
	"github.com/signalsfoundry/uav-offload-sim/model"
)

// Output formats accepted by Write.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ErrUnknownFormat is returned by Write for unsupported formats.
var ErrUnknownFormat = errors.New("unknown report format")

// Source is the read-only view a report is built from. *core.Environment
// satisfies it.
type Source interface {
	Now() float64
	Steps() int64
	Metrics() metrics.Snapshot
	Devices() []model.DeviceSnapshot
	UAVs() []model.UAVSnapshot
}

// Metrics converts a snapshot into a Struct with the same keys as
// Snapshot.Map.
func Metrics(s metrics.Snapshot) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(s.Map())
	if err != nil {
		return nil, fmt.Errorf("encode metrics: %w", err)
	}
	return st, nil
}

// Build assembles the full document: clock, metrics and entity listings.
func Build(src Source) (*structpb.Struct, error) {
	uavs := src.UAVs()
	uavList := make([]any, 0, len(uavs))
	for _, u := range uavs {
		uavList = append(uavList, uavFields(u))
	}
	devices := src.Devices()
	deviceList := make([]any, 0, len(devices))
	for _, d := range devices {
		deviceList = append(deviceList, deviceFields(d))
	}
	st, err := structpb.NewStruct(map[string]any{
		"time":    src.Now(),
		"steps":   src.Steps(),
		"metrics": src.Metrics().Map(),
		"uavs":    uavList,
		"devices": deviceList,
	})
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return st, nil
}

func locationFields(l model.Location) map[string]any {
	return map[string]any{"x": l.X, "y": l.Y, "z": l.Z}
}

func uavFields(u model.UAVSnapshot) map[string]any {
	tasks := make([]any, 0, len(u.AssignedTasks))
	for _, id := range u.AssignedTasks {
		tasks = append(tasks, id)
	}
	m := map[string]any{
		"id":                 u.ID,
		"status":             u.Status,
		"location":           locationFields(u.Location),
		"energy":             u.Energy,
		"energyPercentage":   u.EnergyPercentage,
		"cpuCapacity":        u.CPUCapacity,
		"load":               u.Load,
		"communicationRange": u.CommunicationRange,
		"assignedTasks":      tasks,
		"completedTasks":     u.CompletedTasks,
	}
	if u.Target != nil {
		m["target"] = locationFields(*u.Target)
	}
	return m
}

func deviceFields(d model.DeviceSnapshot) map[string]any {
	cats := make([]any, 0, len(d.Categories))
	for _, c := range d.Categories {
		cats = append(cats, string(c))
	}
	return map[string]any{
		"id":                d.ID,
		"location":          locationFields(d.Location),
		"cpuCapacity":       d.CPUCapacity,
		"batteryPercentage": d.BatteryPercentage,
		"generationRate":    d.GenerationRate,
		"radio":             string(d.Radio),
		"categories":        cats,
		"tasksGenerated":    d.TasksGenerated,
		"processedLocally":  d.ProcessedLocally,
		"tasksOffloaded":    d.TasksOffloaded,
	}
}

// JSON marshals st with protojson. Indented output is multi-line.
func JSON(st *structpb.Struct, indent bool) ([]byte, error) {
	opts := protojson.MarshalOptions{}
	if indent {
		opts.Multiline = true
		opts.Indent = "  "
	}
	return opts.Marshal(st)
}

// Decode parses a JSON document produced by JSON back into a plain map.
// Numbers come back as float64.
func Decode(data []byte) (map[string]any, error) {
	var st structpb.Struct
	if err := protojson.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return st.AsMap(), nil
}

// Write renders src to w in the given format. Text output is the metrics
// report followed by one line per UAV.
func Write(w io.Writer, src Source, format string) error {
	switch strings.ToLower(format) {
	case FormatText, "":
		var b strings.Builder
		fmt.Fprintf(&b, "Simulated time: %.1f s (%d steps)\n", src.Now(), src.Steps())
		b.WriteString(src.Metrics().Report())
		for _, u := range src.UAVs() {
			fmt.Fprintf(&b, "UAV %s: status=%s energy=%.1f%% load=%.2f completed=%d\n",
				u.ID, u.Status, u.EnergyPercentage, u.Load, u.CompletedTasks)
		}
		_, err := io.WriteString(w, b.String())
		return err
	case FormatJSON:
		st, err := Build(src)
		if err != nil {
			return err
		}
		data, err := JSON(st, true)
		if err != nil {
			return err
		}
		data = append(data, '\n')
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
