package model

import (
	"fmt"
	"math/rand"
	"sort"
)

// Category names a class of IoT workload.
type Category string

const (
	CategoryVideoAnalytics Category = "real_time_video_analytics"
	CategoryEnvironmental  Category = "environmental_monitoring"
	CategoryEmergency      Category = "emergency_response"
	CategoryIndustrial     Category = "industrial_control"
	CategoryAgriculture    Category = "smart_agriculture"
	CategoryTraffic        Category = "traffic_monitoring"
	CategoryHealth         Category = "health_monitoring"
)

const kb = 1024

// CategoryProfile holds the nominal workload of a category.
type CategoryProfile struct {
	AvgLength       float64 // million instructions
	AvgInputSize    int64   // bytes
	AvgOutputSize   int64   // bytes
	AvgDeadline     float64 // seconds
	DefaultPriority int
}

var categoryProfiles = map[Category]CategoryProfile{
	CategoryVideoAnalytics: {AvgLength: 5000, AvgInputSize: 2048 * kb, AvgOutputSize: 256 * kb, AvgDeadline: 600, DefaultPriority: 10},
	CategoryEnvironmental:  {AvgLength: 1000, AvgInputSize: 100 * kb, AvgOutputSize: 20 * kb, AvgDeadline: 800, DefaultPriority: 4},
	CategoryEmergency:      {AvgLength: 3000, AvgInputSize: 500 * kb, AvgOutputSize: 200 * kb, AvgDeadline: 400, DefaultPriority: 10},
	CategoryIndustrial:     {AvgLength: 2000, AvgInputSize: 50 * kb, AvgOutputSize: 30 * kb, AvgDeadline: 500, DefaultPriority: 8},
	CategoryAgriculture:    {AvgLength: 800, AvgInputSize: 150 * kb, AvgOutputSize: 30 * kb, AvgDeadline: 1000, DefaultPriority: 3},
	CategoryTraffic:        {AvgLength: 1500, AvgInputSize: 1024 * kb, AvgOutputSize: 100 * kb, AvgDeadline: 700, DefaultPriority: 6},
	CategoryHealth:         {AvgLength: 2500, AvgInputSize: 200 * kb, AvgOutputSize: 50 * kb, AvgDeadline: 550, DefaultPriority: 9},
}

// Profile returns the nominal workload for c.
func (c Category) Profile() (CategoryProfile, bool) {
	p, ok := categoryProfiles[c]
	return p, ok
}

// Categories returns every known category in a stable order.
func Categories() []Category {
	out := make([]Category, 0, len(categoryProfiles))
	for c := range categoryProfiles {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseCategory resolves a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if _, ok := categoryProfiles[c]; !ok {
		return "", fmt.Errorf("unknown task category %q", s)
	}
	return c, nil
}

// Sample draws a concrete task shape from the profile. Length and sizes vary
// by up to ±20 % and the deadline by up to ±10 %.
func (p CategoryProfile) Sample(rng *rand.Rand) (length float64, in, out int64, deadline float64) {
	jitter := func(spread float64) float64 { return 1 + spread*(2*rng.Float64()-1) }
	length = p.AvgLength * jitter(0.2)
	in = int64(float64(p.AvgInputSize) * jitter(0.2))
	out = int64(float64(p.AvgOutputSize) * jitter(0.2))
	deadline = p.AvgDeadline * jitter(0.1)
	return length, in, out, deadline
}

// NewTaskFromCategory builds a task with the category's nominal parameters.
func NewTaskFromCategory(id string, c Category, source Location, submittedAt float64) (*Task, error) {
	p, ok := c.Profile()
	if !ok {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidTask, c)
	}
	return NewTask(TaskConfig{
		ID:             id,
		Category:       c,
		Length:         p.AvgLength,
		InputSize:      p.AvgInputSize,
		OutputSize:     p.AvgOutputSize,
		Deadline:       p.AvgDeadline,
		Priority:       p.DefaultPriority,
		SourceLocation: source,
		SubmissionTime: submittedAt,
	})
}
