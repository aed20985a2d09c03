package core

import (
	"fmt"
	"math/rand"

	"github.com/signalsfoundry/uav-offload-sim/model"
)

// DeviceHeight is the altitude of generated IoT devices in metres.
const DeviceHeight = 2.0

// Category sets by device CPU tier. Weaker devices only produce light work.
var (
	lowTierCategories  = []model.Category{model.CategoryEnvironmental, model.CategoryAgriculture}
	midTierCategories  = []model.Category{model.CategoryTraffic, model.CategoryHealth, model.CategoryIndustrial}
	highTierCategories = []model.Category{model.CategoryVideoAnalytics, model.CategoryEmergency}
)

func categoriesFor(cpu float64) []model.Category {
	switch {
	case cpu < 1000:
		return lowTierCategories
	case cpu < 1500:
		return midTierCategories
	default:
		return highTierCategories
	}
}

// RandomDeviceConfig draws a ground device somewhere in area.
func RandomDeviceConfig(i int, rng *rand.Rand, area Area) model.DeviceConfig {
	radios := model.RadioTechnologies()
	cpu := float64(500 + rng.Intn(1500))
	return model.DeviceConfig{
		ID:             fmt.Sprintf("device-%d", i),
		Location:       model.NewLocation(rng.Float64()*area.Width, rng.Float64()*area.Length, DeviceHeight),
		CPUCapacity:    cpu,
		Memory:         float64(256 + rng.Intn(768)),
		BatteryJoules:  float64(18000 + rng.Intn(18000)),
		GenerationRate: 0.05 + rng.Float64()*0.2,
		Radio:          radios[rng.Intn(len(radios))],
		Categories:     categoriesFor(cpu),
	}
}

// RandomUAVConfig draws a UAV hovering 50 to 100 m above area.
func RandomUAVConfig(i int, rng *rand.Rand, area Area) model.UAVConfig {
	loc := model.NewLocation(rng.Float64()*area.Width, rng.Float64()*area.Length, 50+rng.Float64()*50)
	return model.UAVConfig{
		ID:                 fmt.Sprintf("uav-%d", i),
		Location:           &loc,
		MaxSpeed:           10 + rng.Float64()*10,
		MaxFlightTime:      1800 + rng.Float64()*1800,
		CPUCapacity:        float64(8000 + rng.Intn(8000)),
		TotalEnergy:        36000 + rng.Float64()*36000,
		CommunicationRange: 800 + rng.Float64()*400,
	}
}
