package offload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/uav-offload-sim/model"
)

func TestFeatureLen(t *testing.T) {
	assert.Equal(t, 8, FeatureLen(0))
	assert.Equal(t, 23, FeatureLen(5))
}

func TestFeaturesNormalisation(t *testing.T) {
	loc := model.NewLocation(250, 750, 2)
	d := testDevice(t, loc)
	task, err := model.NewTask(model.TaskConfig{
		ID:         "t",
		Length:     5000,
		InputSize:  2 * 1024 * 1024,
		OutputSize: 512 * 1024,
		Deadline:   20,
		Priority:   7,
	})
	require.NoError(t, err)
	u := testUAV(t, "u", model.NewLocation(100, 900, 60), model.UAVConfig{TotalEnergy: 1000})
	u.ConsumeEnergy(250)

	f := Features(task, d, []*model.UAV{u})
	require.Len(t, f, FeatureLen(1))
	want := []float64{0.5, 2, 0.5, 2, 0.7, 0.25, 0.75, 1, 0.1, 0.9, 0.75}
	for i := range want {
		assert.InDelta(t, want[i], f[i], 1e-12, "feature %d", i)
	}
}

func TestFitSlotsPadsWithSentinels(t *testing.T) {
	at := model.NewLocation(1, 2, 2)
	u := testUAV(t, "u", model.NewLocation(0, 0, 50), model.UAVConfig{})

	slots, padded, truncated := fitSlots([]*model.UAV{u}, 3, at)
	require.Len(t, slots, 3)
	assert.Equal(t, 2, padded)
	assert.Zero(t, truncated)
	assert.Same(t, u, slots[0])
	for _, s := range slots[1:] {
		assert.True(t, s.IsSentinel())
		assert.Equal(t, at, s.Location())
		assert.Equal(t, 1.0, s.CPUCapacity)
	}
}

func TestFitSlotsTruncatesInOrder(t *testing.T) {
	var uavs []*model.UAV
	for _, id := range []string{"a", "b", "c"} {
		uavs = append(uavs, testUAV(t, id, model.NewLocation(0, 0, 50), model.UAVConfig{}))
	}
	slots, padded, truncated := fitSlots(uavs, 2, model.Location{})
	assert.Equal(t, []string{"a", "b"}, []string{slots[0].ID, slots[1].ID})
	assert.Zero(t, padded)
	assert.Equal(t, 1, truncated)
}
