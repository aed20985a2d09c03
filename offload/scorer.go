package offload

import "math"

// Scorer maps a feature vector to a probability distribution over actions:
// one per UAV slot followed by LOCAL.
type Scorer interface {
	Score(features []float64) []float64
}

// Trainable is a Scorer that can be refit from experience. Fit must only be
// called on a private clone.
type Trainable interface {
	Scorer
	Clone() Trainable
	// Fit runs one gradient step on batch and returns the mean loss.
	Fit(batch []Experience, learningRate float64) float64
}

// HeuristicScorer prefers close, well-charged UAVs and falls back to the
// device when its battery is healthy and no UAV stands out.
type HeuristicScorer struct {
	// LocalBias scales the device battery fraction into the LOCAL score.
	LocalBias float64
	// Temperature sharpens (small) or flattens (large) the softmax.
	Temperature float64
}

// NewHeuristicScorer returns a scorer with default weights.
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{LocalBias: 0.35, Temperature: 0.1}
}

func (h *HeuristicScorer) Score(f []float64) []float64 {
	slots := (len(f) - featSlots) / slotFeatures
	scores := make([]float64, slots+1)
	dx, dy := f[featDeviceX], f[featDeviceY]
	for i := 0; i < slots; i++ {
		base := featSlots + slotFeatures*i
		distKm := math.Hypot(f[base]-dx, f[base+1]-dy)
		scores[i] = f[base+2] / (1 + 4*distKm)
	}
	scores[slots] = h.LocalBias * f[featBattery]
	temp := h.Temperature
	if temp <= 0 {
		temp = 1
	}
	for i := range scores {
		scores[i] /= temp
	}
	return softmax(scores)
}

func softmax(z []float64) []float64 {
	out := make([]float64, len(z))
	if len(z) == 0 {
		return out
	}
	hi := z[0]
	for _, v := range z[1:] {
		if v > hi {
			hi = v
		}
	}
	var sum float64
	for i, v := range z {
		out[i] = math.Exp(v - hi)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// argmax returns the first index of the largest value.
func argmax(p []float64) int {
	best := 0
	for i, v := range p {
		if v > p[best] {
			best = i
		}
	}
	return best
}
