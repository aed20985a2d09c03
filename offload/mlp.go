package offload

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// MLPScorer is a one-hidden-layer ReLU network with a softmax head.
type MLPScorer struct {
	w1 *mat.Dense    // hidden × in
	b1 *mat.VecDense // hidden
	w2 *mat.Dense    // out × hidden
	b2 *mat.VecDense // out
}

// NewMLPScorer returns a network with Xavier-uniform weights drawn from seed.
func NewMLPScorer(in, hidden, out int, seed int64) *MLPScorer {
	rng := rand.New(rand.NewSource(seed))
	return &MLPScorer{
		w1: xavier(rng, hidden, in),
		b1: mat.NewVecDense(hidden, nil),
		w2: xavier(rng, out, hidden),
		b2: mat.NewVecDense(out, nil),
	}
}

func xavier(rng *rand.Rand, rows, cols int) *mat.Dense {
	limit := math.Sqrt(6 / float64(rows+cols))
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * limit
	}
	return mat.NewDense(rows, cols, data)
}

// Inputs returns the expected feature vector length.
func (m *MLPScorer) Inputs() int {
	_, c := m.w1.Dims()
	return c
}

// Outputs returns the number of actions.
func (m *MLPScorer) Outputs() int {
	r, _ := m.w2.Dims()
	return r
}

type activations struct {
	x, pre, h, p *mat.VecDense
}

func (m *MLPScorer) forward(features []float64) activations {
	x := mat.NewVecDense(len(features), append([]float64(nil), features...))
	hidden, _ := m.w1.Dims()
	pre := mat.NewVecDense(hidden, nil)
	pre.MulVec(m.w1, x)
	pre.AddVec(pre, m.b1)
	h := mat.NewVecDense(hidden, nil)
	for i := 0; i < hidden; i++ {
		h.SetVec(i, math.Max(0, pre.AtVec(i)))
	}
	out := m.Outputs()
	z := mat.NewVecDense(out, nil)
	z.MulVec(m.w2, h)
	z.AddVec(z, m.b2)
	p := mat.NewVecDense(out, softmax(z.RawVector().Data))
	return activations{x: x, pre: pre, h: h, p: p}
}

func (m *MLPScorer) Score(features []float64) []float64 {
	a := m.forward(features)
	return append([]float64(nil), a.p.RawVector().Data...)
}

// Clone returns a deep copy safe to train while m keeps serving.
func (m *MLPScorer) Clone() Trainable {
	return &MLPScorer{
		w1: mat.DenseCopyOf(m.w1),
		b1: mat.VecDenseCopyOf(m.b1),
		w2: mat.DenseCopyOf(m.w2),
		b2: mat.VecDenseCopyOf(m.b2),
	}
}

// Fit applies one averaged SGD step of reward-weighted cross-entropy towards
// the taken action. Experiences with a wrong feature length are skipped.
func (m *MLPScorer) Fit(batch []Experience, learningRate float64) float64 {
	hidden, in := m.w1.Dims()
	out := m.Outputs()
	gw1 := mat.NewDense(hidden, in, nil)
	gb1 := mat.NewVecDense(hidden, nil)
	gw2 := mat.NewDense(out, hidden, nil)
	gb2 := mat.NewVecDense(out, nil)

	var loss float64
	n := 0
	for _, e := range batch {
		if len(e.Features) != in || e.Action < 0 || e.Action >= out {
			continue
		}
		a := m.forward(e.Features)

		// dL/dz = r·(p − onehot(action))
		dz := mat.VecDenseCopyOf(a.p)
		dz.SetVec(e.Action, dz.AtVec(e.Action)-1)
		dz.ScaleVec(e.Reward, dz)
		loss -= e.Reward * math.Log(math.Max(a.p.AtVec(e.Action), 1e-12))

		var outer mat.Dense
		outer.Outer(1, dz, a.h)
		gw2.Add(gw2, &outer)
		gb2.AddVec(gb2, dz)

		dh := mat.NewVecDense(hidden, nil)
		dh.MulVec(m.w2.T(), dz)
		for i := 0; i < hidden; i++ {
			if a.pre.AtVec(i) <= 0 {
				dh.SetVec(i, 0)
			}
		}
		outer.Reset()
		outer.Outer(1, dh, a.x)
		gw1.Add(gw1, &outer)
		gb1.AddVec(gb1, dh)
		n++
	}
	if n == 0 {
		return 0
	}
	step := -learningRate / float64(n)
	m.w1.Add(m.w1, scaled(step, gw1))
	m.w2.Add(m.w2, scaled(step, gw2))
	m.b1.AddScaledVec(m.b1, step, gb1)
	m.b2.AddScaledVec(m.b2, step, gb2)
	return loss / float64(n)
}

func scaled(f float64, a *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Scale(f, a)
	return &out
}
