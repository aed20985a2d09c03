package metrics

import (
	"math"
	"sync/atomic"
)

// atomicFloat is a float64 updated with compare-and-swap.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

func (f *atomicFloat) Store(v float64) {
	f.bits.Store(math.Float64bits(v))
}

func (f *atomicFloat) Add(delta float64) {
	for {
		old := f.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if f.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// storeIf replaces the value with v while better(v, current) holds.
func (f *atomicFloat) storeIf(v float64, better func(v, cur float64) bool) {
	for {
		old := f.bits.Load()
		if !better(v, math.Float64frombits(old)) {
			return
		}
		if f.bits.CompareAndSwap(old, math.Float64bits(v)) {
			return
		}
	}
}

// extrema tracks the minimum and maximum of a stream of samples. Call Reset
// before first use.
type extrema struct {
	min atomicFloat
	max atomicFloat
}

func (e *extrema) Observe(v float64) {
	e.min.storeIf(v, func(v, cur float64) bool { return v < cur })
	e.max.storeIf(v, func(v, cur float64) bool { return v > cur })
}

// Load returns zeros when nothing was observed.
func (e *extrema) Load() (lo, hi float64) {
	lo, hi = e.min.Load(), e.max.Load()
	if math.IsInf(lo, 1) {
		return 0, 0
	}
	return lo, hi
}

func (e *extrema) Reset() {
	e.min.Store(math.Inf(1))
	e.max.Store(math.Inf(-1))
}
