package model

import (
	"math"
	"testing"
)

func TestDistanceTo(t *testing.T) {
	a := NewLocation(0, 0, 0)
	b := NewLocation(3, 4, 12)
	if got := a.DistanceTo(b); got != 13 {
		t.Fatalf("DistanceTo() = %v, want 13", got)
	}
	if got := b.DistanceTo(a); got != 13 {
		t.Fatalf("DistanceTo() should be symmetric, got %v", got)
	}
}

func TestPathLossDB(t *testing.T) {
	origin := NewLocation(0, 0, 0)
	cases := []struct {
		name string
		to   Location
		want float64
	}{
		{"same point clamps to d0", origin, 40},
		{"sub-metre clamps to d0", NewLocation(0.5, 0, 0), 40},
		{"ten metres", NewLocation(10, 0, 0), 70},
		{"one kilometre", NewLocation(1000, 0, 0), 130},
	}
	for _, tc := range cases {
		if got := origin.PathLossDB(tc.to); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s: PathLossDB() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSNRDB(t *testing.T) {
	a := NewLocation(0, 0, 0)
	b := NewLocation(100, 0, 0)
	// 20 dBm − 100 dB − (−100 dBm) = 20 dB
	if got := a.SNRDB(b, 20, NoiseFloorDBm); math.Abs(got-20) > 1e-9 {
		t.Fatalf("SNRDB() = %v, want 20", got)
	}
}

func TestMoveTowardsNeverOvershoots(t *testing.T) {
	from := NewLocation(0, 0, 0)
	to := NewLocation(10, 0, 0)

	mid := from.MoveTowards(to, 4)
	if mid != NewLocation(4, 0, 0) {
		t.Fatalf("MoveTowards(4) = %v, want (4,0,0)", mid)
	}
	if got := from.MoveTowards(to, 50); got != to {
		t.Fatalf("MoveTowards(50) = %v, want target %v", got, to)
	}
}

func TestMilliwattsToDBm(t *testing.T) {
	if got := MilliwattsToDBm(100); math.Abs(got-20) > 1e-9 {
		t.Fatalf("MilliwattsToDBm(100) = %v, want 20", got)
	}
	if got := MilliwattsToDBm(0); !math.IsInf(got, -1) {
		t.Fatalf("MilliwattsToDBm(0) = %v, want -Inf", got)
	}
}
