package model

import (
	"fmt"
	"math"
)

// Path-loss model parameters (log-distance, urban-like exponent).
const (
	// ReferenceDistance is d0 in metres. Shorter separations are clamped to it.
	ReferenceDistance = 1.0
	// ReferenceLossDB is the path loss at d0.
	ReferenceLossDB = 40.0
	// PathLossExponent is n in PL = PL0 + 10·n·log10(d/d0).
	PathLossExponent = 3.0
	// NoiseFloorDBm is the receiver noise floor used for link estimates.
	NoiseFloorDBm = -100.0
)

// Location is an immutable point in metres. It is comparable and can be used
// as a map key.
type Location struct {
	X, Y, Z float64
}

// NewLocation returns a Location at the given coordinates.
func NewLocation(x, y, z float64) Location {
	return Location{X: x, Y: y, Z: z}
}

// DistanceTo returns the straight-line distance between two points.
func (l Location) DistanceTo(other Location) float64 {
	dx := l.X - other.X
	dy := l.Y - other.Y
	dz := l.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// PathLossDB returns the log-distance path loss towards other in dB.
func (l Location) PathLossDB(other Location) float64 {
	d := math.Max(l.DistanceTo(other), ReferenceDistance)
	return ReferenceLossDB + 10*PathLossExponent*math.Log10(d/ReferenceDistance)
}

// SNRDB returns tx − PL − noise for a link from l to other.
func (l Location) SNRDB(other Location, txPowerDBm, noiseDBm float64) float64 {
	return txPowerDBm - l.PathLossDB(other) - noiseDBm
}

// MoveTowards returns the point reached after travelling step metres from l
// towards target. It never overshoots.
func (l Location) MoveTowards(target Location, step float64) Location {
	d := l.DistanceTo(target)
	if d == 0 || step >= d {
		return target
	}
	f := step / d
	return Location{
		X: l.X + (target.X-l.X)*f,
		Y: l.Y + (target.Y-l.Y)*f,
		Z: l.Z + (target.Z-l.Z)*f,
	}
}

func (l Location) String() string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", l.X, l.Y, l.Z)
}

// MilliwattsToDBm converts a power level in mW to dBm.
func MilliwattsToDBm(mw float64) float64 {
	if mw <= 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(mw)
}

// ShannonEfficiency returns log2(1+SNR) in bit/s/Hz for an SNR given in dB.
func ShannonEfficiency(snrDB float64) float64 {
	return math.Log2(1 + math.Pow(10, snrDB/10))
}
