// Package region defines the axis-aligned hyperrectangles sampled by the estimator.
package region

import (
	"errors"
	"fmt"
	"math"

	"mc-integrator/rng"
)

// ErrInvalidRegion is returned for malformed bounds.
var ErrInvalidRegion = errors.New("invalid region")

// Region is an axis-aligned box [low_0, high_0) x ... x [low_d-1, high_d-1).
// A Region is immutable once built.
type Region struct {
	low  []float64
	high []float64
}

// New builds a region from per-dimension bounds. It requires at least one
// dimension, equal length bounds, finite values and low < high everywhere.
func New(lows, highs []float64) (Region, error) {
	if len(lows) == 0 {
		return Region{}, fmt.Errorf("%w: no dimensions", ErrInvalidRegion)
	}
	if len(lows) != len(highs) {
		return Region{}, fmt.Errorf("%w: %d lower bounds but %d upper bounds", ErrInvalidRegion, len(lows), len(highs))
	}
	for i := range lows {
		lo, hi := lows[i], highs[i]
		if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
			return Region{}, fmt.Errorf("%w: dimension %d has non-finite bounds [%v, %v)", ErrInvalidRegion, i, lo, hi)
		}
		if lo >= hi {
			return Region{}, fmt.Errorf("%w: dimension %d has low %v >= high %v", ErrInvalidRegion, i, lo, hi)
		}
	}
	return Region{
		low:  append([]float64(nil), lows...),
		high: append([]float64(nil), highs...),
	}, nil
}

// MustNew is New that panics on error. Used for package-level fixtures.
func MustNew(lows, highs []float64) Region {
	r, err := New(lows, highs)
	if err != nil {
		panic(err)
	}
	return r
}

// Cube returns [low, high)^d.
func Cube(d int, low, high float64) (Region, error) {
	if d < 1 {
		return Region{}, fmt.Errorf("%w: dimension %d", ErrInvalidRegion, d)
	}
	lows := make([]float64, d)
	highs := make([]float64, d)
	for i := range lows {
		lows[i] = low
		highs[i] = high
	}
	return New(lows, highs)
}

// Unit returns the unit hypercube [0, 1)^d.
func Unit(d int) (Region, error) {
	return Cube(d, 0, 1)
}

// Dim is the number of dimensions.
func (r Region) Dim() int { return len(r.low) }

// Bounds returns the (low, high) pair of dimension i.
func (r Region) Bounds(i int) (float64, float64) {
	return r.low[i], r.high[i]
}

// Volume is the product of the side lengths.
func (r Region) Volume() float64 {
	if len(r.low) == 0 {
		return 0
	}
	v := 1.0
	for i := range r.low {
		v *= r.high[i] - r.low[i]
	}
	return v
}

// Contains reports whether x lies inside the region.
func (r Region) Contains(x []float64) bool {
	if len(x) != len(r.low) {
		return false
	}
	for i, xi := range x {
		if xi < r.low[i] || xi >= r.high[i] {
			return false
		}
	}
	return true
}

// Sample fills dst with a point drawn uniformly from the region.
// dst must have length Dim().
func (r Region) Sample(src rng.Source, dst []float64) {
	for i := range dst {
		dst[i] = r.low[i] + (r.high[i]-r.low[i])*src.Float64()
	}
}

func (r Region) String() string {
	return fmt.Sprintf("region(low=%v, high=%v)", r.low, r.high)
}
