package swarm

import (
	"fmt"
	"math/rand"

	"github.com/BaSui01/swarmflow/types"
)

// Bounds is the rectangular domain an objective is searched over: one
// [Low, High] interval per dimension.
type Bounds struct {
	Low  []float64 `json:"low" yaml:"low"`
	High []float64 `json:"high" yaml:"high"`
}

// NewBounds builds bounds from explicit per-dimension interval edges.
func NewBounds(low, high []float64) (Bounds, error) {
	b := Bounds{Low: low, High: high}
	if err := b.Validate(); err != nil {
		return Bounds{}, err
	}
	return b, nil
}

// NewUniformBounds builds bounds with the same [low, high] interval in every
// dimension.
func NewUniformBounds(dims int, low, high float64) (Bounds, error) {
	if dims <= 0 {
		return Bounds{}, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("bounds need at least one dimension, got %d", dims))
	}
	l := make([]float64, dims)
	h := make([]float64, dims)
	for i := 0; i < dims; i++ {
		l[i] = low
		h[i] = high
	}
	return NewBounds(l, h)
}

// Dims returns the dimensionality of the domain.
func (b Bounds) Dims() int {
	return len(b.Low)
}

// Validate checks that the interval edges are consistent.
func (b Bounds) Validate() error {
	if len(b.Low) == 0 {
		return types.NewError(types.ErrInvalidConfig, "bounds need at least one dimension")
	}
	if len(b.Low) != len(b.High) {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("bounds dimension mismatch: %d low edges, %d high edges", len(b.Low), len(b.High)))
	}
	for i := range b.Low {
		if b.Low[i] >= b.High[i] {
			return types.NewError(types.ErrInvalidConfig,
				fmt.Sprintf("bounds interval %d is empty: [%v, %v]", i, b.Low[i], b.High[i]))
		}
	}
	return nil
}

// Sample draws a uniform random point inside the domain.
func (b Bounds) Sample(rng *rand.Rand) []float64 {
	point := make([]float64, len(b.Low))
	for i := range point {
		point[i] = b.Low[i] + rng.Float64()*(b.High[i]-b.Low[i])
	}
	return point
}

// Clamp projects the point onto the domain in place.
func (b Bounds) Clamp(point []float64) {
	for i := range point {
		if i >= len(b.Low) {
			return
		}
		if point[i] < b.Low[i] {
			point[i] = b.Low[i]
		} else if point[i] > b.High[i] {
			point[i] = b.High[i]
		}
	}
}

// Contains reports whether the point lies inside the domain.
func (b Bounds) Contains(point []float64) bool {
	if len(point) != len(b.Low) {
		return false
	}
	for i := range point {
		if point[i] < b.Low[i] || point[i] > b.High[i] {
			return false
		}
	}
	return true
}
