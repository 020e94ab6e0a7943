package engine

import (
	"math/rand"
	"time"

	"github.com/lifecyclelab/intervene/internal/store"
)

// RandSource supplies uniform draws in [0, 1). *rand.Rand satisfies it;
// tests inject a fixed sequence.
type RandSource interface {
	Float64() float64
}

// Selector picks variants by traffic allocation using weighted random
// selection.
type Selector struct {
	rng RandSource
}

// NewSelector returns a selector backed by rng, or a time-seeded source
// when rng is nil.
func NewSelector(rng RandSource) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Selector{rng: rng}
}

// Pick walks the variants in declared order, accumulating traffic
// allocations against a draw in [0, 100). Variants with no allocation never
// match. If the allocations sum to less than 100 and the draw lands in the
// gap, the first variant wins: under-allocated traffic defaults to control
// rather than failing the request.
func (s *Selector) Pick(variants []store.Variant) store.Variant {
	r := s.rng.Float64() * 100

	cumulative := 0.0
	for _, v := range variants {
		cumulative += v.TrafficAllocation
		if v.TrafficAllocation > 0 && r <= cumulative {
			return v
		}
	}

	return variants[0]
}
