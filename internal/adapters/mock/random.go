package mock

import (
	"math/rand"
	"time"
)

// walk is a bounded random walk: a persistent drift nudged by uniform
// noise each step, clamped to ±envelope, added to base, then clamped to
// [min, max]
type walk struct {
	base     float64
	drift    float64
	step     float64 // max drift change per read
	envelope float64 // max |drift|
	noise    float64 // per-read jitter on top of the drift
	min, max float64
}

func (w *walk) next(rng *rand.Rand) float64 {
	w.drift = clamp(w.drift+uniform(rng, w.step), -w.envelope, w.envelope)
	return clamp(w.base+w.drift+uniform(rng, w.noise), w.min, w.max)
}

// uniform returns a value in [-spread, spread)
func uniform(rng *rand.Rand, spread float64) float64 {
	return (rng.Float64() - 0.5) * 2 * spread
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
