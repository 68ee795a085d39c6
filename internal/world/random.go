package world

import (
	"math/rand"
	"time"
)

// Random is the random source consumed by generators and samplers.
type Random interface {
	Float64() float64
	Intn(n int) int
	Prob(p float64) bool
}

type seededRandom struct {
	rng *rand.Rand
}

// NewRandom returns a deterministic source for seed; zero seeds from the clock.
func NewRandom(seed int64) Random {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &seededRandom{rng: rand.New(rand.NewSource(seed))}
}

func (r *seededRandom) Float64() float64 {
	return r.rng.Float64()
}

func (r *seededRandom) Intn(n int) int {
	if n <= 1 {
		return 0
	}
	return r.rng.Intn(n)
}

func (r *seededRandom) Prob(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return r.rng.Float64() < p
}
