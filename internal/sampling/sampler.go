package sampling

import (
	"math"

	"tradepost/internal/prototype"
	"tradepost/internal/world"
)

const (
	// BagThreshold is the largest outcome count drawn from a shuffled bag.
	BagThreshold = 8

	goldenConjugate = 0.6180339887498949
	jitterSpan      = 0.02
)

type bag struct {
	n     int
	order []int
	pos   int
	last  int
}

// Sampler keeps per-key state for both strategies. Small ranges are drawn from a
// reshuffled bag, larger ones from a jittered golden-ratio sequence.
type Sampler struct {
	rng    world.Random
	bags   map[string]*bag
	phases map[string]float64
}

// NewSampler creates a sampler over rng.
func NewSampler(rng world.Random) *Sampler {
	return &Sampler{
		rng:    rng,
		bags:   make(map[string]*bag),
		phases: make(map[string]float64),
	}
}

// Next returns an outcome in [0, n) for key.
func (s *Sampler) Next(key string, n int) int {
	if n <= 1 {
		return 0
	}
	if n <= BagThreshold {
		return s.drawBag(key, n)
	}
	return int(s.drawDrift(key, int64(n)))
}

// Range rolls an inclusive range for key.
func (s *Sampler) Range(key string, r prototype.Range) int64 {
	r = r.Normalize()
	span := r.Max - r.Min
	if span <= 0 {
		return r.Min
	}
	if span >= math.MaxInt64-1 {
		span = math.MaxInt64 - 2
	}
	n := span + 1
	if n <= BagThreshold {
		return r.Min + int64(s.drawBag(key, int(n)))
	}
	return r.Min + s.drawDrift(key, n)
}

// Forget drops any state held for key.
func (s *Sampler) Forget(key string) {
	delete(s.bags, key)
	delete(s.phases, key)
}

func (s *Sampler) drawBag(key string, n int) int {
	b, ok := s.bags[key]
	if !ok || b.n != n {
		b = &bag{n: n, last: -1}
		s.bags[key] = b
	}
	if b.pos >= len(b.order) {
		s.reshuffle(b)
	}
	v := b.order[b.pos]
	b.pos++
	b.last = v
	return v
}

func (s *Sampler) reshuffle(b *bag) {
	if len(b.order) != b.n {
		b.order = make([]int, b.n)
	}
	for i := range b.order {
		b.order[i] = i
	}
	for i := b.n - 1; i > 0; i-- {
		j := s.rng.Intn(i + 1)
		b.order[i], b.order[j] = b.order[j], b.order[i]
	}
	if b.n > 1 && b.order[0] == b.last {
		j := 1 + s.rng.Intn(b.n-1)
		b.order[0], b.order[j] = b.order[j], b.order[0]
	}
	b.pos = 0
}

func (s *Sampler) drawDrift(key string, n int64) int64 {
	phase, ok := s.phases[key]
	if !ok {
		phase = s.rng.Float64()
	}
	jitter := (s.rng.Float64()*2 - 1) * jitterSpan
	phase = frac(phase + goldenConjugate + jitter)
	s.phases[key] = phase

	bucket := int64(phase * float64(n))
	if bucket >= n {
		bucket = n - 1
	}
	if bucket < 0 {
		bucket = 0
	}
	return bucket
}

func frac(x float64) float64 {
	f := x - math.Floor(x)
	if f >= 1 {
		return 0
	}
	return f
}
