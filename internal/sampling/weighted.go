package sampling

import "tradepost/internal/world"

// WeightedIndex picks an index by cumulative weight. Negative weights count as zero;
// when every weight is zero the pick is uniform. It returns -1 for an empty slice.
func WeightedIndex(rng world.Random, weights []float64) int {
	if len(weights) == 0 {
		return -1
	}
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return rng.Intn(len(weights))
	}

	roll := rng.Float64() * total
	var cumulative float64
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		cumulative += w
		last = i
		if roll < cumulative {
			return i
		}
	}
	return last
}
