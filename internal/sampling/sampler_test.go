package sampling

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepost/internal/prototype"
	"tradepost/internal/world"
)

func TestBagNeverRepeatsConsecutively(t *testing.T) {
	for _, n := range []int{2, 3, 5, 8} {
		s := NewSampler(world.NewRandom(7))
		prev := -1
		for i := 0; i < 5000; i++ {
			v := s.Next("key", n)
			require.NotEqual(t, prev, v, "n=%d draw=%d", n, i)
			prev = v
		}
	}
}

func TestBagIsExactlyUniformPerCycle(t *testing.T) {
	s := NewSampler(world.NewRandom(3))
	const n, cycles = 6, 200
	counts := make([]int, n)
	for i := 0; i < n*cycles; i++ {
		counts[s.Next("key", n)]++
	}
	for bucket, c := range counts {
		assert.Equal(t, cycles, c, "bucket %d", bucket)
	}
}

func TestDriftSpreadsEvenly(t *testing.T) {
	s := NewSampler(world.NewRandom(11))
	const n, draws = 20, 20000
	counts := make([]int, n)
	for i := 0; i < draws; i++ {
		v := s.Next("drift", n)
		require.GreaterOrEqual(t, v, 0)
		require.Less(t, v, n)
		counts[v]++
	}
	expected := draws / n
	for bucket, c := range counts {
		assert.InDelta(t, expected, c, float64(expected)*0.15, "bucket %d", bucket)
	}
}

func TestDriftWindowsAreSpread(t *testing.T) {
	s := NewSampler(world.NewRandom(5))
	const n = 10
	seen := map[int]bool{}
	for i := 0; i < n; i++ {
		seen[s.Next("window", n)] = true
	}
	assert.GreaterOrEqual(t, len(seen), 6)
}

func TestKeysAreIndependent(t *testing.T) {
	s := NewSampler(world.NewRandom(1))
	for i := 0; i < 3; i++ {
		s.Next("a", 3)
	}
	b, ok := s.bags["b"]
	assert.False(t, ok)
	assert.Nil(t, b)

	s.Next("b", 3)
	assert.Equal(t, 1, s.bags["b"].pos)
	assert.Equal(t, 3, s.bags["a"].pos)
}

func TestRangeStaysInBounds(t *testing.T) {
	s := NewSampler(world.NewRandom(9))
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("k%d", i%4)
		small := s.Range(key, prototype.Range{Min: 2, Max: 4})
		assert.True(t, small >= 2 && small <= 4)
		wide := s.Range(key+"w", prototype.Range{Min: 100, Max: 1000})
		assert.True(t, wide >= 100 && wide <= 1000)
	}
	assert.Equal(t, int64(5), s.Range("fixed", prototype.Range{Min: 5}))
	assert.Equal(t, int64(5), s.Range("inverted", prototype.Range{Min: 5, Max: 1}))
}

func TestWeightedIndex(t *testing.T) {
	rng := world.NewRandom(13)
	assert.Equal(t, -1, WeightedIndex(rng, nil))

	counts := make([]int, 3)
	for i := 0; i < 10000; i++ {
		counts[WeightedIndex(rng, []float64{3, -5, 1})]++
	}
	assert.Zero(t, counts[1])
	assert.InDelta(t, 7500, counts[0], 300)
	assert.InDelta(t, 2500, counts[2], 300)

	uniform := make([]int, 2)
	for i := 0; i < 1000; i++ {
		uniform[WeightedIndex(rng, []float64{0, -1})]++
	}
	assert.Greater(t, uniform[0], 0)
	assert.Greater(t, uniform[1], 0)
}
