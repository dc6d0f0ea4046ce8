package simulation

import (
	"math/rand"
)

// RandomSource supplies the uniform draws used for agent generation, the
// scheduler shuffle and the block lottery. It is never shared between
// networks, so a run is reproducible from its seed alone.
type RandomSource struct {
	rand *rand.Rand
}

func NewRandomSource(seed int64) *RandomSource {
	return &RandomSource{rand: rand.New(rand.NewSource(seed))}
}

// Float64 returns a draw in [0, 1).
func (r *RandomSource) Float64() float64 {
	return r.rand.Float64()
}

// Uniform returns a draw in [lo, hi). A degenerate range returns lo.
func (r *RandomSource) Uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + (hi-lo)*r.rand.Float64()
}

// Permutation returns a random ordering of the indexes [0, n).
func (r *RandomSource) Permutation(n int) []int {
	return r.rand.Perm(n)
}

// Weighted picks an index with probability weights[i]/sum(weights). Entries
// that are zero or negative are never picked. Returns -1 if nothing can be
// picked.
func (r *RandomSource) Weighted(weights []float64, total float64) int {
	if total <= 0 {
		return -1
	}
	pick := r.rand.Float64() * total
	last := -1
	var cumulative float64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		cumulative += w
		if pick < cumulative {
			return i
		}
	}
	// Rounding can leave pick just above the accumulated sum
	return last
}

// Streams groups the random sources a network draws from.
type Streams struct {
	Generation *RandomSource
	Lottery    *RandomSource
}

// NewStreams builds the generation and lottery sources for a seed. With
// StreamsShared both names refer to the same source, so lottery draws
// interleave with generation and shuffle draws exactly as a single global
// generator would. With StreamsSplit the lottery has its own source, so
// changing the population does not perturb the winner sequence draw order.
func NewStreams(seed int64, mode StreamMode) Streams {
	gen := NewRandomSource(seed)
	if mode == StreamsSplit {
		return Streams{Generation: gen, Lottery: NewRandomSource(splitSeed(seed))}
	}
	return Streams{Generation: gen, Lottery: gen}
}

// splitSeed derives the lottery seed with a splitmix64 finalizer.
func splitSeed(seed int64) int64 {
	z := uint64(seed) + 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return int64(z ^ (z >> 31))
}
