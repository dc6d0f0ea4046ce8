package simulation

import (
	"math"
	"sort"
)

// Gini returns the Gini coefficient of a multiset of non-negative values,
// using the mean absolute difference form sum|xi-xj| / (2 n^2 mean). Negative
// and NaN entries are treated as zero. An empty input or one with no positive
// value has no defined coefficient and reports 0. Values are scaled by their
// maximum first so huge capacities cannot overflow the sum; infinite entries
// share everything between them.
func Gini(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	var top float64
	for i, v := range values {
		if !(v > 0) {
			v = 0
		}
		sorted[i] = v
		if v > top {
			top = v
		}
	}
	if top == 0 {
		return 0
	}
	var sum float64
	for i, v := range sorted {
		switch {
		case math.IsInf(top, 1) && math.IsInf(v, 1):
			v = 1
		case math.IsInf(top, 1):
			v = 0
		default:
			v /= top
		}
		sorted[i] = v
		sum += v
	}
	sort.Float64s(sorted)

	// With ascending order sum_i sum_j |xi-xj| = 2 * sum_i (2i - n + 1) xi
	var weighted float64
	for i, v := range sorted {
		weighted += float64(2*i-n+1) * v
	}
	g := weighted / (float64(n) * sum)
	return clamp01(g)
}

// DecentralizationIndex is 1 - Gini(values): 1 when capacity is spread evenly,
// approaching 0 when a single holder owns it all. When no value is positive
// there is no concentration to measure and the index is 1.
func DecentralizationIndex(values []float64) float64 {
	for _, v := range values {
		if v > 0 {
			return clamp01(1 - Gini(values))
		}
	}
	return 1
}

// Population selects which agents feed the decentralization index.
type Population int

const (
	// PopulationAllAgents includes inactive agents as zero entries.
	PopulationAllAgents Population = iota
	// PopulationActiveOnly includes only agents with positive capacity.
	PopulationActiveOnly
)

func (p Population) String() string {
	switch p {
	case PopulationAllAgents:
		return "all-agents"
	case PopulationActiveOnly:
		return "active-only"
	default:
		return "unknown"
	}
}

// Select picks the capacities that belong to the population.
func (p Population) Select(capacities []float64) []float64 {
	if p != PopulationActiveOnly {
		return capacities
	}
	active := make([]float64, 0, len(capacities))
	for _, c := range capacities {
		if c > 0 {
			active = append(active, c)
		}
	}
	return active
}

// clamp01 maps v into [0, 1]; NaN maps to 0.
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
