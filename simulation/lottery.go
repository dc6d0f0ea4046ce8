package simulation

// Lottery stands in for the proof-of-work race: each round exactly one
// running agent solves the block, with probability equal to its share of
// the active capacity.
type Lottery struct {
	rnd     *RandomSource
	weights []float64
}

func NewLottery(rnd *RandomSource) *Lottery {
	return &Lottery{rnd: rnd}
}

// Draw returns the index of the winning agent, or -1 when no capacity is
// running and therefore nobody can solve the block.
func (l *Lottery) Draw(agents []*Agent) int {
	if cap(l.weights) < len(agents) {
		l.weights = make([]float64, len(agents))
	}
	l.weights = l.weights[:len(agents)]

	var total float64
	for i, a := range agents {
		l.weights[i] = a.ActiveCapacity()
		total += a.ActiveCapacity()
	}
	if total <= 0 {
		return -1
	}
	return l.rnd.Weighted(l.weights, total)
}
