package simulation

import (
	"testing"
)

type fakeView struct {
	total      float64
	reward     float64
	period     float64
	value      float64
	index      float64
	population Population
	capacities []float64
}

func (v *fakeView) TotalActiveCapacity() float64 { return v.total }
func (v *fakeView) BlockReward() float64 { return v.reward }
func (v *fakeView) BlockPeriod() float64 { return v.period }
func (v *fakeView) CurrencyValue() float64 { return v.value }
func (v *fakeView) DecentralizationIndex() float64 { return v.index }
func (v *fakeView) DecentralizationPopulation() Population { return v.population }
func (v *fakeView) ActiveCapacities() []float64 { return v.capacities }

func newTestView(total float64) *fakeView {
	return &fakeView{total: total, reward: 3, period: 15, value: 200, index: 1}
}

func TestAgentStepActive(t *testing.T) {
	view := newTestView(1000)
	a := NewAgent(1, MiningPool, 100, 1e-3, view, nil, nil)

	a.Step()
	if !approx(a.AccumulatedCost(), 1.5) {
		t.Fatalf("cost = %v, want 1.5", a.AccumulatedCost())
	}
	if !approx(a.Profit(), -1.5) {
		t.Fatalf("profit = %v, want -1.5", a.Profit())
	}
	// 100/1000 of a 600 EUR block minus 1.5 EUR of energy
	if !approx(a.ExpectedProfitNextRound(), 58.5) {
		t.Fatalf("expected profit = %v, want 58.5", a.ExpectedProfitNextRound())
	}

	a.credit(3)
	a.Step()
	if !approx(a.AccumulatedCost(), 3) {
		t.Fatalf("cost = %v, want 3", a.AccumulatedCost())
	}
	if !approx(a.Profit(), 600-3) {
		t.Fatalf("profit = %v, want 597", a.Profit())
	}
}

func TestAgentStepInactive(t *testing.T) {
	view := newTestView(1000)
	a := NewAgent(1, MiningPool, 100, 1e-3, view, nil, nil)
	a.deactivate()

	a.Step()
	if a.AccumulatedCost() != 0 {
		t.Fatalf("inactive agent paid %v", a.AccumulatedCost())
	}
	want := 100.0/1100*600 - 1.5
	if !approx(a.ExpectedProfitNextRound(), want) {
		t.Fatalf("expected profit = %v, want %v", a.ExpectedProfitNextRound(), want)
	}
}

func TestAgentStepIdleNetwork(t *testing.T) {
	view := newTestView(0)
	a := NewAgent(0, PrimaryPool, 100, 1e-3, view, nil, nil)
	a.deactivate()

	a.Step()
	if !approx(a.ExpectedProfitNextRound(), 600-1.5) {
		t.Fatalf("expected profit = %v, want %v", a.ExpectedProfitNextRound(), 600-1.5)
	}
}

func TestAgentCommitKeepsCapacityBinary(t *testing.T) {
	a := NewAgent(0, PrimaryPool, 250, 0, newTestView(250), nil, nil)
	a.commit(0)
	if a.ActiveCapacity() != 0 {
		t.Fatalf("capacity after stop = %v", a.ActiveCapacity())
	}
	a.commit(1)
	if a.ActiveCapacity() != 250 {
		t.Fatalf("capacity after start = %v, want 250", a.ActiveCapacity())
	}
	a.commit(250)
	if a.ActiveCapacity() != 250 {
		t.Fatalf("capacity after repeated start = %v, want 250", a.ActiveCapacity())
	}
}

func TestProfitThreshold(t *testing.T) {
	cases := []struct {
		name     string
		active   bool
		expected float64
		want     bool
	}{
		{"off and profitable starts", false, 1, true},
		{"off and break-even stays off", false, 0, false},
		{"on and profitable stays on", true, 1, true},
		{"on and break-even stops", true, 0, false},
		{"on and losing stops", true, -1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAgent(0, MiningPool, 10, 0, newTestView(10), nil, nil)
			if !tc.active {
				a.deactivate()
			}
			a.expectedProfit = tc.expected
			if got := (ProfitThreshold{}).Decide(a, a.net); got != tc.want {
				t.Fatalf("Decide = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDecentralizationThreshold(t *testing.T) {
	p := DecentralizationThreshold{Min: 0.6}
	view := newTestView(10)
	a := NewAgent(0, MiningPool, 10, 0, view, p, nil)

	view.index = 0.6
	if !a.policy.Decide(a, view) {
		t.Fatalf("running agent stopped at index 0.6")
	}
	view.index = 0.59
	if a.Decide() != 0 {
		t.Fatalf("running agent kept mining at index 0.59")
	}
	a.deactivate()
	if a.Decide() != 0 {
		t.Fatalf("idle agent started at index 0.59")
	}
	view.index = 0.9
	if a.Decide() != 10 {
		t.Fatalf("idle agent did not start at index 0.9")
	}
}

func TestProfitOrLoss(t *testing.T) {
	a := NewAgent(0, MiningPool, 10, 0, newTestView(10), ProfitOrLoss{}, nil)
	a.expectedProfit = 0
	a.profit = 5
	if a.Decide() != 10 {
		t.Fatalf("break-even agent in profit stopped")
	}
	a.profit = -1
	if a.Decide() != 0 {
		t.Fatalf("agent at a loss kept mining")
	}
	a.deactivate()
	a.expectedProfit = 1
	if a.Decide() != 10 {
		t.Fatalf("idle agent with positive outlook did not start")
	}
}

func TestPeerDecentralization(t *testing.T) {
	p := PeerDecentralization{Min: 0.6}
	view := newTestView(0)

	// Own capacity and idle peers stay out of the index
	view.capacities = []float64{10000, 0, 100, 100}
	a := NewAgent(0, PrimaryPool, 10000, 0, view, p, nil)
	if a.Decide() != 10000 {
		t.Fatalf("agent refused to run next to two equal peers")
	}

	view.capacities = []float64{0, 1000, 10, 10}
	b := NewAgent(0, MiningPool, 100, 0, view, p, nil)
	if b.Decide() != 0 {
		t.Fatalf("agent ran next to a concentrated peer set")
	}

	view.capacities = []float64{0, 0, 0}
	if b.Decide() != 100 {
		t.Fatalf("agent refused to run with no peer running")
	}
}

func TestPolicyFunc(t *testing.T) {
	calls := 0
	p := PolicyFunc(func(a *Agent, net View) bool {
		calls++
		return net.DecentralizationIndex() > 0.5
	})
	a := NewAgent(0, MiningPool, 10, 0, newTestView(10), p, nil)
	if a.Decide() != 10 || calls != 1 {
		t.Fatalf("PolicyFunc not consulted")
	}
}
