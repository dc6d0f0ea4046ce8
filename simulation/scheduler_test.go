package simulation

import (
	"testing"
)

// observingPolicy stops every agent and remembers the total live capacity
// each agent saw when it decided.
type observingPolicy struct {
	seen map[int]float64
}

func (p *observingPolicy) Decide(a *Agent, net View) bool {
	var sum float64
	for _, c := range net.ActiveCapacities() {
		sum += c
	}
	p.seen[a.ID()] = sum
	return false
}

func equalAgents(n int) []AgentSpec {
	specs := make([]AgentSpec, n)
	for i := range specs {
		specs[i] = AgentSpec{MaxCapacity: 100}
	}
	return specs
}

func TestSchedulersVisitEveryAgentOnce(t *testing.T) {
	for _, kind := range []SchedulerKind{SchedulerSequentialRandom, SchedulerSimultaneous} {
		t.Run(kind.String(), func(t *testing.T) {
			visits := make(map[int]int)
			policy := PolicyFunc(func(a *Agent, _ View) bool {
				visits[a.ID()]++
				return true
			})
			cfg := DefaultConfig()
			cfg.Agents = equalAgents(6)
			cfg.Scheduler = kind
			n, err := NewNetwork(cfg, WithPolicy(policy))
			if err != nil {
				t.Fatalf("network: %v", err)
			}
			for round := 1; round <= 3; round++ {
				if err := n.Step(); err != nil {
					t.Fatalf("step: %v", err)
				}
				for id := 0; id < 6; id++ {
					if visits[id] != round {
						t.Fatalf("round %d: agent %d visited %d times", round, id, visits[id])
					}
				}
			}
		})
	}
}

func TestSimultaneousHidesDecisionsWithinRound(t *testing.T) {
	policy := &observingPolicy{seen: make(map[int]float64)}
	cfg := DefaultConfig()
	cfg.Agents = equalAgents(4)
	cfg.Scheduler = SchedulerSimultaneous
	n, err := NewNetwork(cfg, WithPolicy(policy))
	if err != nil {
		t.Fatalf("network: %v", err)
	}
	if err := n.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	for id, sum := range policy.seen {
		if sum != 400 {
			t.Fatalf("agent %d saw %v live capacity, want 400", id, sum)
		}
	}
	if !n.Halted() {
		t.Fatalf("every agent decided to stop but capacity is %v", n.TotalActiveCapacity())
	}
}

func TestSequentialShowsEarlierDecisions(t *testing.T) {
	policy := &observingPolicy{seen: make(map[int]float64)}
	cfg := DefaultConfig()
	cfg.Agents = equalAgents(4)
	cfg.Scheduler = SchedulerSequentialRandom
	n, err := NewNetwork(cfg, WithPolicy(policy))
	if err != nil {
		t.Fatalf("network: %v", err)
	}
	if err := n.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	// Each agent stops in turn, so the agents saw 400, 300, 200 and 100.
	seen := make(map[float64]bool)
	for _, sum := range policy.seen {
		seen[sum] = true
	}
	for _, want := range []float64{400, 300, 200, 100} {
		if !seen[want] {
			t.Fatalf("no agent saw live capacity %v: %v", want, policy.seen)
		}
	}
}

func TestSequentialOrderChangesBetweenRounds(t *testing.T) {
	rnd := NewRandomSource(3)
	s := NewScheduler(SchedulerSequentialRandom, rnd)
	if s.Kind() != SchedulerSequentialRandom {
		t.Fatalf("kind = %v", s.Kind())
	}
	var orders [][]int
	for round := 0; round < 5; round++ {
		var order []int
		view := newTestView(0)
		agents := make([]*Agent, 8)
		for i := range agents {
			agents[i] = NewAgent(i, MiningPool, 1, 0, view, PolicyFunc(func(a *Agent, _ View) bool {
				order = append(order, a.ID())
				return true
			}), nil)
		}
		s.Run(agents)
		orders = append(orders, order)
	}
	same := true
	for _, o := range orders[1:] {
		for i := range o {
			if o[i] != orders[0][i] {
				same = false
			}
		}
	}
	if same {
		t.Fatalf("five rounds used the identical order %v", orders[0])
	}
}
