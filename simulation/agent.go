package simulation

import (
	"github.com/sirupsen/logrus"
)

type Kind uint

const (
	PrimaryPool Kind = iota
	MiningPool
)

func (k Kind) String() string {
	if k == PrimaryPool {
		return "primary"
	}
	return "pool"
}

// View is the read-only network state an agent consults during its step.
type View interface {
	TotalActiveCapacity() float64
	BlockReward() float64
	BlockPeriod() float64
	CurrencyValue() float64
	DecentralizationIndex() float64
	DecentralizationPopulation() Population
	// ActiveCapacities returns the live per-agent active capacity, indexed by
	// agent id. Under sequential scheduling it already reflects decisions
	// committed earlier in the round.
	ActiveCapacities() []float64
}

// Agent is a mining pool: a fixed hashing capacity that is either fully on
// or fully off, with energy cost proportional to the capacity it runs.
type Agent struct {
	id   int
	kind Kind

	maxCapacity    float64 // H/s
	activeCapacity float64 // H/s, 0 or maxCapacity
	costPerUnit    float64 // fiat per hash

	reward         float64 // block reward units
	cost           float64 // fiat
	profit         float64 // fiat
	expectedProfit float64 // fiat, next round

	net    View
	policy Policy
	log    logrus.FieldLogger
}

func NewAgent(id int, kind Kind, maxCapacity, costPerUnit float64, net View, policy Policy, log logrus.FieldLogger) *Agent {
	if policy == nil {
		policy = ProfitThreshold{}
	}
	if log == nil {
		log = discardLogger()
	}
	return &Agent{
		id:             id,
		kind:           kind,
		maxCapacity:    maxCapacity,
		activeCapacity: maxCapacity,
		costPerUnit:    costPerUnit,
		net:            net,
		policy:         policy,
		log:            log.WithField("agent", id),
	}
}

func (a *Agent) ID() int { return a.id }
func (a *Agent) Kind() Kind { return a.kind }
func (a *Agent) MaxCapacity() float64 { return a.maxCapacity }
func (a *Agent) ActiveCapacity() float64 { return a.activeCapacity }
func (a *Agent) CostPerUnit() float64 { return a.costPerUnit }
func (a *Agent) AccumulatedReward() float64 { return a.reward }
func (a *Agent) AccumulatedCost() float64 { return a.cost }
func (a *Agent) Profit() float64 { return a.profit }
func (a *Agent) ExpectedProfitNextRound() float64 { return a.expectedProfit }
func (a *Agent) Active() bool { return a.activeCapacity > 0 }
func (a *Agent) Policy() Policy { return a.policy }

// Step pays for the energy burnt this round and refreshes profit and the
// expected profit of running one more round.
func (a *Agent) Step() {
	period := a.net.BlockPeriod()
	value := a.net.CurrencyValue()

	a.cost += a.activeCapacity * period * a.costPerUnit
	a.profit = a.reward*value - a.cost
	a.expectedProfit = a.expectedReward() - a.maxCapacity*period*a.costPerUnit
}

// expectedReward is the fiat value of this agent's share of the next block.
// An inactive agent counts its own capacity into the total it would join.
// With no capacity on the network a lone entrant would win every block.
func (a *Agent) expectedReward() float64 {
	total := a.net.TotalActiveCapacity()
	block := a.net.BlockReward() * a.net.CurrencyValue()
	if total <= 0 {
		return block
	}
	if a.Active() {
		return a.maxCapacity / total * block
	}
	return a.maxCapacity / (total + a.maxCapacity) * block
}

// Decide asks the policy whether the agent should run next round and
// returns the capacity it would contribute. It does not change the agent.
func (a *Agent) Decide() float64 {
	if a.policy.Decide(a, a.net) {
		return a.maxCapacity
	}
	return 0
}

// commit applies a decision. Only the scheduler commits.
func (a *Agent) commit(capacity float64) {
	switch {
	case capacity > 0 && !a.Active() && a.maxCapacity > 0:
		a.activeCapacity = a.maxCapacity
		a.log.WithField("capacity", a.maxCapacity).Debug("Mining pool start")
	case capacity <= 0 && a.Active():
		a.activeCapacity = 0
		a.log.WithField("expected_profit", a.expectedProfit).Debug("Mining pool stop")
	}
}

// credit adds one block reward to the agent.
func (a *Agent) credit(reward float64) {
	a.reward += reward
}

func (a *Agent) deactivate() {
	a.activeCapacity = 0
}
