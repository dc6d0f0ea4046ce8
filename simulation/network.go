package simulation

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// joulesPerKWh converts an energy price per kWh into a price per joule.
const joulesPerKWh = 3600000

// Network owns the agent population and every aggregate the agents read.
// It is not safe for concurrent use; a run is a strictly sequential series
// of Step calls.
type Network struct {
	agents []*Agent

	totalActiveCapacity   float64
	decentralizationIndex float64
	blockReward           float64
	blockPeriod           float64
	currencyValue         float64
	population            Population
	drift                 CurrencyDrift

	streams   Streams
	lottery   *Lottery
	scheduler Scheduler
	ledger    *Ledger
	recorder  Recorder

	step       uint64
	lastWinner int

	policy        Policy
	primaryPolicy Policy
	log           logrus.FieldLogger
}

type Option func(*Network)

// WithRecorder sends every round's records to r.
func WithRecorder(r Recorder) Option {
	return func(n *Network) { n.recorder = r }
}

// WithLogger sets the logger the network and its agents write to.
func WithLogger(l logrus.FieldLogger) Option {
	return func(n *Network) { n.log = l }
}

// WithPolicy gives every agent p instead of the configured policy.
func WithPolicy(p Policy) Option {
	return func(n *Network) { n.policy = p }
}

// WithPrimaryPolicy gives only the primary agent p.
func WithPrimaryPolicy(p Policy) Option {
	return func(n *Network) { n.primaryPolicy = p }
}

// NewNetwork validates cfg, creates the population and computes the
// initial aggregates.
func NewNetwork(cfg Config, opts ...Option) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := &Network{
		blockReward:   cfg.BlockReward,
		blockPeriod:   cfg.BlockPeriod,
		currencyValue: cfg.CurrencyValue,
		population:    cfg.DecentralizationPopulation,
		drift:         cfg.CurrencyDrift,
		streams:       NewStreams(cfg.RandomSeed, cfg.RandomStreams),
		ledger:        NewLedger(),
		lastWinner:    -1,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.log == nil {
		n.log = discardLogger()
	}
	if n.policy == nil {
		n.policy = NewPolicy(cfg.Policy, cfg.PolicyThreshold)
	}
	if n.primaryPolicy == nil {
		n.primaryPolicy = n.policy
	}
	n.lottery = NewLottery(n.streams.Lottery)
	n.scheduler = NewScheduler(cfg.Scheduler, n.streams.Generation)

	if len(cfg.Agents) > 0 {
		n.addExplicitAgents(cfg.Agents)
	} else {
		n.generateAgents(cfg)
	}
	n.recomputeAggregates()

	n.log.WithFields(logrus.Fields{
		"agents":    len(n.agents),
		"capacity":  n.totalActiveCapacity,
		"index":     n.decentralizationIndex,
		"scheduler": cfg.Scheduler,
		"policy":    fmt.Sprintf("%T", n.policy),
	}).Debug("Network created")
	return n, nil
}

func (n *Network) addExplicitAgents(specs []AgentSpec) {
	for i, spec := range specs {
		a := n.newAgent(i, spec.MaxCapacity, spec.CostPerUnit)
		if spec.Inactive {
			a.deactivate()
		}
		n.agents = append(n.agents, a)
	}
}

// generateAgents draws the pool population. The primary pool runs m machines
// at k times the technological per-machine capacity; every other pool runs
// standard machines, with a machine count spread around the average that
// would reach the target network capacity. Each pool gets an efficiency
// jitter that scales capacity and energy draw alike, and its own energy
// price.
func (n *Network) generateAgents(cfg Config) {
	rnd := n.streams.Generation
	machineCapacity := cfg.TechnologicalMaxCapacityPerUnit * cfg.UnitsPerMachine
	machineEnergy := cfg.EnergyPerUnit * cfg.UnitsPerMachine
	avgMachines := cfg.TargetTotalCapacity / float64(cfg.NumAgents) / machineCapacity

	pool := func(id int, k, m float64) *Agent {
		r := rnd.Uniform(cfg.CapacityJitter.Lo(), cfg.CapacityJitter.Hi())
		maxCapacity := r * machineCapacity * k * m
		energy := r * machineEnergy * m // W
		price := rnd.Uniform(cfg.CostPerKWhRange.Lo(), cfg.CostPerKWhRange.Hi())
		var costPerUnit float64
		if maxCapacity > 0 {
			energyPerHash := energy / maxCapacity // J/H
			costPerUnit = energyPerHash * price / joulesPerKWh
		}
		return n.newAgent(id, maxCapacity, costPerUnit)
	}

	n.agents = append(n.agents, pool(0, cfg.CapacityMultiplier, cfg.UnitCount))
	spread := cfg.MachineCountSpread
	for i := 1; i < cfg.NumAgents; i++ {
		m := rnd.Uniform(avgMachines*(1-spread), avgMachines*(1+spread))
		n.agents = append(n.agents, pool(i, 1, m))
	}
}

func (n *Network) newAgent(id int, maxCapacity, costPerUnit float64) *Agent {
	kind, policy := MiningPool, n.policy
	if id == 0 {
		kind, policy = PrimaryPool, n.primaryPolicy
	}
	return NewAgent(id, kind, maxCapacity, costPerUnit, n, policy, n.log)
}

// Step runs one round. The records and the lottery see the capacity as it
// was before this round's decisions, so a block is credited to the
// configuration that mined it.
func (n *Network) Step() error {
	if err := n.record(); err != nil {
		return fmt.Errorf("record step %d: %w", n.step, err)
	}
	wasRunning := !n.Halted()
	n.runLottery()
	n.scheduler.Run(n.agents)
	n.recomputeAggregates()
	n.driftCurrency()

	if wasRunning && n.Halted() {
		n.log.WithField("step", n.step).Info("There is no more hash rate in the network")
	}
	n.step++
	return nil
}

// Run executes up to steps rounds and returns how many ran. With
// stopWhenIdle it ends early once no capacity is running, since nothing in
// the network can bring capacity back on its own.
func (n *Network) Run(steps int, stopWhenIdle bool) (int, error) {
	for i := 0; i < steps; i++ {
		if err := n.Step(); err != nil {
			return i, err
		}
		if stopWhenIdle && n.Halted() {
			return i + 1, nil
		}
	}
	return steps, nil
}

func (n *Network) record() error {
	if n.recorder == nil {
		return nil
	}
	active := 0
	for _, a := range n.agents {
		if a.Active() {
			active++
		}
		err := n.recorder.RecordAgent(AgentRecord{
			Step:              n.step,
			AgentID:           a.ID(),
			ActiveCapacity:    a.ActiveCapacity(),
			AccumulatedReward: a.AccumulatedReward(),
			AccumulatedCost:   a.AccumulatedCost(),
			Profit:            a.Profit(),
		})
		if err != nil {
			return err
		}
	}
	return n.recorder.RecordModel(ModelRecord{
		Step:                  n.step,
		DecentralizationIndex: n.decentralizationIndex,
		TotalActiveCapacity:   n.totalActiveCapacity,
		ActiveAgents:          active,
		CurrencyValue:         n.currencyValue,
	})
}

func (n *Network) runLottery() {
	n.lastWinner = -1
	if n.totalActiveCapacity <= 0 {
		return
	}
	winner := n.lottery.Draw(n.agents)
	if winner < 0 {
		return
	}
	n.agents[winner].credit(n.blockReward)
	n.ledger.Append(n.step, winner, n.blockReward, n.totalActiveCapacity)
	n.lastWinner = winner
}

func (n *Network) recomputeAggregates() {
	capacities := make([]float64, len(n.agents))
	var total float64
	for i, a := range n.agents {
		capacities[i] = a.ActiveCapacity()
		total += a.ActiveCapacity()
	}
	n.totalActiveCapacity = total
	n.decentralizationIndex = DecentralizationIndex(n.population.Select(capacities))
}

func (n *Network) driftCurrency() {
	if !n.drift.Enabled {
		return
	}
	n.currencyValue *= 1 + (n.decentralizationIndex-n.drift.Pivot)/n.drift.Horizon
	if n.currencyValue < 0 {
		n.currencyValue = 0
	}
}

// View implementation.

func (n *Network) TotalActiveCapacity() float64 { return n.totalActiveCapacity }
func (n *Network) BlockReward() float64 { return n.blockReward }
func (n *Network) BlockPeriod() float64 { return n.blockPeriod }
func (n *Network) CurrencyValue() float64 { return n.currencyValue }
func (n *Network) DecentralizationIndex() float64 { return n.decentralizationIndex }
func (n *Network) DecentralizationPopulation() Population { return n.population }

func (n *Network) ActiveCapacities() []float64 {
	out := make([]float64, len(n.agents))
	for i, a := range n.agents {
		out[i] = a.ActiveCapacity()
	}
	return out
}

// Agents returns the population in id order. The slice is a copy; the
// agents are not.
func (n *Network) Agents() []*Agent {
	out := make([]*Agent, len(n.agents))
	copy(out, n.agents)
	return out
}

func (n *Network) Agent(id int) *Agent {
	if id < 0 || id >= len(n.agents) {
		return nil
	}
	return n.agents[id]
}

// Primary returns the distinguished agent at index 0.
func (n *Network) Primary() *Agent { return n.agents[0] }

// CurrentStep is the number of rounds completed.
func (n *Network) CurrentStep() uint64 { return n.step }

// LastWinner is the id of the previous round's lottery winner, or -1.
func (n *Network) LastWinner() int { return n.lastWinner }

func (n *Network) Ledger() *Ledger { return n.ledger }

func (n *Network) SchedulerKind() SchedulerKind { return n.scheduler.Kind() }

// Halted reports whether no capacity is running.
func (n *Network) Halted() bool { return n.totalActiveCapacity <= 0 }

// ActiveAgents returns the ids of agents currently running.
func (n *Network) ActiveAgents() []int {
	var ids []int
	for _, a := range n.agents {
		if a.Active() {
			ids = append(ids, a.ID())
		}
	}
	return ids
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
