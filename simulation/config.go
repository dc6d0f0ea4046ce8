package simulation

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Range is a closed [lo, hi] interval written as a two element YAML list.
type Range [2]float64

func (r Range) Lo() float64 { return r[0] }
func (r Range) Hi() float64 { return r[1] }

// AgentSpec fixes one agent's parameters instead of drawing them.
type AgentSpec struct {
	MaxCapacity float64 `yaml:"max_capacity"`
	CostPerUnit float64 `yaml:"cost_per_unit"`
	Inactive    bool    `yaml:"inactive"`
}

// CurrencyDrift lets the exchange rate follow the decentralization index:
// after each round V *= 1 + (index - Pivot)/Horizon.
type CurrencyDrift struct {
	Enabled bool    `yaml:"enabled"`
	Pivot   float64 `yaml:"pivot"`
	Horizon float64 `yaml:"horizon"`
}

type Config struct {
	NumAgents          int     `yaml:"num_agents"`
	CapacityMultiplier float64 `yaml:"capacity_multiplier"`
	UnitCount          float64 `yaml:"unit_count"`

	TechnologicalMaxCapacityPerUnit float64 `yaml:"technological_max_capacity_per_unit"`
	EnergyPerUnit                   float64 `yaml:"energy_per_unit"`
	UnitsPerMachine                 float64 `yaml:"units_per_machine"`
	TargetTotalCapacity             float64 `yaml:"target_total_capacity"`
	MachineCountSpread              float64 `yaml:"machine_count_spread"`
	CapacityJitter                  Range   `yaml:"capacity_jitter"`
	CostPerKWhRange                 Range   `yaml:"cost_per_kwh_range"`

	BlockReward   float64 `yaml:"block_reward"`
	BlockPeriod   float64 `yaml:"block_period"`
	CurrencyValue float64 `yaml:"currency_value"`

	Scheduler                  SchedulerKind `yaml:"scheduler"`
	DecentralizationPopulation Population    `yaml:"decentralization_population"`
	Policy                     PolicyKind    `yaml:"policy"`
	PolicyThreshold            float64       `yaml:"policy_threshold"`

	RandomSeed    int64      `yaml:"random_seed"`
	RandomStreams StreamMode `yaml:"random_streams"`
	StepCount     int        `yaml:"step_count"`
	StopWhenIdle  bool       `yaml:"stop_when_idle"`

	CurrencyDrift CurrencyDrift `yaml:"currency_drift"`

	// Agents, when set, replaces generation and overrides NumAgents. Index 0
	// is the primary agent.
	Agents []AgentSpec `yaml:"agents"`
}

// DefaultConfig returns the Ethereum parameters of September 2018: 266 TH/s
// network hash rate shared by ten pools, 30 MH/s 140 W units, 3 ETH every
// 15 s at 200 EUR/ETH.
func DefaultConfig() Config {
	return Config{
		NumAgents:          10,
		CapacityMultiplier: 1,
		UnitCount:          1000,

		TechnologicalMaxCapacityPerUnit: 30e6,
		EnergyPerUnit:                   140,
		UnitsPerMachine:                 10,
		TargetTotalCapacity:             266e12,
		MachineCountSpread:              0.7,
		CapacityJitter:                  Range{0.7, 1},
		CostPerKWhRange:                 Range{0.05, 0.20},

		BlockReward:   3,
		BlockPeriod:   15,
		CurrencyValue: 200,

		Scheduler:                  SchedulerSequentialRandom,
		DecentralizationPopulation: PopulationAllAgents,
		Policy:                     PolicyProfitThreshold,
		PolicyThreshold:            0.6,

		RandomSeed:    1,
		RandomStreams: StreamsShared,
		StepCount:     10,
		StopWhenIdle:  true,

		CurrencyDrift: CurrencyDrift{Pivot: 0.6, Horizon: 4320},
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig and validates it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations that would put negative or NaN quantities
// into the engine.
func (c Config) Validate() error {
	if c.NumAgents <= 0 && len(c.Agents) == 0 {
		return invalid("num_agents must be positive, got %d", c.NumAgents)
	}
	if len(c.Agents) > 0 {
		for i, a := range c.Agents {
			if !nonNegative(a.MaxCapacity) {
				return invalid("agents[%d].max_capacity must be non-negative, got %v", i, a.MaxCapacity)
			}
			if !nonNegative(a.CostPerUnit) {
				return invalid("agents[%d].cost_per_unit must be non-negative, got %v", i, a.CostPerUnit)
			}
		}
	} else {
		positives := map[string]float64{
			"capacity_multiplier":                 c.CapacityMultiplier,
			"unit_count":                          c.UnitCount,
			"technological_max_capacity_per_unit": c.TechnologicalMaxCapacityPerUnit,
			"units_per_machine":                   c.UnitsPerMachine,
		}
		for name, v := range positives {
			if !(v > 0) || math.IsInf(v, 0) {
				return invalid("%s must be positive, got %v", name, v)
			}
		}
		if !nonNegative(c.EnergyPerUnit) {
			return invalid("energy_per_unit must be non-negative, got %v", c.EnergyPerUnit)
		}
		if !nonNegative(c.TargetTotalCapacity) {
			return invalid("target_total_capacity must be non-negative, got %v", c.TargetTotalCapacity)
		}
		if !nonNegative(c.MachineCountSpread) || c.MachineCountSpread > 1 {
			return invalid("machine_count_spread must be in [0, 1], got %v", c.MachineCountSpread)
		}
		if err := validRange("capacity_jitter", c.CapacityJitter); err != nil {
			return err
		}
		if c.CapacityJitter.Lo() <= 0 {
			return invalid("capacity_jitter must be positive, got %v", c.CapacityJitter)
		}
		if err := validRange("cost_per_kwh_range", c.CostPerKWhRange); err != nil {
			return err
		}
	}
	if !nonNegative(c.BlockReward) {
		return invalid("block_reward must be non-negative, got %v", c.BlockReward)
	}
	if !(c.BlockPeriod > 0) || math.IsInf(c.BlockPeriod, 0) {
		return invalid("block_period must be positive, got %v", c.BlockPeriod)
	}
	if !nonNegative(c.CurrencyValue) {
		return invalid("currency_value must be non-negative, got %v", c.CurrencyValue)
	}
	if c.StepCount < 0 {
		return invalid("step_count must be non-negative, got %d", c.StepCount)
	}
	if c.Scheduler.String() == "unknown" {
		return invalid("unknown scheduler %d", c.Scheduler)
	}
	if c.DecentralizationPopulation.String() == "unknown" {
		return invalid("unknown decentralization population %d", c.DecentralizationPopulation)
	}
	if c.Policy.String() == "unknown" {
		return invalid("unknown policy %d", c.Policy)
	}
	if c.RandomStreams.String() == "unknown" {
		return invalid("unknown random streams %d", c.RandomStreams)
	}
	if math.IsNaN(c.PolicyThreshold) || c.PolicyThreshold < 0 || c.PolicyThreshold > 1 {
		return invalid("policy_threshold must be in [0, 1], got %v", c.PolicyThreshold)
	}
	if c.CurrencyDrift.Enabled && !(c.CurrencyDrift.Horizon > 0) {
		return invalid("currency_drift.horizon must be positive, got %v", c.CurrencyDrift.Horizon)
	}
	if block := c.BlockReward * c.CurrencyValue; !nonNegative(block) {
		return invalid("block value overflows: %v", block)
	}
	if len(c.Agents) > 0 {
		return c.validAgents()
	}
	return c.validGeneration()
}

// validGeneration checks the largest quantities generation can derive from
// finite factors: the primary's capacity, energy and per-round cost, the
// largest pool, and the network total.
func (c Config) validGeneration() error {
	machineCapacity := c.TechnologicalMaxCapacityPerUnit * c.UnitsPerMachine
	primaryCapacity := machineCapacity * c.CapacityMultiplier * c.UnitCount
	primaryEnergy := c.EnergyPerUnit * c.UnitsPerMachine * c.UnitCount
	avgMachines := c.TargetTotalCapacity / float64(c.NumAgents) / machineCapacity
	poolCapacity := machineCapacity * avgMachines * (1 + c.MachineCountSpread)
	poolEnergy := c.EnergyPerUnit * c.UnitsPerMachine * avgMachines * (1 + c.MachineCountSpread)
	derived := []struct {
		name string
		v    float64
	}{
		{"machine capacity", machineCapacity},
		{"primary capacity", primaryCapacity},
		{"primary energy", primaryEnergy},
		{"primary cost per hash", c.EnergyPerUnit / (c.TechnologicalMaxCapacityPerUnit * c.CapacityMultiplier) * c.CostPerKWhRange.Hi()},
		{"primary cost per round", primaryEnergy * c.BlockPeriod * c.CostPerKWhRange.Hi()},
		{"pool capacity", poolCapacity},
		{"pool cost per round", poolEnergy * c.BlockPeriod * c.CostPerKWhRange.Hi()},
		{"network capacity", primaryCapacity + poolCapacity*float64(c.NumAgents)},
	}
	for _, d := range derived {
		if !nonNegative(d.v) {
			return invalid("%s overflows: %v", d.name, d.v)
		}
	}
	return nil
}

// validAgents checks that explicit capacities and costs stay finite once
// summed and charged for a round.
func (c Config) validAgents() error {
	var total float64
	for i, a := range c.Agents {
		total += a.MaxCapacity
		if cost := a.MaxCapacity * (c.BlockPeriod * a.CostPerUnit); !nonNegative(cost) {
			return invalid("agents[%d] cost per round overflows: %v", i, cost)
		}
	}
	if !nonNegative(total) {
		return invalid("network capacity overflows: %v", total)
	}
	return nil
}

// Population returns the number of agents the configuration produces.
func (c Config) Population() int {
	if len(c.Agents) > 0 {
		return len(c.Agents)
	}
	return c.NumAgents
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}

func validRange(name string, r Range) error {
	if !nonNegative(r.Lo()) || !nonNegative(r.Hi()) {
		return invalid("%s must be non-negative, got %v", name, r)
	}
	if r.Lo() > r.Hi() {
		return invalid("%s is inverted: %v", name, r)
	}
	return nil
}

// UnmarshalText implementations let the enums be written by name in YAML
// and on the command line.

func (p *Population) UnmarshalText(text []byte) error {
	switch string(text) {
	case "all-agents", "all":
		*p = PopulationAllAgents
	case "active-only", "active":
		*p = PopulationActiveOnly
	default:
		return invalid("unknown decentralization population %q", text)
	}
	return nil
}

func (p Population) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// StreamMode chooses whether generation and lottery share one random stream.
type StreamMode int

const (
	StreamsShared StreamMode = iota
	StreamsSplit
)

func (m StreamMode) String() string {
	switch m {
	case StreamsShared:
		return "shared"
	case StreamsSplit:
		return "split"
	default:
		return "unknown"
	}
}

func (m *StreamMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "shared":
		*m = StreamsShared
	case "split":
		*m = StreamsSplit
	default:
		return invalid("unknown random streams %q", text)
	}
	return nil
}

func (m StreamMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }
