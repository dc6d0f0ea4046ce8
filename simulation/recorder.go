package simulation

import (
	"errors"
	"sort"
)

// AgentRecord is one agent's state at the start of a round, before the
// lottery and before any policy change of that round.
type AgentRecord struct {
	Step              uint64  `json:"step"`
	AgentID           int     `json:"agent_id"`
	ActiveCapacity    float64 `json:"active_capacity"`
	AccumulatedReward float64 `json:"accumulated_reward"`
	AccumulatedCost   float64 `json:"accumulated_cost"`
	Profit            float64 `json:"profit"`
}

// ModelRecord is the network state at the start of a round.
type ModelRecord struct {
	Step                  uint64  `json:"step"`
	DecentralizationIndex float64 `json:"decentralization_index"`
	TotalActiveCapacity   float64 `json:"total_active_capacity"`
	ActiveAgents          int     `json:"active_agents"`
	CurrencyValue         float64 `json:"currency_value"`
}

// Recorder receives the per-round time series. Network.Step calls
// RecordAgent once per agent in id order, then RecordModel once.
type Recorder interface {
	RecordAgent(AgentRecord) error
	RecordModel(ModelRecord) error
}

// MultiRecorder fans records out to several recorders, stopping at the
// first error.
type MultiRecorder []Recorder

func (m MultiRecorder) RecordAgent(r AgentRecord) error {
	for _, rec := range m {
		if err := rec.RecordAgent(r); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiRecorder) RecordModel(r ModelRecord) error {
	for _, rec := range m {
		if err := rec.RecordModel(r); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every recorder that has a Close method and returns the joined
// errors.
func (m MultiRecorder) Close() error {
	var errs []error
	for _, rec := range m {
		if c, ok := rec.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// MemoryRecorder keeps every record in memory, indexed for the lookups the
// drivers and tests need.
type MemoryRecorder struct {
	agents map[int][]AgentRecord
	models []ModelRecord
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{agents: make(map[int][]AgentRecord)}
}

func (m *MemoryRecorder) RecordAgent(r AgentRecord) error {
	m.agents[r.AgentID] = append(m.agents[r.AgentID], r)
	return nil
}

func (m *MemoryRecorder) RecordModel(r ModelRecord) error {
	m.models = append(m.models, r)
	return nil
}

// Agent returns the series recorded for one agent.
func (m *MemoryRecorder) Agent(id int) []AgentRecord {
	return m.agents[id]
}

// AgentIDs returns the recorded agent ids in ascending order.
func (m *MemoryRecorder) AgentIDs() []int {
	ids := make([]int, 0, len(m.agents))
	for id := range m.agents {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Model returns the network series.
func (m *MemoryRecorder) Model() []ModelRecord {
	return m.models
}

// AtStep returns every agent's record for one step, in id order.
func (m *MemoryRecorder) AtStep(step uint64) []AgentRecord {
	var out []AgentRecord
	for _, id := range m.AgentIDs() {
		for _, r := range m.agents[id] {
			if r.Step == step {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
