package simulation

import (
	"testing"
)

func TestFeedRecorderBroadcastsRounds(t *testing.T) {
	feed := NewFeedRecorder()
	ch := make(chan RoundEvent, 8)
	sub := feed.SubscribeRounds(ch)
	defer sub.Unsubscribe()

	cfg := DefaultConfig()
	cfg.Agents = []AgentSpec{{MaxCapacity: 100}, {MaxCapacity: 50}, {MaxCapacity: 0}}
	n := newTestNetwork(t, cfg, WithRecorder(feed))
	for i := 0; i < 3; i++ {
		if err := n.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
	}

	for step := uint64(0); step < 3; step++ {
		select {
		case ev := <-ch:
			if ev.Model.Step != step {
				t.Fatalf("event for step %d, want %d", ev.Model.Step, step)
			}
			if len(ev.Agents) != 3 {
				t.Fatalf("step %d carried %d agent records, want 3", step, len(ev.Agents))
			}
			for id, r := range ev.Agents {
				if r.AgentID != id || r.Step != step {
					t.Fatalf("step %d record %d = %+v", step, id, r)
				}
			}
			if ev.Model.TotalActiveCapacity != 150 || ev.Model.ActiveAgents != 2 {
				t.Fatalf("step %d model %+v", step, ev.Model)
			}
		default:
			t.Fatalf("no event for step %d", step)
		}
	}
}

func TestFeedRecorderWithoutSubscribers(t *testing.T) {
	feed := NewFeedRecorder()
	n := newTestNetwork(t, DefaultConfig(), WithRecorder(MultiRecorder{feed, NewMemoryRecorder()}))
	if _, err := n.Run(5, false); err != nil {
		t.Fatalf("run: %v", err)
	}
}

type closingRecorder struct {
	MemoryRecorder
	closed bool
}

func (c *closingRecorder) Close() error {
	c.closed = true
	return nil
}

func TestMultiRecorderFansOut(t *testing.T) {
	a, b := NewMemoryRecorder(), &closingRecorder{MemoryRecorder: *NewMemoryRecorder()}
	n := newTestNetwork(t, DefaultConfig(), WithRecorder(MultiRecorder{a, b}))
	if _, err := n.Run(4, false); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(a.Model()) != 4 || len(b.Model()) != 4 {
		t.Fatalf("model series %d and %d, want 4", len(a.Model()), len(b.Model()))
	}
	if ids := a.AgentIDs(); len(ids) != 10 || ids[0] != 0 || ids[9] != 9 {
		t.Fatalf("AgentIDs = %v", ids)
	}
	if err := (MultiRecorder{a, b}).Close(); err != nil || !b.closed {
		t.Fatalf("Close = %v, closed %v", err, b.closed)
	}
}
