package simulation

import (
	"github.com/dominant-strategies/go-quai/event"
)

// RoundEvent is everything recorded for one round.
type RoundEvent struct {
	Model  ModelRecord
	Agents []AgentRecord
}

// FeedRecorder broadcasts each completed round record to subscribers. Send
// blocks until every subscriber has taken the event, so subscribers should
// use buffered channels or drain promptly.
type FeedRecorder struct {
	feed    event.Feed
	pending []AgentRecord
}

func NewFeedRecorder() *FeedRecorder {
	return &FeedRecorder{}
}

func (f *FeedRecorder) RecordAgent(r AgentRecord) error {
	f.pending = append(f.pending, r)
	return nil
}

func (f *FeedRecorder) RecordModel(r ModelRecord) error {
	ev := RoundEvent{Model: r, Agents: f.pending}
	f.pending = nil
	f.feed.Send(ev)
	return nil
}

// SubscribeRounds registers ch for round events.
func (f *FeedRecorder) SubscribeRounds(ch chan<- RoundEvent) event.Subscription {
	return f.feed.Subscribe(ch)
}
