package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/shreekarashastry/miningsim/recorder"
	"github.com/shreekarashastry/miningsim/simulation"
)

// Simulation runs configured networks and hands their series to the
// optional persistence backends.
type Simulation struct {
	db       *recorder.SQLite
	jsonlDir string
	watch    bool
	log      *logrus.Logger
}

func NewSimulation(db *recorder.SQLite, jsonlDir string, log *logrus.Logger) *Simulation {
	return &Simulation{db: db, jsonlDir: jsonlDir, log: log}
}

// Watch makes every run report each round as it completes.
func (sim *Simulation) Watch(enabled bool) { sim.watch = enabled }

// watchRounds logs the round events published by feed until the returned
// stop function is called.
func watchRounds(feed *simulation.FeedRecorder, log logrus.FieldLogger) (stop func()) {
	ch := make(chan simulation.RoundEvent, 16)
	sub := feed.SubscribeRounds(ch)
	done := make(chan struct{})

	report := func(ev simulation.RoundEvent) {
		log.WithFields(logrus.Fields{
			"step":     ev.Model.Step,
			"active":   ev.Model.ActiveAgents,
			"capacity": ev.Model.TotalActiveCapacity,
			"index":    ev.Model.DecentralizationIndex,
		}).Info("Round")
	}
	go func() {
		defer close(done)
		for {
			select {
			case ev := <-ch:
				report(ev)
			case <-sub.Err():
				for {
					select {
					case ev := <-ch:
						report(ev)
					default:
						return
					}
				}
			}
		}
	}()
	return func() {
		sub.Unsubscribe()
		<-done
	}
}

// Result summarises one finished run.
type Result struct {
	Label        string
	K, M         float64
	Steps        int
	Halted       bool
	PrimaryOnly  bool
	ActiveAgents []int
	FinalIndex   float64
	Rewards      []float64
	Digest       simulation.Hash
	Model        []simulation.ModelRecord
}

// Run executes one network to completion. keepSeries retains the network
// series in the result.
func (sim *Simulation) Run(ctx context.Context, label string, cfg simulation.Config, keepSeries bool) (Result, error) {
	res := Result{Label: label, K: cfg.CapacityMultiplier, M: cfg.UnitCount}
	log := sim.log.WithFields(logrus.Fields{"run": label})

	var recorders simulation.MultiRecorder
	mem := simulation.NewMemoryRecorder()
	if keepSeries {
		recorders = append(recorders, mem)
	}
	var run *recorder.RunRecorder
	if sim.db != nil {
		var err error
		run, err = sim.db.BeginRun(ctx, recorder.RunInfo{
			Label:  label,
			Seed:   cfg.RandomSeed,
			K:      cfg.CapacityMultiplier,
			M:      cfg.UnitCount,
			Config: cfg,
		})
		if err != nil {
			return res, fmt.Errorf("begin run %s: %w", label, err)
		}
		recorders = append(recorders, run)
	}
	if sim.jsonlDir != "" {
		out, err := recorder.CreateJSONL(filepath.Join(sim.jsonlDir, label+".jsonl.zst"))
		if err != nil {
			return res, err
		}
		recorders = append(recorders, out)
	}
	defer func() {
		if err := recorders.Close(); err != nil {
			log.WithError(err).Error("Closing recorders")
		}
	}()
	if sim.watch {
		feed := simulation.NewFeedRecorder()
		recorders = append(recorders, feed)
		defer watchRounds(feed, log)()
	}

	opts := []simulation.Option{simulation.WithLogger(log)}
	if len(recorders) > 0 {
		opts = append(opts, simulation.WithRecorder(recorders))
	}
	network, err := simulation.NewNetwork(cfg, opts...)
	if err != nil {
		return res, err
	}

	for res.Steps < cfg.StepCount {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := network.Step(); err != nil {
			return res, err
		}
		res.Steps++
		log.WithFields(logrus.Fields{
			"step":   res.Steps - 1,
			"active": network.ActiveAgents(),
			"index":  network.DecentralizationIndex(),
		}).Debug("Active mining pools")
		if cfg.StopWhenIdle && network.Halted() {
			break
		}
	}

	res.Halted = network.Halted()
	res.ActiveAgents = network.ActiveAgents()
	res.PrimaryOnly = primaryOnly(network)
	res.FinalIndex = network.DecentralizationIndex()
	res.Digest = network.Ledger().Digest()
	for _, a := range network.Agents() {
		res.Rewards = append(res.Rewards, a.AccumulatedReward())
	}
	if keepSeries {
		res.Model = mem.Model()
	}

	if run != nil {
		err := run.Finish(recorder.RunSummary{
			Steps:        res.Steps,
			Halted:       res.Halted,
			PrimaryOnly:  res.PrimaryOnly,
			ActiveAgents: len(res.ActiveAgents),
			FinalIndex:   res.FinalIndex,
			Digest:       res.Digest.String(),
		})
		if err != nil {
			return res, fmt.Errorf("finish run %s: %w", label, err)
		}
	}
	log.WithFields(logrus.Fields{
		"steps":  res.Steps,
		"halted": res.Halted,
		"index":  res.FinalIndex,
		"digest": res.Digest,
	}).Info("Run finished")
	return res, nil
}

// primaryOnly reports whether no agent other than the primary is running.
// An idle network counts too: the primary then holds all of nothing.
func primaryOnly(n *simulation.Network) bool {
	for _, a := range n.Agents()[1:] {
		if a.Active() {
			return false
		}
	}
	return true
}
