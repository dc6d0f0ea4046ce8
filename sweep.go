package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/shreekarashastry/miningsim/simulation"
)

// Breakdown targets for the m search.
const (
	TargetPrimaryOnly = "primary-only"
	TargetIdle        = "idle"
)

// Grid runs every (k, m) combination with the same seed and returns the
// results in row-major order over ks then ms.
func (sim *Simulation) Grid(ctx context.Context, base simulation.Config, ks, ms []float64, workers int) ([]Result, error) {
	type job struct {
		index int
		k, m  float64
	}
	jobs := make([]job, 0, len(ks)*len(ms))
	for _, k := range ks {
		for _, m := range ms {
			jobs = append(jobs, job{index: len(jobs), k: k, m: m})
		}
	}

	results := make([]Result, len(jobs))
	err := forEach(ctx, len(jobs), workers, func(ctx context.Context, i int) error {
		j := jobs[i]
		cfg := base
		cfg.CapacityMultiplier, cfg.UnitCount = j.k, j.m
		res, err := sim.Run(ctx, fmt.Sprintf("grid-k%g-m%g", j.k, j.m), cfg, false)
		if err != nil {
			return err
		}
		results[j.index] = res
		return nil
	})
	return results, err
}

// BreakdownPoint is the smallest machine count at which a primary pool with
// multiplier K reaches the target.
type BreakdownPoint struct {
	K     float64
	M     float64
	Found bool
}

// Breakdown searches, for every k, the smallest m in [mStart, mMax] stepping
// by mStep at which the run ends in the target state: only the primary
// running (TargetPrimaryOnly) or nothing running (TargetIdle).
func (sim *Simulation) Breakdown(ctx context.Context, base simulation.Config, ks []float64, mStart, mStep, mMax float64, target string, workers int) ([]BreakdownPoint, error) {
	if mStep <= 0 {
		return nil, fmt.Errorf("m step must be positive, got %v", mStep)
	}
	if target != TargetPrimaryOnly && target != TargetIdle {
		return nil, fmt.Errorf("unknown breakdown target %q", target)
	}
	points := make([]BreakdownPoint, len(ks))
	err := forEach(ctx, len(ks), workers, func(ctx context.Context, i int) error {
		k := ks[i]
		points[i] = BreakdownPoint{K: k}
		for m := mStart; m <= mMax; m += mStep {
			cfg := base
			cfg.CapacityMultiplier, cfg.UnitCount = k, m
			reached, err := sim.reaches(ctx, cfg, target)
			if err != nil {
				return err
			}
			if reached {
				points[i] = BreakdownPoint{K: k, M: m, Found: true}
				return nil
			}
		}
		return nil
	})
	return points, err
}

// reaches runs cfg and stops as soon as the target state appears.
func (sim *Simulation) reaches(ctx context.Context, cfg simulation.Config, target string) (bool, error) {
	network, err := simulation.NewNetwork(cfg, simulation.WithLogger(sim.log))
	if err != nil {
		return false, err
	}
	for i := 0; i < cfg.StepCount; i++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := network.Step(); err != nil {
			return false, err
		}
		switch target {
		case TargetIdle:
			if network.Halted() {
				return true, nil
			}
		case TargetPrimaryOnly:
			if primaryOnly(network) {
				return true, nil
			}
		}
	}
	return false, nil
}

// forEach calls fn for every index in [0, n) on up to workers goroutines and
// returns the first error. Remaining work is cancelled after an error.
func forEach(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) error) error {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
		indexes  = make(chan int)
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				if err := fn(ctx, i); err != nil {
					once.Do(func() {
						firstErr = err
						cancel()
					})
				}
			}
		}()
	}
feed:
	for i := 0; i < n; i++ {
		select {
		case indexes <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(indexes)
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
