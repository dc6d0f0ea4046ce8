package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"

	"github.com/shreekarashastry/miningsim/recorder"
	"github.com/shreekarashastry/miningsim/simulation"
)

func main() {
	log := logrus.New()
	err := run(log, os.Args[1:])
	if err != nil {
		log.WithError(err).Error("Simulation failed")
	}
	os.Exit(exitCode(err))
}

// exitCode maps a run error to the process status: 2 for bad flags or
// configuration, 130 for an interrupted run, 1 for anything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), errors.Is(err, simulation.ErrInvalidConfig):
		return 2
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

var errUsage = errors.New("usage")

func run(log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("miningsim", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "YAML configuration (defaults to the built-in Ethereum 2018 parameters)")
		mode       = fs.String("mode", "run", "run | grid | breakdown")
		dbPath     = fs.String("db", "", "SQLite file receiving the run series (optional)")
		jsonlDir   = fs.String("jsonl", "", "directory receiving zstd JSONL series per run (optional)")
		watch      = fs.Bool("watch", false, "log every round as it completes")
		logLevel   = fs.String("log-level", "info", "panic | fatal | error | warn | info | debug | trace")
		logFile    = fs.String("log-file", "", "also write logs to this rotated file")
		workers    = fs.Int("workers", runtime.NumCPU(), "parallel runs for grid and breakdown")

		ks      = fs.String("ks", "1,10,100,1000", "grid: capacity multipliers")
		ms      = fs.String("ms", "100,1000,10000,100000,1000000", "grid: machine counts")
		kMax    = fs.Int("kmax", 50, "breakdown: search k = 1..kmax")
		mStart  = fs.Float64("mstart", 1000, "breakdown: first machine count")
		mStep   = fs.Float64("mstep", 100, "breakdown: machine count increment")
		mMax    = fs.Float64("mmax", 1e7, "breakdown: give up above this machine count")
		target  = fs.String("target", TargetPrimaryOnly, "breakdown: primary-only | idle")
		steps   = fs.Int("steps", 0, "rounds per run (overrides config)")
		seed    = fs.Int64("seed", 0, "random seed (overrides config)")
		agents  = fs.Int("agents", 0, "number of pools (overrides config)")
		k       = fs.Float64("k", 0, "primary capacity multiplier (overrides config)")
		m       = fs.Float64("m", 0, "primary machine count (overrides config)")
		sched   simulation.SchedulerKind
		pop     simulation.Population
		policy  simulation.PolicyKind
		streams simulation.StreamMode
	)
	fs.TextVar(&sched, "scheduler", simulation.SchedulerSequentialRandom, "sequential-random | simultaneous (overrides config)")
	fs.TextVar(&pop, "population", simulation.PopulationAllAgents, "all-agents | active-only (overrides config)")
	fs.TextVar(&policy, "policy", simulation.PolicyProfitThreshold, "profit-threshold | decentralization-threshold | profit-or-loss | peer-decentralization (overrides config)")
	fs.TextVar(&streams, "streams", simulation.StreamsShared, "shared | split (overrides config)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		return fmt.Errorf("%w: log level: %v", errUsage, err)
	}
	log.SetLevel(level)
	if *logFile != "" {
		log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   *logFile,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}))
	}

	cfg := simulation.DefaultConfig()
	if *configPath != "" {
		cfg, err = simulation.LoadConfig(*configPath)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "steps":
			cfg.StepCount = *steps
		case "seed":
			cfg.RandomSeed = *seed
		case "agents":
			cfg.NumAgents = *agents
		case "k":
			cfg.CapacityMultiplier = *k
		case "m":
			cfg.UnitCount = *m
		case "scheduler":
			cfg.Scheduler = sched
		case "population":
			cfg.DecentralizationPopulation = pop
		case "policy":
			cfg.Policy = policy
		case "streams":
			cfg.RandomStreams = streams
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	var db *recorder.SQLite
	if *dbPath != "" {
		db, err = recorder.OpenSQLite(*dbPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sim := NewSimulation(db, *jsonlDir, log)
	sim.Watch(*watch)

	switch *mode {
	case "run":
		res, err := sim.Run(ctx, "run", cfg, false)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		printRun(res)
	case "grid":
		kv, err := parseFloats(*ks)
		if err != nil {
			return fmt.Errorf("%w: -ks: %v", errUsage, err)
		}
		mv, err := parseFloats(*ms)
		if err != nil {
			return fmt.Errorf("%w: -ms: %v", errUsage, err)
		}
		results, err := sim.Grid(ctx, cfg, kv, mv, *workers)
		if err != nil {
			return fmt.Errorf("grid: %w", err)
		}
		fmt.Printf("%10s %12s %6s %7s %8s %8s\n", "k", "m", "steps", "active", "halted", "index")
		for _, r := range results {
			fmt.Printf("%10g %12g %6d %7d %8t %8.4f\n", r.K, r.M, r.Steps, len(r.ActiveAgents), r.Halted, r.FinalIndex)
		}
	case "breakdown":
		kv := make([]float64, 0, *kMax)
		for i := 1; i <= *kMax; i++ {
			kv = append(kv, float64(i))
		}
		points, err := sim.Breakdown(ctx, cfg, kv, *mStart, *mStep, *mMax, *target, *workers)
		if err != nil {
			return fmt.Errorf("breakdown: %w", err)
		}
		fmt.Printf("# %s\n%6s %12s\n", *target, "k", "m")
		for _, p := range points {
			if !p.Found {
				fmt.Printf("%6g %12s\n", p.K, "-")
				continue
			}
			fmt.Printf("%6g %12g\n", p.K, p.M)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", errUsage, *mode)
	}
	return nil
}

func printRun(res Result) {
	fmt.Printf("steps=%d halted=%t primary_only=%t index=%.4f digest=%s\n",
		res.Steps, res.Halted, res.PrimaryOnly, res.FinalIndex, res.Digest)
	fmt.Println("active pools:", res.ActiveAgents)
	for id, r := range res.Rewards {
		fmt.Printf("pool %d reward %g\n", id, r)
	}
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
