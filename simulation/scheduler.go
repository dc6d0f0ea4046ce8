package simulation

// SchedulerKind selects how agents take their turn within a round.
type SchedulerKind int

const (
	// SchedulerSequentialRandom visits agents in a fresh random order and
	// commits each decision immediately.
	SchedulerSequentialRandom SchedulerKind = iota
	// SchedulerSimultaneous steps every agent, then decides for every agent,
	// then commits all decisions at once.
	SchedulerSimultaneous
)

func (k SchedulerKind) String() string {
	switch k {
	case SchedulerSequentialRandom:
		return "sequential-random"
	case SchedulerSimultaneous:
		return "simultaneous"
	default:
		return "unknown"
	}
}

func (k *SchedulerKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "sequential-random", "sequential", "random":
		*k = SchedulerSequentialRandom
	case "simultaneous":
		*k = SchedulerSimultaneous
	default:
		return invalid("unknown scheduler %q", text)
	}
	return nil
}

func (k SchedulerKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Scheduler drives one round of agent turns.
type Scheduler interface {
	Kind() SchedulerKind
	Run(agents []*Agent)
}

// NewScheduler returns the scheduler for kind. The sequential scheduler
// draws its visiting order from rnd.
func NewScheduler(kind SchedulerKind, rnd *RandomSource) Scheduler {
	if kind == SchedulerSimultaneous {
		return simultaneous{}
	}
	return &sequentialRandom{rnd: rnd}
}

type sequentialRandom struct {
	rnd *RandomSource
}

func (s *sequentialRandom) Kind() SchedulerKind { return SchedulerSequentialRandom }

func (s *sequentialRandom) Run(agents []*Agent) {
	for _, i := range s.rnd.Permutation(len(agents)) {
		a := agents[i]
		a.Step()
		a.commit(a.Decide())
	}
}

type simultaneous struct{}

func (simultaneous) Kind() SchedulerKind { return SchedulerSimultaneous }

func (simultaneous) Run(agents []*Agent) {
	for _, a := range agents {
		a.Step()
	}
	decisions := make([]float64, len(agents))
	for i, a := range agents {
		decisions[i] = a.Decide()
	}
	for i, a := range agents {
		a.commit(decisions[i])
	}
}
