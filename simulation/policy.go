package simulation

// Policy decides whether an agent runs its capacity next round. It sees the
// agent after its step and the network through the read-only view, and must
// not change either.
type Policy interface {
	Decide(a *Agent, net View) bool
}

// PolicyFunc adapts a plain function to the Policy interface.
type PolicyFunc func(a *Agent, net View) bool

func (f PolicyFunc) Decide(a *Agent, net View) bool { return f(a, net) }

// ProfitThreshold starts an idle agent whose expected profit is positive and
// stops a running agent whose expected profit is not.
type ProfitThreshold struct{}

func (ProfitThreshold) Decide(a *Agent, _ View) bool {
	if !a.Active() {
		return a.ExpectedProfitNextRound() > 0
	}
	return a.ExpectedProfitNextRound() > 0
}

// DecentralizationThreshold keeps an agent running only while the network
// decentralization index is at least Min.
type DecentralizationThreshold struct {
	Min float64
}

func (p DecentralizationThreshold) Decide(a *Agent, net View) bool {
	if !a.Active() {
		return net.DecentralizationIndex() >= p.Min
	}
	return net.DecentralizationIndex() >= p.Min
}

// ProfitOrLoss starts like ProfitThreshold but stops a running agent as soon
// as either the expected profit turns negative or the agent is at a loss
// overall.
type ProfitOrLoss struct{}

func (ProfitOrLoss) Decide(a *Agent, _ View) bool {
	if !a.Active() {
		return a.ExpectedProfitNextRound() > 0
	}
	return a.ExpectedProfitNextRound() >= 0 && a.Profit() >= 0
}

// PeerDecentralization runs an agent only while the decentralization index of
// the other agents currently running is at least Min. The agent's own
// capacity is left out, as is every peer that is switched off. With no peer
// running the index falls back to 1. Because it reads live peer capacities
// its outcome depends on the scheduler.
type PeerDecentralization struct {
	Min float64
}

func (p PeerDecentralization) Decide(a *Agent, net View) bool {
	live := net.ActiveCapacities()
	values := make([]float64, 0, len(live))
	for id, c := range live {
		if id == a.ID() || !(c > 0) {
			continue
		}
		values = append(values, c)
	}
	return DecentralizationIndex(values) >= p.Min
}

// PolicyKind names a built-in policy in configuration.
type PolicyKind int

const (
	PolicyProfitThreshold PolicyKind = iota
	PolicyDecentralizationThreshold
	PolicyProfitOrLoss
	PolicyPeerDecentralization
)

func (k PolicyKind) String() string {
	switch k {
	case PolicyProfitThreshold:
		return "profit-threshold"
	case PolicyDecentralizationThreshold:
		return "decentralization-threshold"
	case PolicyProfitOrLoss:
		return "profit-or-loss"
	case PolicyPeerDecentralization:
		return "peer-decentralization"
	default:
		return "unknown"
	}
}

func (k *PolicyKind) UnmarshalText(text []byte) error {
	for _, c := range []PolicyKind{PolicyProfitThreshold, PolicyDecentralizationThreshold, PolicyProfitOrLoss, PolicyPeerDecentralization} {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return invalid("unknown policy %q", text)
}

func (k PolicyKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// NewPolicy builds the built-in policy for kind. The threshold only matters
// for the decentralization policies.
func NewPolicy(kind PolicyKind, threshold float64) Policy {
	switch kind {
	case PolicyDecentralizationThreshold:
		return DecentralizationThreshold{Min: threshold}
	case PolicyProfitOrLoss:
		return ProfitOrLoss{}
	case PolicyPeerDecentralization:
		return PeerDecentralization{Min: threshold}
	default:
		return ProfitThreshold{}
	}
}
