package model

import "fmt"

// RunStatus tracks the generation run: waiting (retrying) until the first
// successful attempt, then succeeded. There is no failed terminal state; the
// loop is unbounded by design.
type RunStatus string

const (
	RunStatusWaiting   RunStatus = "waiting"
	RunStatusSucceeded RunStatus = "succeeded"
)

// GatePhase tracks the navigation gate: suppressed while the control is being
// held hidden, released once the deadline has revealed it. The transition is
// one-way.
type GatePhase string

const (
	GatePhaseSuppressed GatePhase = "suppressed"
	GatePhaseReleased   GatePhase = "released"
)

var validRunTransitions = map[RunStatus]map[RunStatus]bool{
	RunStatusWaiting: {
		RunStatusWaiting:   true, // retry
		RunStatusSucceeded: true,
	},
}

var validGateTransitions = map[GatePhase]map[GatePhase]bool{
	GatePhaseSuppressed: {
		GatePhaseSuppressed: true, // re-assert hidden
		GatePhaseReleased:   true,
	},
}

func IsRunTerminal(s RunStatus) bool {
	return s == RunStatusSucceeded
}

func IsGateTerminal(p GatePhase) bool {
	return p == GatePhaseReleased
}

func ValidateRunTransition(from, to RunStatus) error {
	if IsRunTerminal(from) {
		return fmt.Errorf("cannot transition from terminal run status %q", from)
	}
	allowed, ok := validRunTransitions[from]
	if !ok {
		return fmt.Errorf("unknown run status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid run transition: %q -> %q", from, to)
	}
	return nil
}

func ValidateGateTransition(from, to GatePhase) error {
	if IsGateTerminal(from) {
		return fmt.Errorf("cannot transition from terminal gate phase %q", from)
	}
	allowed, ok := validGateTransitions[from]
	if !ok {
		return fmt.Errorf("unknown gate phase %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid gate transition: %q -> %q", from, to)
	}
	return nil
}
