package orchestrator

import "fmt"

// Phase is the position of one run in its lifecycle.
type Phase int

const (
	// PhaseStreamingPrimary relays the first agent stream and watches it for
	// a query instruction.
	PhaseStreamingPrimary Phase = iota
	// PhaseExecutingQuery runs the instruction's SQL and emits the
	// synthetic events.
	PhaseExecutingQuery
	// PhaseStreamingSecondary relays the agent's follow-up stream.
	PhaseStreamingSecondary
	// PhaseDone is terminal. It is reachable from every other phase.
	PhaseDone
)

var phaseNames = map[Phase]string{
	PhaseStreamingPrimary:   "streaming_primary",
	PhaseExecutingQuery:     "executing_query",
	PhaseStreamingSecondary: "streaming_secondary",
	PhaseDone:               "done",
}

// String returns the phase name used in logs.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// nextPhases lists the forward transitions. PhaseDone is implicitly allowed
// from every non-terminal phase.
var nextPhases = map[Phase]Phase{
	PhaseStreamingPrimary: PhaseExecutingQuery,
	PhaseExecutingQuery:   PhaseStreamingSecondary,
}

// CanTransition reports whether a run may move from p to next.
func (p Phase) CanTransition(next Phase) bool {
	if p == PhaseDone {
		return false
	}
	if next == PhaseDone {
		return true
	}
	forward, ok := nextPhases[p]
	return ok && forward == next
}
