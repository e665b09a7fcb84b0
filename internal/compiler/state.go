package compiler

import "fmt"

// State is the phase a compilation is in.
type State int

const (
	Idle State = iota
	Validating
	Resolving
	Ordering
	Emitting
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Resolving:
		return "resolving"
	case Ordering:
		return "ordering"
	case Emitting:
		return "emitting"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// IsTerminal reports whether no further transition can happen in this run.
func IsTerminal(s State) bool {
	return s == Done || s == Failed
}

// next is the single forward step out of each working state.
var next = map[State]State{
	Idle:       Validating,
	Validating: Resolving,
	Resolving:  Ordering,
	Ordering:   Emitting,
	Emitting:   Done,
}

func isAllowedTransition(from, to State) bool {
	if to == Failed {
		return from != Idle && !IsTerminal(from)
	}
	n, ok := next[from]
	return ok && n == to
}
