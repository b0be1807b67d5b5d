package pipeline

import "fmt"

// State is the position of a run in the pipeline.
type State int32

const (
	Idle State = iota
	Searching
	Organizing
	Enriching
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Organizing:
		return "organizing"
	case Enriching:
		return "enriching"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == Ready || s == Failed
}

// CanTransition reports whether from -> to is a legal step.
// Every non-terminal state may fail; otherwise runs only move forward.
func CanTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == Failed {
		return true
	}
	switch from {
	case Idle:
		return to == Searching
	case Searching:
		return to == Organizing
	case Organizing:
		return to == Enriching
	case Enriching:
		return to == Ready
	default:
		return false
	}
}
