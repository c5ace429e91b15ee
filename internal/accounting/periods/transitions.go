package periods

import "fmt"

// Action names a lifecycle transition.
type Action string

const (
	ActionClose  Action = "close"
	ActionReopen Action = "reopen"
	ActionLock   Action = "lock"
)

var transitions = map[PeriodStatus]map[Action]PeriodStatus{
	PeriodStatusOpen: {
		ActionClose: PeriodStatusClosed,
	},
	PeriodStatusClosed: {
		ActionReopen: PeriodStatusOpen,
		ActionLock:   PeriodStatusLocked,
	},
}

// Transition returns the status reached by applying action to current.
// Locked is terminal.
func Transition(current PeriodStatus, action Action) (PeriodStatus, error) {
	if current == PeriodStatusLocked {
		return current, fmt.Errorf("%w: cannot %s", ErrPeriodLocked, action)
	}
	next, ok := transitions[current][action]
	if !ok {
		return current, fmt.Errorf("%w: cannot %s a %s period", ErrInvalidPeriodTransition, action, current)
	}
	return next, nil
}
