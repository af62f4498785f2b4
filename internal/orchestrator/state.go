package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownRequest is returned when no request is tracked under an id.
	ErrUnknownRequest = errors.New("unknown request")
	// ErrInvalidTransition is returned when a request cannot move to the asked state.
	ErrInvalidTransition = errors.New("invalid request state transition")
)

// State is the lifecycle state of one creation request.
type State string

const (
	StateSubmitted State = "submitted"
	StateTracking  State = "tracking"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

var transitions = map[State][]State{
	StateSubmitted: {StateTracking, StateFailed, StateCancelled},
	StateTracking:  {StateCompleted, StateFailed, StateCancelled},
	StateFailed:    {StateCancelled},
}

// Terminal reports whether no progress is expected in state s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// CanTransition reports whether a request in state s may move to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func transition(id string, from, to State) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("request %s: %s -> %s: %w", id, from, to, ErrInvalidTransition)
	}
	return nil
}
