package statemachine

import (
	"errors"
	"fmt"
)

// Errors returned by NewTable.
var (
	ErrNoTransitions       = errors.New("transition table is empty")
	ErrDuplicateTransition = errors.New("duplicate transition")
)

// ErrNoTransitionAvailable indicates no transition exists for the given state/event combination.
type ErrNoTransitionAvailable struct {
	StateName string
	EventName string
}

func (e *ErrNoTransitionAvailable) Error() string {
	return fmt.Sprintf("no transition available from state '%s' for event '%s'", e.StateName, e.EventName)
}

// NewErrNoTransitionAvailable creates an error for the given state and event names.
func NewErrNoTransitionAvailable(stateName, eventName string) *ErrNoTransitionAvailable {
	return &ErrNoTransitionAvailable{
		StateName: stateName,
		EventName: eventName,
	}
}

// IsNoTransitionAvailableError checks if an error is an ErrNoTransitionAvailable error.
func IsNoTransitionAvailableError(err error) bool {
	var e *ErrNoTransitionAvailable
	return errors.As(err, &e)
}
