// Package signal defines the legal lifecycle transitions of a trading signal.
// The tick engine and the recovery path both consult this table; nothing else
// mutates Signal.Status.
package signal

import (
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

var ErrInvalidTransition = errors.New("invalid signal state transition")

// StatusNone is the implicit pre-creation state. A signal is only
// materialized once the tick engine decides to create one; there is no
// persisted record for it.
const StatusNone schema.Status = ""

var transitions = map[schema.Status][]schema.Status{
	StatusNone:             {schema.StatusScheduled, schema.StatusOpened},
	schema.StatusScheduled: {schema.StatusOpened, schema.StatusCancelled},
	schema.StatusOpened:    {schema.StatusActive},
	schema.StatusActive:    {schema.StatusClosed},
	schema.StatusClosed:    nil,
	schema.StatusCancelled: nil,
}

// IsTerminal reports whether no further transition is valid from the status.
func IsTerminal(st schema.Status) bool {
	switch st {
	case schema.StatusClosed, schema.StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from → to is a legal transition.
func CanTransition(from, to schema.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the signal to the target status after a legality check.
func Transition(s *schema.Signal, to schema.Status) error {
	if !CanTransition(s.Status, to) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", s.Status, to)
	}
	s.Status = to
	return nil
}
