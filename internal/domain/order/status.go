package order

import (
	"fmt"
	"time"

	"github.com/tikis23/psp-2025/internal/domain/apperr"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
	StatusRefunded  Status = "REFUNDED"
)

// transitions lists the legal successors of each status. Statuses missing
// from the table are terminal.
var transitions = map[Status][]Status{
	StatusOpen: {StatusPaid, StatusCancelled},
	StatusPaid: {StatusRefunded},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s has no legal successors.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusPaid, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// InvalidTransitionError is returned for a status change the table forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// Is makes the error match apperr.InvalidState.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == apperr.InvalidState
}

// TransitionTo moves the order to next. The order is unchanged on error.
func (o *Order) TransitionTo(next Status, now time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return &InvalidTransitionError{From: o.Status, To: next}
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}
