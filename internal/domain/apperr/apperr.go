// Package apperr classifies domain failures into a small set of kinds that
// the transport layer maps to responses.
//
// Domain packages declare their sentinels with Mark, so both of these hold:
//
//	errors.Is(err, order.ErrNotFound)
//	errors.Is(err, apperr.NotFound)
package apperr

import "github.com/go-faster/errors"

// Error kinds.
var (
	NotFound          = errors.New("not found")
	InvalidState      = errors.New("invalid state")
	Validation        = errors.New("validation failed")
	InsufficientFunds = errors.New("insufficient funds")
	ExternalService   = errors.New("external service error")
)

var kinds = []error{NotFound, InvalidState, Validation, InsufficientFunds, ExternalService}

type marked struct {
	err  error
	kind error
}

func (m *marked) Error() string { return m.err.Error() }

func (m *marked) Unwrap() error { return m.err }

func (m *marked) Is(target error) bool { return target == m.kind }

// Mark attaches kind to err.
func Mark(err, kind error) error {
	return &marked{err: err, kind: kind}
}

// New is shorthand for Mark(errors.New(msg), kind).
func New(kind error, msg string) error {
	return Mark(errors.New(msg), kind)
}

// Validationf returns a Validation error with a formatted message.
func Validationf(format string, args ...any) error {
	return Mark(errors.Errorf(format, args...), Validation)
}

// KindOf returns the kind err was marked with, or nil for unclassified errors.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
