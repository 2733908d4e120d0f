package core

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed or policy-violating input before any state
// is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotFoundError is returned for operations against an unknown id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// InvalidTransitionError rejects a status change out of a terminal state, or
// any other backward move in the lifecycle.
type InvalidTransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot transition %s -> %s", e.OrderID, e.From, e.To)
}

// ErrCrossedBook marks a consistency violation: inserting the order would
// cross the book. It is never surfaced to the caller; the insert is refused
// and the anomaly logged.
var ErrCrossedBook = errors.New("insert would cross the book")

// TransientError wraps a store or transport failure. The core never retries
// these; the in-flight unit of work fails and compensates.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var v *NotFoundError
	return errors.As(err, &v)
}

func IsInvalidTransition(err error) bool {
	var v *InvalidTransitionError
	return errors.As(err, &v)
}
