package orders

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when the order's current status has
	// no transition for the requested event
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrForbidden is returned when the caller's role may not perform the event
	ErrForbidden = errors.New("operation requires admin role")
)

// validationError communicates rule violations back to transport handlers
type validationError struct {
	message string
}

func (e validationError) Error() string { return e.message }

func newValidationError(msg string) error {
	return validationError{message: msg}
}

func newValidationErrorf(format string, args ...any) error {
	return validationError{message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a request validation failure
func IsValidation(err error) bool {
	var v validationError
	return errors.As(err, &v)
}

// PersistenceError is a storage failure caused by the request itself,
// such as a constraint violation. It is not retried.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistence reports whether err is a PersistenceError
func IsPersistence(err error) bool {
	var p *PersistenceError
	return errors.As(err, &p)
}

// TransitionError carries the rejected (status, event) pair
type TransitionError struct {
	OrderID string
	From    string
	Event   Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot %s from status %s", e.OrderID, e.Event, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
