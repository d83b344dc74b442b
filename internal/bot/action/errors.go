package action

import (
	"errors"
	"fmt"
)

// ErrNotFound means the lookup target does not exist, for example a status
// query for a customer with no orders.
var ErrNotFound = errors.New("action: not found")

// ErrCustomerNotFound means no customer matches the phone given to the bind
// flow.
var ErrCustomerNotFound = errors.New("action: no customer with that phone")

// Error wraps a handler failure. Retryable failures (timeouts, store
// hiccups) let the dialog offer the user a retry; anything else ends the
// flow.
type Error struct {
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("action: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func retryable(err error) *Error {
	return &Error{Retryable: true, Err: err}
}

func permanent(err error) *Error {
	return &Error{Retryable: false, Err: err}
}

// IsRetryable reports whether the dialog should offer a retry for err.
func IsRetryable(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Retryable
}
