package burstgate

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned by [Job.Run] when the gate denies the job.
	// No request has been sent when it is returned.
	ErrUnauthorized = errors.New("job not authorized")

	// ErrInvalidInput marks errors caused by a malformed URL or request count.
	// Check with errors.Is; the concrete type is [*InputError].
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyRun is returned when [Job.Run] is called more than once.
	ErrAlreadyRun = errors.New("job already run")
)

// InputError describes a rejected job input.
//
// InputError matches [ErrInvalidInput] with errors.Is and unwraps to the
// underlying parse error, if any.
type InputError struct {
	// Field names the input, "url" or "count".
	Field string

	// Value is the raw input as given.
	Value string

	// Err is the reason the value was rejected.
	Err error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

// Unwrap returns the underlying reason.
func (e *InputError) Unwrap() error {
	return e.Err
}

// Is reports whether target is [ErrInvalidInput].
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}
