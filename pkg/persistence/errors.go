package persistence

import "errors"

var (
	// ErrExecutionNotFound indicates no execution record exists for the
	// given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrInvalidStatusTransition indicates a save would move an
	// execution record backwards in its
	// initializing -> running -> terminal lifecycle.
	ErrInvalidStatusTransition = errors.New("invalid execution status transition")
)

// IsExecutionNotFound checks if an error indicates a missing execution record.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}
