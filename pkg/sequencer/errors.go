package sequencer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownScenario indicates the requested scenario key has no
// definition in the configuration store.
var ErrUnknownScenario = errors.New("unknown scenario")

// ConfigurationMissingError aggregates every required setting that
// could not be resolved before a run, so the caller sees the complete
// remediation list at once instead of one key per attempt.
type ConfigurationMissingError struct {
	MissingKeys []string
}

func (e *ConfigurationMissingError) Error() string {
	return "required configuration missing: " + strings.Join(e.MissingKeys, ", ")
}

// IsConfigurationMissing checks if an error is an aggregate missing-configuration error.
func IsConfigurationMissing(err error) bool {
	var target *ConfigurationMissingError

	return errors.As(err, &target)
}

// StepExecutionError wraps an unexpected error during a single step.
// It is terminal for the execution.
type StepExecutionError struct {
	ExecutionID string
	StepOrder   int
	Err         error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %d of execution %s failed: %v", e.StepOrder, e.ExecutionID, e.Err)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}
