package sequencer

import (
	"context"
	"time"

	"github.com/coverpath/coverpath/pkg/models"
)

// StepWorker performs the work of one step. The demo orchestrator
// substitutes a simulated delay for real computation; a production
// implementation can swap in an actual worker without touching the
// sequencer.
type StepWorker func(ctx context.Context, step models.StepDefinition, simulatedDelay time.Duration) error

// SimulatedWork is the default step worker: it sleeps for the resolved
// processing delay, honoring context cancellation between the delay and
// the render/evaluate phase.
func SimulatedWork(ctx context.Context, _ models.StepDefinition, simulatedDelay time.Duration) error {
	timer := time.NewTimer(simulatedDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
