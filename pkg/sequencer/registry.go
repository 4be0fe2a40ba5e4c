package sequencer

import (
	"sync"
	"time"

	"github.com/coverpath/coverpath/pkg/models"
)

// ContextStore is the registry of live execution contexts. It is
// injected into the sequencer rather than held as package state so
// ownership stays explicit. Each entry is mutated only by its own
// sequencer loop; the store's own operations are safe under concurrent
// use from many executions, the broadcaster's bookkeeping, and the
// sweeper.
type ContextStore struct {
	mu       sync.RWMutex
	contexts map[string]*models.ExecutionContext
}

func NewContextStore() *ContextStore {
	return &ContextStore{
		contexts: make(map[string]*models.ExecutionContext),
	}
}

func (s *ContextStore) Put(execCtx *models.ExecutionContext) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contexts[execCtx.ExecutionID] = execCtx
}

// Get returns the live context. Only the owning sequencer loop may
// mutate the returned value.
func (s *ContextStore) Get(executionID string) (*models.ExecutionContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	execCtx, ok := s.contexts[executionID]

	return execCtx, ok
}

// Snapshot returns a deep copy for polling consumers, or nil when the
// execution is not live.
func (s *ContextStore) Snapshot(executionID string) *models.ExecutionContext {
	s.mu.RLock()
	defer s.mu.RUnlock()

	execCtx, ok := s.contexts[executionID]
	if !ok {
		return nil
	}

	return execCtx.Clone()
}

// Advance records one completed step under the store lock: the result
// is inserted and the step index incremented together, so observers
// never see the index and the result map out of sync.
func (s *ContextStore) Advance(executionID, stepKey string, result models.StepResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	execCtx, ok := s.contexts[executionID]
	if !ok {
		return false
	}

	execCtx.AccumulatedResults[stepKey] = result
	execCtx.CurrentStepIndex++
	execCtx.UpdatedAt = time.Now().UTC()

	return true
}

// Delete removes the execution from the registry. Removal prevents
// scheduling of subsequent steps but does not abort step work already
// in flight.
func (s *ContextStore) Delete(executionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.contexts[executionID]
	delete(s.contexts, executionID)

	return ok
}

func (s *ContextStore) ActiveIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.contexts))
	for id := range s.contexts {
		ids = append(ids, id)
	}

	return ids
}

func (s *ContextStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.contexts)
}
