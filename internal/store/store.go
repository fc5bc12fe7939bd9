// Package store keeps the in-memory state of submitted batches.
package store

import (
	"sync"

	"github.com/fairyhunter13/price-batch-service/internal/model"
)

// RunStore tracks BatchRuns by id. Status only moves forward:
// pending, running, then completed or failed.
type RunStore struct {
	mu    sync.RWMutex
	m     map[string]model.BatchRun
	order []string
}

// New creates an empty RunStore.
func New() *RunStore {
	return &RunStore{m: make(map[string]model.BatchRun)}
}

// Create records a new run. An existing id is left untouched.
func (s *RunStore) Create(run model.BatchRun) bool {
	if run.ID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[run.ID]; ok {
		return false
	}
	s.m[run.ID] = run
	s.order = append(s.order, run.ID)
	return true
}

// Get returns the run with the given id.
func (s *RunStore) Get(id string) (model.BatchRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.m[id]
	return run, ok
}

// Update applies fn to a copy of the run and stores it unless the change
// would move the status backwards or out of a terminal state.
func (s *RunStore) Update(id string, fn func(*model.BatchRun)) (model.BatchRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.m[id]
	if !ok {
		return model.BatchRun{}, false
	}
	next := cur
	fn(&next)
	next.ID = cur.ID
	if next.Status != cur.Status {
		if next.Status.Rank() < cur.Status.Rank() || cur.Status.Terminal() {
			return cur, false
		}
	}
	s.m[id] = next
	return next, true
}

// List returns runs in submission order.
func (s *RunStore) List() []model.BatchRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.BatchRun, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.m[id])
	}
	return out
}

// Delete forgets a run.
func (s *RunStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[id]; !ok {
		return
	}
	delete(s.m, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of tracked runs.
func (s *RunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
