package handoff

import (
	"sync"
	"time"

	"github.com/fairyhunter13/price-batch-service/internal/model"
)

type entry struct {
	slot      *Slot
	expiresAt time.Time
}

// Registry keeps one Slot per batch so concurrent batches never clobber
// each other. Entries expire ttl after their deposit.
type Registry struct {
	ttl time.Duration
	now func() time.Time

	mu sync.RWMutex
	m  map[string]entry
}

// NewRegistry creates a Registry. A zero ttl never expires entries.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{ttl: ttl, now: time.Now, m: make(map[string]entry)}
}

// Deposit stores a under batchID, returning true if an untaken artifact was
// discarded.
func (r *Registry) Deposit(batchID string, a *model.Artifact) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.m[batchID]
	if !ok {
		e.slot = &Slot{}
	}
	if r.ttl > 0 {
		e.expiresAt = r.now().Add(r.ttl)
	}
	r.m[batchID] = e
	return e.slot.Deposit(a)
}

// Take returns and clears the artifact for batchID.
func (r *Registry) Take(batchID string) (*model.Artifact, bool) {
	r.mu.RLock()
	e, ok := r.m[batchID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.slot.Take()
}

// Ready reports whether an artifact for batchID is waiting.
func (r *Registry) Ready(batchID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.m[batchID]
	return ok && e.slot.Ready()
}

// Sweep drops expired entries and returns their batch ids.
func (r *Registry) Sweep() []string {
	if r.ttl <= 0 {
		return nil
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []string
	for id, e := range r.m {
		if now.After(e.expiresAt) {
			delete(r.m, id)
			expired = append(expired, id)
		}
	}
	return expired
}

// Len returns the number of tracked batches.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
