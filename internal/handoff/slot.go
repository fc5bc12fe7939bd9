// Package handoff passes finished artifacts from batch workers to download requests.
package handoff

import (
	"sync/atomic"

	"github.com/fairyhunter13/price-batch-service/internal/model"
)

// Slot holds at most one artifact. Deposit overwrites and Take empties.
type Slot struct {
	p atomic.Pointer[model.Artifact]
}

// Deposit stores a, returning true if an untaken artifact was discarded.
func (s *Slot) Deposit(a *model.Artifact) bool {
	return s.p.Swap(a) != nil
}

// Take returns and clears the held artifact.
func (s *Slot) Take() (*model.Artifact, bool) {
	a := s.p.Swap(nil)
	return a, a != nil
}

// Ready reports whether an artifact is waiting.
func (s *Slot) Ready() bool { return s.p.Load() != nil }
