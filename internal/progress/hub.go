package progress

import "sync"

// Hub keeps one Bus per batch.
type Hub struct {
	bufSize int
	backlog int

	mu     sync.RWMutex
	buses  map[string]*Bus
	latest string
}

// NewHub creates a Hub whose buses use the given buffer and backlog sizes.
func NewHub(bufSize, backlog int) *Hub {
	return &Hub{bufSize: bufSize, backlog: backlog, buses: make(map[string]*Bus)}
}

// Open returns the bus for batchID, creating it if needed, and marks it as
// the latest batch.
func (h *Hub) Open(batchID string) *Bus {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.buses[batchID]
	if !ok {
		b = NewBus(batchID, h.bufSize, h.backlog)
		h.buses[batchID] = b
	}
	h.latest = batchID
	return b
}

// Get returns the bus for batchID.
func (h *Hub) Get(batchID string) (*Bus, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.buses[batchID]
	return b, ok
}

// Latest returns the most recently opened bus.
func (h *Hub) Latest() (*Bus, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.buses[h.latest]
	return b, ok
}

// Remove closes and forgets the bus for batchID.
func (h *Hub) Remove(batchID string) {
	h.mu.Lock()
	b, ok := h.buses[batchID]
	delete(h.buses, batchID)
	h.mu.Unlock()
	if ok {
		b.Close()
	}
}

// Len returns the number of tracked buses.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.buses)
}
