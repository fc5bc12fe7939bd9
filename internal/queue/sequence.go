package queue

import "sync/atomic"

// Sequencer hands out submission numbers, starting at 1.
type Sequencer struct{ n atomic.Uint64 }

// Next returns the next sequence number.
func (s *Sequencer) Next() uint64 { return s.n.Add(1) }

// Current returns the last number handed out.
func (s *Sequencer) Current() uint64 { return s.n.Load() }
