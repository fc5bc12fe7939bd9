// Package progress broadcasts batch progress lines to live subscribers.
package progress

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/price-batch-service/internal/model"
)

// Subscription outcomes other than an event.
var (
	ErrIdle   = errors.New("no progress within idle window")
	ErrClosed = errors.New("progress stream closed")
)

// Bus fans out the events of one batch to every subscriber.
//
// Publish never waits: each subscriber has its own bounded buffer and an
// event that does not fit is dropped for that subscriber only. The last
// backlog events are replayed to subscribers that attach late.
type Bus struct {
	batchID string
	bufSize int
	now     func() time.Time

	mu      sync.Mutex
	seq     uint64
	backlog []model.ProgressEvent
	limit   int
	subs    map[*Subscription]struct{}
	closed  bool
}

// NewBus creates a Bus. bufSize bounds each subscriber's queue and backlog
// bounds the replay history.
func NewBus(batchID string, bufSize, backlog int) *Bus {
	if bufSize <= 0 {
		bufSize = 64
	}
	if backlog < 0 {
		backlog = 0
	}
	return &Bus{
		batchID: batchID,
		bufSize: bufSize,
		now:     time.Now,
		limit:   backlog,
		subs:    make(map[*Subscription]struct{}),
	}
}

// BatchID returns the batch this bus belongs to.
func (b *Bus) BatchID() string { return b.batchID }

// Publish stamps msg and delivers it to every subscriber with room for it.
// Publishing to a closed bus is a no-op.
func (b *Bus) Publish(msg string) model.ProgressEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return model.ProgressEvent{}
	}
	b.seq++
	ev := model.ProgressEvent{BatchID: b.batchID, Seq: b.seq, Time: b.now(), Message: msg}
	if b.limit > 0 {
		if len(b.backlog) == b.limit {
			copy(b.backlog, b.backlog[1:])
			b.backlog = b.backlog[:b.limit-1]
		}
		b.backlog = append(b.backlog, ev)
	}
	for s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
		}
	}
	return ev
}

// Subscribe attaches a new subscriber. It first receives the retained
// backlog, then every event published after attachment.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &Subscription{bus: b, ch: make(chan model.ProgressEvent, b.bufSize+len(b.backlog))}
	for _, ev := range b.backlog {
		s.ch <- ev
	}
	if b.closed {
		close(s.ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Close ends every subscription once it has drained its buffer.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
	}
	clear(b.subs)
}

// Closed reports whether Close has been called.
func (b *Bus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Subscribers returns the number of attached subscribers.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) detach(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}

// Subscription is one reader of a Bus.
type Subscription struct {
	bus     *Bus
	ch      chan model.ProgressEvent
	dropped atomic.Uint64
}

// C exposes the event channel. It is closed when the bus or the
// subscription is closed.
func (s *Subscription) C() <-chan model.ProgressEvent { return s.ch }

// Next waits for the next event. It returns ErrIdle when nothing arrives
// within idle (idle <= 0 waits indefinitely), ErrClosed once the stream has
// ended, or the context error.
func (s *Subscription) Next(ctx context.Context, idle time.Duration) (model.ProgressEvent, error) {
	var timeout <-chan time.Time
	if idle > 0 {
		t := time.NewTimer(idle)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case ev, ok := <-s.ch:
		if !ok {
			return model.ProgressEvent{}, ErrClosed
		}
		return ev, nil
	case <-timeout:
		return model.ProgressEvent{}, ErrIdle
	case <-ctx.Done():
		return model.ProgressEvent{}, ctx.Err()
	}
}

// Dropped returns how many events did not fit this subscriber's buffer.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close detaches the subscription from its bus.
func (s *Subscription) Close() { s.bus.detach(s) }
