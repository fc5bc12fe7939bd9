package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestBusFanOut(t *testing.T) {
	b := NewBus("b1", 16, 0)
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	for i := 0; i < 5; i++ {
		b.Publish(fmt.Sprintf("line %d", i))
	}
	b.Close()
	for _, s := range []*Subscription{s1, s2} {
		var got []string
		for ev := range s.C() {
			got = append(got, ev.Message)
		}
		if len(got) != 5 {
			t.Fatalf("expected every subscriber to get 5 events, got %v", got)
		}
		for i, m := range got {
			if m != fmt.Sprintf("line %d", i) {
				t.Fatalf("out of order: %v", got)
			}
		}
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	b := NewBus("b1", 1, 0)
	s := b.Subscribe()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish("x")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}
	if s.Dropped() != 999 {
		t.Fatalf("expected 999 dropped, got %d", s.Dropped())
	}
}

func TestBusPublishWithoutSubscribers(t *testing.T) {
	b := NewBus("b1", 4, 0)
	ev := b.Publish("nobody listening")
	if ev.Seq != 1 || ev.BatchID != "b1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	s := b.Subscribe()
	if _, err := s.Next(context.Background(), 20*time.Millisecond); !errors.Is(err, ErrIdle) {
		t.Fatalf("expected no replay without backlog, got %v", err)
	}
}

func TestBusBacklogReplay(t *testing.T) {
	b := NewBus("b1", 4, 2)
	b.Publish("a")
	b.Publish("b")
	b.Publish("c")
	s := b.Subscribe()
	b.Publish("d")
	b.Close()
	var got []string
	for ev := range s.C() {
		got = append(got, ev.Message)
	}
	want := []string{"b", "c", "d"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSubscribeAfterClose(t *testing.T) {
	b := NewBus("b1", 4, 8)
	b.Publish("a")
	b.Close()
	b.Publish("ignored")
	s := b.Subscribe()
	ev, err := s.Next(context.Background(), time.Second)
	if err != nil || ev.Message != "a" {
		t.Fatalf("expected backlog replay, got %v %v", ev, err)
	}
	if _, err := s.Next(context.Background(), time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSubscriptionNextIdleAndCancel(t *testing.T) {
	b := NewBus("b1", 4, 0)
	s := b.Subscribe()
	if _, err := s.Next(context.Background(), 10*time.Millisecond); !errors.Is(err, ErrIdle) {
		t.Fatalf("expected ErrIdle, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Next(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSubscriptionClose(t *testing.T) {
	b := NewBus("b1", 4, 0)
	s := b.Subscribe()
	s.Close()
	s.Close()
	if b.Subscribers() != 0 {
		t.Fatalf("expected detached subscriber")
	}
	b.Publish("after detach")
	if _, err := s.Next(context.Background(), time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	b.Close()
}

func TestBusConcurrentSubscribers(t *testing.T) {
	b := NewBus("b1", 128, 0)
	const subs = 8
	var ready, wg sync.WaitGroup
	counts := make([]int, subs)
	for i := 0; i < subs; i++ {
		s := b.Subscribe()
		ready.Add(1)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ready.Done()
			var last uint64
			for ev := range s.C() {
				if ev.Seq <= last {
					t.Errorf("subscriber %d saw seq %d after %d", i, ev.Seq, last)
				}
				last = ev.Seq
				counts[i]++
			}
		}(i)
	}
	ready.Wait()
	for i := 0; i < 100; i++ {
		b.Publish("tick")
	}
	b.Close()
	wg.Wait()
	for i, n := range counts {
		if n != 100 {
			t.Fatalf("subscriber %d got %d events", i, n)
		}
	}
}

func TestHub(t *testing.T) {
	h := NewHub(4, 4)
	b1 := h.Open("a")
	h.Open("b")
	if got, _ := h.Latest(); got.BatchID() != "b" {
		t.Fatalf("expected latest b")
	}
	if again := h.Open("a"); again != b1 {
		t.Fatalf("expected same bus for same id")
	}
	h.Remove("a")
	if !b1.Closed() {
		t.Fatalf("expected removed bus closed")
	}
	if _, ok := h.Get("a"); ok {
		t.Fatalf("expected a removed")
	}
	if h.Len() != 1 {
		t.Fatalf("expected 1 bus, got %d", h.Len())
	}
}
