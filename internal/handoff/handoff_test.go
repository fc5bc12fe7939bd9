package handoff

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fairyhunter13/price-batch-service/internal/model"
)

func TestSlotTakeOnce(t *testing.T) {
	var s Slot
	if _, ok := s.Take(); ok {
		t.Fatalf("expected empty slot")
	}
	a := &model.Artifact{BatchID: "b1"}
	if s.Deposit(a) {
		t.Fatalf("nothing should have been discarded")
	}
	got, ok := s.Take()
	if !ok || got != a {
		t.Fatalf("expected deposited artifact")
	}
	if _, ok := s.Take(); ok {
		t.Fatalf("second take must be absent")
	}
}

func TestSlotDepositOverwrites(t *testing.T) {
	var s Slot
	s.Deposit(&model.Artifact{BatchID: "old"})
	if !s.Deposit(&model.Artifact{BatchID: "new"}) {
		t.Fatalf("expected previous artifact reported as discarded")
	}
	got, _ := s.Take()
	if got.BatchID != "new" {
		t.Fatalf("expected new artifact, got %s", got.BatchID)
	}
}

func TestSlotConcurrentTake(t *testing.T) {
	var s Slot
	s.Deposit(&model.Artifact{BatchID: "b"})
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.Take(); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one taker, got %d", wins.Load())
	}
}

func TestRegistryIsolation(t *testing.T) {
	r := NewRegistry(time.Minute)
	r.Deposit("a", &model.Artifact{BatchID: "a"})
	r.Deposit("b", &model.Artifact{BatchID: "b"})
	got, ok := r.Take("a")
	if !ok || got.BatchID != "a" {
		t.Fatalf("expected a")
	}
	if _, ok := r.Take("a"); ok {
		t.Fatalf("a already taken")
	}
	if !r.Ready("b") {
		t.Fatalf("b must still be ready")
	}
	if _, ok := r.Take("missing"); ok {
		t.Fatalf("unknown batch must be absent")
	}
}

func TestRegistrySweep(t *testing.T) {
	r := NewRegistry(time.Minute)
	now := time.Now()
	r.now = func() time.Time { return now }
	r.Deposit("a", &model.Artifact{})
	r.now = func() time.Time { return now.Add(30 * time.Second) }
	r.Deposit("b", &model.Artifact{})
	r.now = func() time.Time { return now.Add(61 * time.Second) }
	expired := r.Sweep()
	if len(expired) != 1 || expired[0] != "a" {
		t.Fatalf("expected a expired, got %v", expired)
	}
	if r.Len() != 1 {
		t.Fatalf("expected one entry left")
	}
}
