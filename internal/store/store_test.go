package store

import (
	"sync"
	"testing"

	"github.com/fairyhunter13/price-batch-service/internal/model"
)

func TestStoreLifecycle(t *testing.T) {
	s := New()
	if !s.Create(model.BatchRun{ID: "b1", Status: model.StatusPending, Total: 2}) {
		t.Fatalf("create failed")
	}
	if s.Create(model.BatchRun{ID: "b1"}) {
		t.Fatalf("duplicate create must be rejected")
	}
	if _, ok := s.Update("b1", func(r *model.BatchRun) { r.Status = model.StatusRunning }); !ok {
		t.Fatalf("pending -> running rejected")
	}
	got, ok := s.Update("b1", func(r *model.BatchRun) { r.Status = model.StatusCompleted; r.Done = 2 })
	if !ok || got.Done != 2 {
		t.Fatalf("running -> completed rejected: %+v", got)
	}
}

func TestStoreStatusNeverRegresses(t *testing.T) {
	s := New()
	s.Create(model.BatchRun{ID: "b2", Status: model.StatusRunning})
	if _, ok := s.Update("b2", func(r *model.BatchRun) { r.Status = model.StatusPending }); ok {
		t.Fatalf("running -> pending must be rejected")
	}
	s.Update("b2", func(r *model.BatchRun) { r.Status = model.StatusFailed })
	if _, ok := s.Update("b2", func(r *model.BatchRun) { r.Status = model.StatusCompleted }); ok {
		t.Fatalf("failed -> completed must be rejected")
	}
	if _, ok := s.Update("b2", func(r *model.BatchRun) { r.Retrieved = true }); !ok {
		t.Fatalf("non-status updates on terminal runs must be allowed")
	}
	got, _ := s.Get("b2")
	if got.Status != model.StatusFailed || !got.Retrieved {
		t.Fatalf("unexpected: %+v", got)
	}
}

func TestStoreListOrderAndDelete(t *testing.T) {
	s := New()
	for _, id := range []string{"a", "b", "c"} {
		s.Create(model.BatchRun{ID: id})
	}
	s.Delete("b")
	list := s.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "c" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if _, ok := s.Update("b", func(*model.BatchRun) {}); ok {
		t.Fatalf("update of deleted run must fail")
	}
}

func TestStoreConcurrentProgress(t *testing.T) {
	s := New()
	s.Create(model.BatchRun{ID: "p", Status: model.StatusRunning})
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update("p", func(r *model.BatchRun) { r.Done++ })
		}()
	}
	wg.Wait()
	got, _ := s.Get("p")
	if got.Done != 100 {
		t.Fatalf("expected 100, got %d", got.Done)
	}
}
