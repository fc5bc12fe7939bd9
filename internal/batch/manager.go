package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/price-batch-service/internal/config"
	"github.com/fairyhunter13/price-batch-service/internal/handoff"
	"github.com/fairyhunter13/price-batch-service/internal/model"
	"github.com/fairyhunter13/price-batch-service/internal/obs"
	"github.com/fairyhunter13/price-batch-service/internal/progress"
	"github.com/fairyhunter13/price-batch-service/internal/queue"
	"github.com/fairyhunter13/price-batch-service/internal/store"
)

// ErrShuttingDown is returned by Submit once intake is closed.
var ErrShuttingDown = errors.New("service is shutting down")

// Submission is what a caller hands to Manager.Submit.
type Submission struct {
	Source       Source
	Instructions string
	Model        string
	Filename     string
}

// Job is one queued batch.
type Job struct {
	ID string
	Submission
}

// Manager queues submitted batches and runs them on background runners.
// Batches are processed in submission order, each with its own progress
// bus and result slot.
type Manager struct {
	cfg     config.Config
	q       *queue.Queue[*Job]
	runs    *store.RunStore
	results *handoff.Registry
	hub     *progress.Hub
	worker  *Worker
	seq     queue.Sequencer
	now     func() time.Time
	ctx     context.Context
	cancel  context.CancelFunc

	mu            sync.Mutex
	sweepHooks    []func()
	runnerCancels []context.CancelFunc
	batchCancels  map[string]context.CancelFunc
	cancelled     map[string]bool
}

// NewManager constructs a Manager.
func NewManager(cfg config.Config, q *queue.Queue[*Job], runs *store.RunStore, results *handoff.Registry, hub *progress.Hub, w *Worker) *Manager {
	return &Manager{
		cfg:          cfg,
		q:            q,
		runs:         runs,
		results:      results,
		hub:          hub,
		worker:       w,
		now:          time.Now,
		batchCancels: make(map[string]context.CancelFunc),
		cancelled:    make(map[string]bool),
	}
}

// NewJobQueue creates the queue type a Manager consumes.
func NewJobQueue(outBuffer int) *queue.Queue[*Job] {
	return queue.New[*Job](outBuffer)
}

// New wires a Manager with fresh in-memory state from cfg.
func New(cfg config.Config, w *Worker) *Manager {
	return NewManager(cfg,
		NewJobQueue(cfg.QueueOutBuffer),
		store.New(),
		handoff.NewRegistry(cfg.ResultTTL),
		progress.NewHub(cfg.BusBuffer, cfg.BusBacklog),
		w,
	)
}

// Start begins processing in the background.
func (m *Manager) Start(parent context.Context) {
	m.ctx, m.cancel = context.WithCancel(parent)
	m.q.Start(m.ctx, m.cfg.QueueHighWatermark)
	n := m.cfg.BatchRunners
	if n < 1 {
		n = 1
	}
	m.addRunners(n)
	if m.cfg.SweepInterval > 0 {
		go m.sweeper()
	}
}

// Stop cancels background routines. A running batch stops at its next item.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Lock()
	for _, c := range m.runnerCancels {
		c()
	}
	m.runnerCancels = nil
	m.mu.Unlock()
}

// addRunners spawns n runners.
func (m *Manager) addRunners(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		rctx, cancel := context.WithCancel(m.ctx)
		m.runnerCancels = append(m.runnerCancels, cancel)
		go m.runner(rctx)
	}
	obs.Logger.Info("batch runners started", "runner_count", len(m.runnerCancels))
}

// runner drains jobs from the queue one at a time.
func (m *Manager) runner(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-m.q.Out():
			m.process(ctx, j)
			m.q.MarkProcessed()
		}
	}
}

// Submit registers a batch and queues it. The source is released here if
// the batch cannot be queued.
func (m *Manager) Submit(sub Submission) (model.BatchRun, error) {
	if m.q.IsShuttingDown() {
		m.release("", sub.Source)
		return model.BatchRun{}, ErrShuttingDown
	}
	id := uuid.NewString()
	run := model.BatchRun{
		ID:        id,
		Sequence:  m.seq.Next(),
		Status:    model.StatusPending,
		Filename:  sub.Filename,
		Model:     sub.Model,
		CreatedAt: m.now().UTC(),
	}
	m.runs.Create(run)
	bus := m.hub.Open(id)
	bus.Publish(fmt.Sprintf("batch queued: %s", id))
	if !m.q.Enqueue(&Job{ID: id, Submission: sub}) {
		m.release(id, sub.Source)
		m.fail(id, bus, ErrShuttingDown)
		bus.Close()
		return model.BatchRun{}, ErrShuttingDown
	}
	obs.Logger.Info("batch_submitted", "batch_id", id, "sequence", run.Sequence, "model", sub.Model, "backlog_size", m.q.BacklogSize())
	return run, nil
}

// Cancel stops a pending or running batch. It reports false for unknown or
// finished batches.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	// process clears its entries under mu after the final status is set, so
	// a run seen here as non-terminal is still pending or running.
	run, ok := m.runs.Get(id)
	if !ok || run.Status.Terminal() {
		return false
	}
	if c, ok := m.batchCancels[id]; ok {
		c()
		return true
	}
	m.cancelled[id] = true
	return true
}

func (m *Manager) process(ctx context.Context, j *Job) {
	bus, ok := m.hub.Get(j.ID)
	if !ok {
		bus = m.hub.Open(j.ID)
	}
	defer bus.Close()
	defer m.release(j.ID, j.Source)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.mu.Lock()
	skip := m.cancelled[j.ID]
	delete(m.cancelled, j.ID)
	if !skip {
		m.batchCancels[j.ID] = cancel
	}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.batchCancels, j.ID)
		delete(m.cancelled, j.ID)
		m.mu.Unlock()
	}()
	if skip {
		m.fail(j.ID, bus, ErrCancelled)
		return
	}

	started := m.now().UTC()
	m.runs.Update(j.ID, func(r *model.BatchRun) {
		r.Status = model.StatusRunning
		r.StartedAt = &started
	})

	items, err := j.Source.Items()
	if err != nil {
		m.fail(j.ID, bus, fmt.Errorf("%w: %w", ErrSourceUnreadable, err))
		return
	}
	m.runs.Update(j.ID, func(r *model.BatchRun) { r.Total = len(items) })
	bus.Publish(fmt.Sprintf("batch started: %d items", len(items)))
	obs.Logger.Info("batch_started", "batch_id", j.ID, "items", len(items))

	req := Request{
		BatchID:      j.ID,
		Filename:     j.Filename,
		Instructions: j.Instructions,
		Model:        j.Model,
		Items:        items,
		OnItem: func(_ int, rec model.PriceRecord) {
			m.runs.Update(j.ID, func(r *model.BatchRun) {
				r.Done++
				if rec.Empty() {
					r.Failed++
				}
			})
		},
	}
	art, err := m.worker.Run(ctx, req, bus)
	if err != nil {
		m.fail(j.ID, bus, err)
		return
	}

	if m.results.Deposit(j.ID, art) {
		obs.Logger.Warn("batch_result_overwritten", "batch_id", j.ID)
	}
	finished := m.now().UTC()
	run, _ := m.runs.Update(j.ID, func(r *model.BatchRun) {
		r.Status = model.StatusCompleted
		r.FinishedAt = &finished
	})
	bus.Publish(fmt.Sprintf("batch complete: %d items, %d without price data", run.Total, run.Failed))
	obs.Logger.Info("batch_completed", "batch_id", j.ID, "items", run.Total, "failed", run.Failed, "duration_ms", finished.Sub(started).Milliseconds())
}

func (m *Manager) fail(id string, bus *progress.Bus, err error) {
	finished := m.now().UTC()
	m.runs.Update(id, func(r *model.BatchRun) {
		r.Status = model.StatusFailed
		r.Error = err.Error()
		r.FinishedAt = &finished
	})
	bus.Publish("batch failed: " + err.Error())
	if errors.Is(err, ErrCancelled) {
		obs.Logger.Warn("batch_cancelled", "batch_id", id, "error", err)
		return
	}
	obs.Logger.Error("batch_failed", "batch_id", id, "error", err)
}

func (m *Manager) release(id string, src Source) {
	if src == nil {
		return
	}
	if err := src.Release(); err != nil {
		obs.Logger.Warn("batch_source_release_error", "batch_id", id, "error", err)
	}
}

// sweeper expires results and forgets finished batches after ResultTTL.
func (m *Manager) sweeper() {
	t := time.NewTicker(m.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}

// OnSweep registers fn to run on every Sweep.
func (m *Manager) OnSweep(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepHooks = append(m.sweepHooks, fn)
}

// Sweep drops expired results, buses and finished runs.
func (m *Manager) Sweep() {
	m.mu.Lock()
	hooks := append([]func(){}, m.sweepHooks...)
	m.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	for _, id := range m.results.Sweep() {
		obs.Logger.Info("batch_result_expired", "batch_id", id)
	}
	if m.cfg.ResultTTL <= 0 {
		return
	}
	cutoff := m.now().Add(-m.cfg.ResultTTL)
	for _, run := range m.runs.List() {
		if run.Status.Terminal() && run.FinishedAt != nil && run.FinishedAt.Before(cutoff) {
			m.runs.Delete(run.ID)
			m.hub.Remove(run.ID)
		}
	}
}

// Run returns the state of one batch.
func (m *Manager) Run(id string) (model.BatchRun, bool) { return m.runs.Get(id) }

// Runs returns every tracked batch in submission order.
func (m *Manager) Runs() []model.BatchRun { return m.runs.List() }

// Bus returns the progress bus of a batch.
func (m *Manager) Bus(id string) (*progress.Bus, bool) { return m.hub.Get(id) }

// LatestID returns the id of the most recent submission.
func (m *Manager) LatestID() (string, bool) {
	b, ok := m.hub.Latest()
	if !ok {
		return "", false
	}
	return b.BatchID(), true
}

// TakeResult hands out the artifact of a batch once.
func (m *Manager) TakeResult(id string) (*model.Artifact, bool) {
	a, ok := m.results.Take(id)
	if ok {
		m.runs.Update(id, func(r *model.BatchRun) { r.Retrieved = true })
	}
	return a, ok
}

// BacklogSize returns queued batches not yet picked up.
func (m *Manager) BacklogSize() int { return m.q.BacklogSize() }

// QueueDepth returns backlog plus buffered output items.
func (m *Manager) QueueDepth() int { return m.q.QueueDepth() }

// RunnerCount returns the number of runners.
func (m *Manager) RunnerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runnerCancels)
}

// ActiveCount returns the number of batches currently running.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batchCancels)
}

// IsShuttingDown reports whether new submissions are rejected.
func (m *Manager) IsShuttingDown() bool { return m.q.IsShuttingDown() }

// CloseIntake disallows future submissions.
func (m *Manager) CloseIntake() { m.q.CloseIntake() }

// QueueMetrics exposes the underlying queue metrics.
func (m *Manager) QueueMetrics() (enq, proc uint64, backlog, depth int) {
	return m.q.Metrics()
}

// DrainUntil blocks until every queued batch has finished or ctx is done.
func (m *Manager) DrainUntil(ctx context.Context) bool {
	for {
		if m.q.Drained() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
