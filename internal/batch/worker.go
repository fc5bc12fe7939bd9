// Package batch runs price lookups over a list of items and manages the
// lifecycle of submitted batches.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/price-batch-service/internal/lookup"
	"github.com/fairyhunter13/price-batch-service/internal/model"
	"github.com/fairyhunter13/price-batch-service/internal/obs"
	"github.com/fairyhunter13/price-batch-service/internal/sheet"
)

// Batch-fatal errors. Per-item misses never surface as errors.
var (
	ErrSourceUnreadable = errors.New("input source cannot be read")
	ErrCancelled        = errors.New("batch cancelled")
	ErrEncode           = errors.New("artifact cannot be encoded")
)

// Source yields the items of one batch and owns any staged input.
type Source interface {
	Items() ([]model.WorkItem, error)
	Release() error
}

// Publisher receives progress lines. *progress.Bus implements it.
type Publisher interface {
	Publish(msg string) model.ProgressEvent
}

type discard struct{}

func (discard) Publish(string) model.ProgressEvent { return model.ProgressEvent{} }

// Request describes one run of the worker.
type Request struct {
	BatchID      string
	Filename     string
	Instructions string
	Model        string
	Items        []model.WorkItem
	// OnItem, if set, is called after each item with its input index.
	OnItem func(index int, rec model.PriceRecord)
}

// Worker looks up every item of a request and builds the artifact.
type Worker struct {
	Looker lookup.Looker
	// Concurrency above 1 enables a bounded pool; results keep input order.
	Concurrency int
	// Encode renders the artifact table; nil means sheet.Encode.
	Encode func(rows [][]any) ([]byte, error)
}

// Run processes req.Items and returns the finished artifact. A failing
// item yields an all-absent record; only cancellation or an encoding
// failure aborts the run, in which case no artifact is returned.
func (w *Worker) Run(ctx context.Context, req Request, pub Publisher) (*model.Artifact, error) {
	if pub == nil {
		pub = discard{}
	}
	records := make([]model.PriceRecord, len(req.Items))
	var err error
	if w.Concurrency > 1 && len(req.Items) > 1 {
		err = w.runPool(ctx, req, pub, records)
	} else {
		err = w.runSequential(ctx, req, pub, records)
	}
	if err != nil {
		return nil, err
	}

	a := &model.Artifact{
		BatchID:   req.BatchID,
		Filename:  req.Filename,
		Records:   records,
		CreatedAt: time.Now(),
	}
	encode := w.Encode
	if encode == nil {
		encode = sheet.Encode
	}
	data, err := encode(a.Table())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	a.Data = data
	return a, nil
}

func (w *Worker) runSequential(ctx context.Context, req Request, pub Publisher, records []model.PriceRecord) error {
	for i, item := range req.Items {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		records[i] = w.process(ctx, req, pub, i, item)
	}
	return nil
}

// runPool fans items out to at most Concurrency goroutines. Each goroutine
// writes only its own index, so no merge step is needed.
func (w *Worker) runPool(ctx context.Context, req Request, pub Publisher, records []model.PriceRecord) error {
	var g errgroup.Group
	g.SetLimit(w.Concurrency)
	for i, item := range req.Items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			records[i] = w.process(ctx, req, pub, i, item)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}

func (w *Worker) process(ctx context.Context, req Request, pub Publisher, i int, item model.WorkItem) model.PriceRecord {
	n := len(req.Items)
	pub.Publish(fmt.Sprintf("starting item %d of %d: %s", i+1, n, item))
	rec := w.lookup(ctx, req, item)
	rec.ProductName = string(item)
	if rec.Empty() {
		pub.Publish(fmt.Sprintf("finished item %d of %d: %s (no price data)", i+1, n, item))
	} else {
		pub.Publish(fmt.Sprintf("finished item %d of %d: %s", i+1, n, item))
	}
	obs.Logger.Debug("batch_item_done", "batch_id", req.BatchID, "index", i, "item", string(item), "found", !rec.Empty())
	if req.OnItem != nil {
		req.OnItem(i, rec)
	}
	return rec
}

// lookup contains panics from the looker at the item boundary.
func (w *Worker) lookup(ctx context.Context, req Request, item model.WorkItem) (rec model.PriceRecord) {
	defer func() {
		if r := recover(); r != nil {
			obs.Logger.Error("batch_item_panic", "batch_id", req.BatchID, "item", string(item), "panic", fmt.Sprint(r))
			rec = model.PriceRecord{}
		}
	}()
	return w.Looker.Lookup(ctx, string(item), req.Instructions, req.Model)
}
