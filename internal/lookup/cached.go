package lookup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/fairyhunter13/price-batch-service/internal/model"
)

// Store is the subset of cache.Cache used by Cached.
type Store interface {
	Get(key string) (model.PriceRecord, bool)
	Set(key string, rec model.PriceRecord)
}

// Cached serves repeat lookups from a Store. Only records with at least one
// present field are stored, so misses are retried on the next batch.
type Cached struct {
	Next  Looker
	Store Store
}

// Lookup implements Looker.
func (c *Cached) Lookup(ctx context.Context, item, instructions, modelID string) model.PriceRecord {
	key := Key(item, instructions, modelID)
	if rec, ok := c.Store.Get(key); ok {
		cacheHit.Add(1)
		return rec
	}
	rec := c.Next.Lookup(ctx, item, instructions, modelID)
	if !rec.Empty() {
		c.Store.Set(key, rec)
	}
	return rec
}

// Key derives the cache key for one lookup.
func Key(item, instructions, modelID string) string {
	h := sha256.New()
	h.Write([]byte(modelID))
	h.Write([]byte{0})
	h.Write([]byte(instructions))
	h.Write([]byte{0})
	h.Write([]byte(item))
	return hex.EncodeToString(h.Sum(nil))
}
