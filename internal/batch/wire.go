package batch

import (
	"fmt"

	"github.com/fairyhunter13/price-batch-service/internal/cache"
	"github.com/fairyhunter13/price-batch-service/internal/config"
	"github.com/fairyhunter13/price-batch-service/internal/lookup"
	"github.com/fairyhunter13/price-batch-service/internal/obs"
)

// Resources holds what NewWorker opened on the worker's behalf.
type Resources struct {
	cache *cache.Cache
}

// Close releases the lookup cache, if any.
func (r *Resources) Close() error {
	if r == nil || r.cache == nil {
		return nil
	}
	return r.cache.Close()
}

// PurgeCache deletes expired lookups. Suitable as a Manager sweep hook.
func (r *Resources) PurgeCache() {
	if r == nil || r.cache == nil {
		return
	}
	n, err := r.cache.Purge()
	if err != nil {
		obs.Logger.Warn("cache_purge_error", "error", err)
		return
	}
	if n > 0 {
		obs.Logger.Info("cache_purged", "removed", n)
	}
}

// NewWorker builds a Worker from cfg. With CacheDBPath set, lookups go
// through the sqlite cache, which is purged of expired rows on open.
func NewWorker(cfg config.Config) (*Worker, *Resources, error) {
	var looker lookup.Looker = lookup.NewClient(lookup.Options{
		Endpoint:    cfg.PriceAPIURL,
		APIKey:      cfg.PriceAPIKey,
		Currency:    cfg.Currency,
		Temperature: cfg.Temperature,
		Timeout:     cfg.LookupTimeout,
		RPS:         cfg.LookupRPS,
	})
	res := &Resources{}
	if cfg.CacheDBPath != "" {
		c, err := cache.New(cfg.CacheDBPath, cfg.CacheTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("open lookup cache: %w", err)
		}
		res.cache = c
		res.PurgeCache()
		looker = &lookup.Cached{Next: looker, Store: c}
	}
	return &Worker{Looker: looker, Concurrency: cfg.ItemConcurrency}, res, nil
}
