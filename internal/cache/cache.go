// Package cache keeps recent price lookups in a SQLite table with a TTL.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fairyhunter13/price-batch-service/internal/model"
	"github.com/fairyhunter13/price-batch-service/internal/obs"
)

// Cache stores PriceRecords keyed by an opaque lookup key.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// New opens (or creates) the cache database at dbPath.
func New(dbPath string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS lookups (
			key TEXT NOT NULL PRIMARY KEY,
			data TEXT NOT NULL,
			stored_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache table: %w", err)
	}

	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

// Get returns a fresh record for key.
func (c *Cache) Get(key string) (model.PriceRecord, bool) {
	var data string
	var storedAt int64

	err := c.db.QueryRow(
		`SELECT data, stored_at FROM lookups WHERE key = ?`, key,
	).Scan(&data, &storedAt)
	if err != nil {
		return model.PriceRecord{}, false
	}

	if c.ttl > 0 && c.now().Sub(time.Unix(0, storedAt)) > c.ttl {
		return model.PriceRecord{}, false
	}

	var rec model.PriceRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		obs.Logger.Warn("cache_decode_error", "key", key, "error", err)
		return model.PriceRecord{}, false
	}
	return rec, true
}

// Set stores rec under key, replacing any previous value.
func (c *Cache) Set(key string, rec model.PriceRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		obs.Logger.Warn("cache_encode_error", "key", key, "error", err)
		return
	}

	_, err = c.db.Exec(
		`INSERT INTO lookups (key, data, stored_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(key)
		 DO UPDATE SET data = excluded.data, stored_at = excluded.stored_at`,
		key, string(data), c.now().UnixNano(),
	)
	if err != nil {
		obs.Logger.Warn("cache_store_error", "key", key, "error", err)
	}
}

// Purge deletes expired rows and returns how many were removed.
func (c *Cache) Purge() (int64, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	cutoff := c.now().Add(-c.ttl).UnixNano()
	res, err := c.db.Exec(`DELETE FROM lookups WHERE stored_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close releases the database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}
