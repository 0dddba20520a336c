package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/pricelens/backend/internal/domain"
)

// Cache is a domain.CacheRepository that survives process restarts
type Cache struct {
	*DB
}

// NewCache creates a response cache on db
func NewCache(db *DB) *Cache {
	return &Cache{DB: db}
}

// Get returns the cached value or domain.ErrCacheMiss
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM response_cache WHERE key = ? AND expires_at > ?`,
		key, c.now().UnixNano(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cache %s", key)
	}
	return value, nil
}

// Set stores value for ttl. A non-positive ttl is not stored.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO response_cache (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, c.now().Add(ttl).UnixNano(),
	)
	return eris.Wrapf(err, "sqlite: set cache %s", key)
}

// Delete removes a key
func (c *Cache) Delete(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM response_cache WHERE key = ?`, key)
	return eris.Wrapf(err, "sqlite: delete cache %s", key)
}

// PurgeExpired drops expired entries and returns how many were removed
func (c *Cache) PurgeExpired(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at <= ?`, c.now().UnixNano())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge cache")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge cache rows affected")
	}
	return int(n), nil
}
