// Package sqlite persists adapter responses and run history in a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

const migration = `
CREATE TABLE IF NOT EXISTS response_cache (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id                   TEXT PRIMARY KEY,
	started_at           INTEGER NOT NULL,
	products_with_prices INTEGER NOT NULL,
	total_products       INTEGER NOT NULL,
	alert_count          INTEGER NOT NULL,
	failed_stores        TEXT NOT NULL DEFAULT '[]',
	result               TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS store_prices (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	product_id INTEGER NOT NULL,
	store_id   TEXT NOT NULL,
	price      REAL NOT NULL,
	PRIMARY KEY (run_id, product_id, store_id)
);

CREATE INDEX IF NOT EXISTS idx_response_cache_expires_at ON response_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_store_prices_product_id ON store_prices(product_id);
`

// DB is a migrated SQLite database shared by the cache and the run history
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the database at path, configures WAL mode and applies the schema.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, migration); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "sqlite: migrate")
	}
	return &DB{db: db, now: time.Now}, nil
}

// Close closes the underlying connection pool
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}
