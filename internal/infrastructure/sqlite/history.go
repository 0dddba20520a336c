package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/pricelens/backend/internal/domain"
)

const defaultListLimit = 50

// History is a domain.RunHistory keeping every run result and its validated store prices
type History struct {
	*DB
}

// NewHistory creates a run history on db
func NewHistory(db *DB) *History {
	return &History{DB: db}
}

// SaveRun stores the run and one price row per validated store price
func (h *History) SaveRun(ctx context.Context, result *domain.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run result")
	}
	failed, err := json.Marshal(nonNil(result.Summary.FailedStores))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal failed stores")
	}
	startedAt := result.StartedAt
	if startedAt.IsZero() {
		startedAt = h.now()
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save run")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, products_with_prices, total_products, alert_count, failed_stores, result)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.RunID, startedAt.UnixMilli(),
		result.Summary.ProductsWithPrices, result.Summary.TotalProducts, result.Summary.AlertCount,
		string(failed), string(resultJSON),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert run %s", result.RunID)
	}

	for _, rec := range result.Records {
		for storeID, price := range rec.PerStorePrices {
			if price == nil {
				continue
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO store_prices (run_id, product_id, store_id, price) VALUES (?, ?, ?, ?)`,
				result.RunID, rec.ID, storeID, *price,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: insert price %d/%s", rec.ID, storeID)
			}
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save run")
}

// ListRuns returns up to limit runs, newest first. A non-positive limit uses 50.
func (h *History) ListRuns(ctx context.Context, limit int) ([]domain.RunEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, started_at, products_with_prices, total_products, alert_count, failed_stores
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var entries []domain.RunEntry
	for rows.Next() {
		var (
			e       domain.RunEntry
			started int64
			failed  string
		)
		if err := rows.Scan(&e.RunID, &started, &e.Summary.ProductsWithPrices, &e.Summary.TotalProducts, &e.Summary.AlertCount, &failed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if err := json.Unmarshal([]byte(failed), &e.Summary.FailedStores); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode failed stores of %s", e.RunID)
		}
		if len(e.Summary.FailedStores) == 0 {
			e.Summary.FailedStores = nil
		}
		e.StartedAt = time.UnixMilli(started).UTC()
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// GetRun returns the stored result of a run or domain.ErrRunNotFound
func (h *History) GetRun(ctx context.Context, runID string) (*domain.RunResult, error) {
	var raw string
	err := h.db.QueryRowContext(ctx, `SELECT result FROM runs WHERE id = ?`, runID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}

	var result domain.RunResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode run %s", runID)
	}
	return &result, nil
}

// ProductHistory returns the validated store prices of a product, newest run first
func (h *History) ProductHistory(ctx context.Context, productID int, limit int) ([]domain.PricePoint, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT p.run_id, r.started_at, p.store_id, p.price
		 FROM store_prices p JOIN runs r ON r.id = p.run_id
		 WHERE p.product_id = ?
		 ORDER BY r.started_at DESC, p.store_id
		 LIMIT ?`, productID, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: product history %d", productID)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var (
			p       domain.PricePoint
			started int64
		)
		if err := rows.Scan(&p.RunID, &started, &p.StoreID, &p.Price); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan price point")
		}
		p.StartedAt = time.UnixMilli(started).UTC()
		points = append(points, p)
	}
	return points, eris.Wrap(rows.Err(), "sqlite: product history iterate")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
