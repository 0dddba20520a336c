package domain

import (
	"context"
	"time"
)

// RunEntry is a stored run without its records
type RunEntry struct {
	RunID     string     `json:"runId"`
	StartedAt time.Time  `json:"startedAt"`
	Summary   RunSummary `json:"summary"`
}

// PricePoint is one validated store price of a product in a past run
type PricePoint struct {
	RunID     string    `json:"runId"`
	StartedAt time.Time `json:"startedAt"`
	StoreID   string    `json:"storeId"`
	Price     float64   `json:"price"`
}

// RunHistory persists completed runs and answers price history queries.
// Listings are newest first.
type RunHistory interface {
	SaveRun(ctx context.Context, result *RunResult) error
	ListRuns(ctx context.Context, limit int) ([]RunEntry, error)
	GetRun(ctx context.Context, runID string) (*RunResult, error)
	ProductHistory(ctx context.Context, productID int, limit int) ([]PricePoint, error)
}
