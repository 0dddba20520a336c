package domain

import "time"

// Status classifies an aggregated record
type Status string

const (
	StatusOK        Status = "ok"
	StatusAttention Status = "attention"
	StatusNoData    Status = "no_data"
)

// PerStorePriceMap maps product id to store id to a validated price.
// Absent keys mean the product was not found or was rejected at that store.
type PerStorePriceMap map[int]map[string]float64

// Set records a validated price for a product at a store
func (m PerStorePriceMap) Set(productID int, storeID string, price float64) {
	stores, ok := m[productID]
	if !ok {
		stores = make(map[string]float64)
		m[productID] = stores
	}
	stores[storeID] = price
}

// Get returns the validated price of a product at a store, if any
func (m PerStorePriceMap) Get(productID int, storeID string) (float64, bool) {
	price, ok := m[productID][storeID]
	return price, ok
}

// StoreResolution is the terminal state of one store run
type StoreResolution struct {
	StoreID       string               `json:"storeId"`
	Matches       map[int]MatchResult  `json:"matches"`
	Confirmations []VisualReconcileNote `json:"confirmations,omitempty"`
	Err           string               `json:"error,omitempty"`
}

// VisualReconcileNote records what the visual stage concluded about an
// already-filled slot. It is audit data only and never changes a price.
type VisualReconcileNote struct {
	ProductID     int     `json:"productId"`
	ExistingPrice float64 `json:"existingPrice"`
	VisualPrice   float64 `json:"visualPrice"`
	Difference    float64 `json:"difference"`
	Confirmed     bool    `json:"confirmed"`
	Rationale     string  `json:"rationale,omitempty"`
}

// AggregatedRecord is the per-product output handed to downstream reporting.
// DeviationPercent is rounded to one decimal and Status is decided on that
// rounded value: 10.04% against a 10% threshold is still ok.
type AggregatedRecord struct {
	ID                int                 `json:"id"`
	Name              string              `json:"name"`
	UnitSpec          string              `json:"unitSpec"`
	ReferencePrice    float64             `json:"referencePrice"`
	ReferencePriceAlt float64             `json:"referencePriceAlt"`
	PerStorePrices    map[string]*float64 `json:"perStorePrices"`
	AveragePrice      *float64            `json:"averagePrice"`
	AveragePriceAlt   *float64            `json:"averagePriceAlt"`
	DeviationPercent  *float64            `json:"deviationPercent"`
	Status            Status              `json:"status"`
}

// RunSummary is the human-facing tally of a run
type RunSummary struct {
	ProductsWithPrices int      `json:"productsWithPrices"`
	TotalProducts      int      `json:"totalProducts"`
	AlertCount         int      `json:"alertCount"`
	FailedStores       []string `json:"failedStores,omitempty"`
}

// RunResult is the complete outcome of one tracking run
type RunResult struct {
	RunID       string             `json:"runId"`
	StartedAt   time.Time          `json:"startedAt"`
	Records     []AggregatedRecord `json:"records"`
	Alerts      []AggregatedRecord `json:"alerts"`
	Summary     RunSummary         `json:"summary"`
	Resolutions []StoreResolution  `json:"resolutions,omitempty"`
}
