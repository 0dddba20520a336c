package usecase

import (
	"math"

	"github.com/pricelens/backend/internal/domain"
)

const defaultAlertThreshold = 10.0

// Aggregator reduces a PerStorePriceMap into one record per catalog product
type Aggregator struct {
	currency  *CurrencyDisambiguator
	threshold float64
}

// NewAggregator creates an aggregator. A non-positive threshold falls back to 10%.
func NewAggregator(currency *CurrencyDisambiguator, threshold float64) *Aggregator {
	if threshold <= 0 {
		threshold = defaultAlertThreshold
	}
	return &Aggregator{currency: currency, threshold: threshold}
}

// Threshold returns the alert threshold in percent
func (a *Aggregator) Threshold() float64 {
	return a.threshold
}

// Aggregate builds records in catalog order. Store prices are summed in the
// configured store order so the result is identical across runs. Deviation is
// computed from the unrounded average, then rounded to one decimal; attention
// means the rounded deviation exceeds the threshold.
func (a *Aggregator) Aggregate(catalog *domain.Catalog, prices domain.PerStorePriceMap) []domain.AggregatedRecord {
	stores := catalog.Stores()
	products := catalog.Products()
	records := make([]domain.AggregatedRecord, 0, len(products))

	for _, p := range products {
		record := domain.AggregatedRecord{
			ID:                p.ID,
			Name:              p.CanonicalName,
			UnitSpec:          p.UnitSpec,
			ReferencePrice:    p.ReferencePrice,
			ReferencePriceAlt: p.ReferencePriceAlt,
			PerStorePrices:    make(map[string]*float64, len(stores)),
			Status:            domain.StatusNoData,
		}

		sum, count := 0.0, 0
		for _, s := range stores {
			price, ok := prices.Get(p.ID, s.ID)
			if !ok {
				record.PerStorePrices[s.ID] = nil
				continue
			}
			v := price
			record.PerStorePrices[s.ID] = &v
			sum += price
			count++
		}

		if count > 0 {
			avg := sum / float64(count)
			dev := (avg - p.ReferencePrice) / p.ReferencePrice * 100

			rounded := roundTo(avg, 2)
			alt := roundTo(a.currency.ToAlt(avg), 2)
			devRounded := roundTo(dev, 1)

			record.AveragePrice = &rounded
			record.AveragePriceAlt = &alt
			record.DeviationPercent = &devRounded
			record.Status = domain.StatusOK
			if math.Abs(devRounded) > a.threshold {
				record.Status = domain.StatusAttention
			}
		}

		records = append(records, record)
	}

	return records
}

// Alerts returns the records whose status is attention
func Alerts(records []domain.AggregatedRecord) []domain.AggregatedRecord {
	var alerts []domain.AggregatedRecord
	for _, r := range records {
		if r.Status == domain.StatusAttention {
			alerts = append(alerts, r)
		}
	}
	return alerts
}

// Summarize tallies priced products and alerts
func Summarize(records []domain.AggregatedRecord, failedStores []string) domain.RunSummary {
	summary := domain.RunSummary{
		TotalProducts: len(records),
		FailedStores:  failedStores,
	}
	for _, r := range records {
		if r.AveragePrice != nil {
			summary.ProductsWithPrices++
		}
		if r.Status == domain.StatusAttention {
			summary.AlertCount++
		}
	}
	return summary
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
