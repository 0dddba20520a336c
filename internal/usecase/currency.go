package usecase

import "math"

// Currency identifies which hypothesis the disambiguator picked
type Currency string

const (
	CurrencyBase Currency = "base"
	CurrencyAlt  Currency = "alt"
)

const (
	defaultExchangeRate = 1.95583 // base units per one alternate unit (BGN per EUR)
	defaultPriceFloor   = 0.5
)

// CurrencyDisambiguator re-expresses raw observed prices in the base currency,
// anchored on the matched product's reference price.
type CurrencyDisambiguator struct {
	rate  float64
	floor float64
}

// NewCurrencyDisambiguator creates a disambiguator. Non-positive values fall back to defaults.
func NewCurrencyDisambiguator(rate, floor float64) *CurrencyDisambiguator {
	if rate <= 0 {
		rate = defaultExchangeRate
	}
	if floor <= 0 {
		floor = defaultPriceFloor
	}
	return &CurrencyDisambiguator{rate: rate, floor: floor}
}

// ToBase converts raw into the base currency given the product's base reference price.
// Prices under the floor are always treated as the alternate currency.
func (d *CurrencyDisambiguator) ToBase(raw, referencePrice float64) (float64, Currency) {
	if raw < d.floor {
		return raw * d.rate, CurrencyAlt
	}
	if referencePrice <= 0 {
		return raw, CurrencyBase
	}

	baseDeviation := relativeDeviation(raw, referencePrice)
	altDeviation := relativeDeviation(raw, referencePrice/d.rate)
	if altDeviation < baseDeviation {
		return raw * d.rate, CurrencyAlt
	}
	return raw, CurrencyBase
}

// ToAlt converts a base-currency amount into the alternate currency
func (d *CurrencyDisambiguator) ToAlt(base float64) float64 {
	return base / d.rate
}

// relativeDeviation returns |value - reference| / reference
func relativeDeviation(value, reference float64) float64 {
	if reference == 0 {
		return math.Inf(1)
	}
	return math.Abs(value-reference) / reference
}
