package usecase

import "github.com/pricelens/backend/internal/domain"

const defaultTolerance = 0.50

// PriceValidator enforces tolerance bounds around a product's reference price
type PriceValidator struct {
	defaultTolerance float64
	lexicalTolerance float64
}

// NewPriceValidator creates a validator. Zero tolerances fall back to 0.50.
func NewPriceValidator(defaultTol, lexicalTol float64) *PriceValidator {
	if defaultTol <= 0 {
		defaultTol = defaultTolerance
	}
	if lexicalTol <= 0 {
		lexicalTol = defaultTolerance
	}
	return &PriceValidator{defaultTolerance: defaultTol, lexicalTolerance: lexicalTol}
}

// Accept reports whether price lies within ref*(1-tol) .. ref*(1+tol) inclusive.
func (v *PriceValidator) Accept(price float64, product domain.CatalogProduct, tolerance float64) bool {
	if price <= 0 || product.ReferencePrice <= 0 {
		return false
	}
	lower := product.ReferencePrice * (1 - tolerance)
	upper := product.ReferencePrice * (1 + tolerance)
	// Absorb float noise so that a price exactly on the boundary is accepted.
	const eps = 1e-9
	return price >= lower-eps && price <= upper+eps
}

// ToleranceFor returns the effective tolerance of a store for a stage.
// The lexical stage never gets a wider band than the store's semantic band.
func (v *PriceValidator) ToleranceFor(store domain.StoreConfig, stage domain.Stage) float64 {
	storeTol := store.Tolerance
	if storeTol <= 0 {
		storeTol = v.defaultTolerance
	}
	if stage != domain.StageLexical {
		return storeTol
	}

	lexTol := store.LexicalTolerance
	if lexTol <= 0 {
		lexTol = v.lexicalTolerance
	}
	return min(lexTol, storeTol)
}
