package domain

import "github.com/rotisserie/eris"

var (
	// ErrInvalidCatalog is returned when the catalog or store configuration fails validation
	ErrInvalidCatalog = eris.New("invalid catalog configuration")

	// ErrProductNotFound is returned when a product id is not part of the catalog
	ErrProductNotFound = eris.New("product not found in catalog")

	// ErrStoreNotFound is returned when a store id is not part of the configuration
	ErrStoreNotFound = eris.New("store not found in configuration")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = eris.New("invalid request parameters")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = eris.New("cache miss")

	// ErrMatcherFailure is returned when the external matching capability fails
	ErrMatcherFailure = eris.New("external matcher request failed")

	// ErrUnrepairableResponse is returned when a structured response cannot be repaired
	ErrUnrepairableResponse = eris.New("structured response could not be repaired")

	// ErrStoreResolution is returned when a store run aborts before completing its stages
	ErrStoreResolution = eris.New("store resolution failed")

	// ErrRunNotFound is returned when a run id is not part of the history
	ErrRunNotFound = eris.New("run not found in history")
)
