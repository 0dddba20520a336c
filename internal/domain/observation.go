package domain

// RawCandidate is a (name, price) pair observed on a store page, not yet
// attributed to a catalog product.
type RawCandidate struct {
	DisplayName   string  `json:"displayName" binding:"required"`
	RawPrice      float64 `json:"rawPrice" binding:"gt=0"`
	SourceStoreID string  `json:"sourceStoreId,omitempty"`
}

// ListingImage is a single product tile captured from a store page with the
// name and price shown next to it.
type ListingImage struct {
	Image          []byte  `json:"image" binding:"required"`
	MediaType      string  `json:"mediaType,omitempty"`
	DisplayName    string  `json:"displayName"`
	DisplayedPrice float64 `json:"displayedPrice"`
}

// StoreObservation is everything the extraction collaborator produced for one store.
type StoreObservation struct {
	StoreID    string         `json:"storeId" binding:"required"`
	Text       string         `json:"text"`
	Candidates []RawCandidate `json:"candidates,omitempty" binding:"dive"`
	Listings   []ListingImage `json:"listings,omitempty" binding:"dive"`
}

// ResolveRequest is the request body for a resolution run
type ResolveRequest struct {
	Stores []StoreObservation `json:"stores" binding:"required,dive"`
}
