package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching raw adapter responses
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// SemanticMatcher is the external AI text-matching capability.
// It returns the raw response text; parsing and repair happen in the caller.
type SemanticMatcher interface {
	MatchCandidates(ctx context.Context, req SemanticRequest, strategy MatchStrategy) (string, error)
}

// VisualChecker is the external AI image-classification capability.
// It returns the raw response text for a single listing.
type VisualChecker interface {
	ClassifyListing(ctx context.Context, req VisualRequest) (string, error)
}

// AlertNotifier receives the products whose deviation exceeds the alert threshold
type AlertNotifier interface {
	NotifyAlerts(ctx context.Context, runID string, threshold float64, alerts []AggregatedRecord) error
}
