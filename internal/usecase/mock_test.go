package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pricelens/backend/internal/domain"
)

// --- Semantic matcher mock ---

type mockSemanticMatcher struct {
	mock.Mock
}

func (m *mockSemanticMatcher) MatchCandidates(ctx context.Context, req domain.SemanticRequest, strategy domain.MatchStrategy) (string, error) {
	args := m.Called(ctx, req, strategy)
	return args.String(0), args.Error(1)
}

// --- Visual checker mock ---

type mockVisualChecker struct {
	mock.Mock
}

func (m *mockVisualChecker) ClassifyListing(ctx context.Context, req domain.VisualRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// --- Notifier mock ---

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyAlerts(ctx context.Context, runID string, threshold float64, alerts []domain.AggregatedRecord) error {
	args := m.Called(ctx, runID, threshold, alerts)
	return args.Error(0)
}

// --- Run history mock ---

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) SaveRun(ctx context.Context, result *domain.RunResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *mockHistory) ListRuns(ctx context.Context, limit int) ([]domain.RunEntry, error) {
	args := m.Called(ctx, limit)
	entries, _ := args.Get(0).([]domain.RunEntry)
	return entries, args.Error(1)
}

func (m *mockHistory) GetRun(ctx context.Context, runID string) (*domain.RunResult, error) {
	args := m.Called(ctx, runID)
	result, _ := args.Get(0).(*domain.RunResult)
	return result, args.Error(1)
}

func (m *mockHistory) ProductHistory(ctx context.Context, productID int, limit int) ([]domain.PricePoint, error) {
	args := m.Called(ctx, productID, limit)
	points, _ := args.Get(0).([]domain.PricePoint)
	return points, args.Error(1)
}

// --- Cache stub ---

type stubCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newStubCache() *stubCache {
	return &stubCache{items: make(map[string][]byte)}
}

func (c *stubCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return v, nil
}

func (c *stubCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

func (c *stubCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

// --- Fixtures ---

var (
	primaryStrategy  = domain.MatchStrategy{Name: "primary", Model: "model-large", MaxTokens: 2048}
	degradedStrategy = domain.MatchStrategy{Name: "degraded", Model: "model-small", MaxTokens: 2048}
)

func testProducts() []domain.CatalogProduct {
	return []domain.CatalogProduct{
		{
			ID: 1, CanonicalName: "Био Локум роза", UnitSpec: "140г",
			ReferencePrice: 3.81, ReferencePriceAlt: 1.95,
			KeywordGroups: [][]string{{"локум", "роза"}, {"lokum", "roza"}},
		},
		{
			ID: 2, CanonicalName: "Айран harmonica", UnitSpec: "500мл",
			ReferencePrice: 2.90, ReferencePriceAlt: 1.48,
			KeywordGroups: [][]string{{"айран"}, {"ayran"}},
		},
		{
			ID: 3, CanonicalName: "Био вафла без добавена захар", UnitSpec: "30г",
			ReferencePrice: 1.44, ReferencePriceAlt: 0.74,
			KeywordGroups: [][]string{{"вафла", "30г"}},
			VisualDescriptor: "small green wafer pack",
		},
		{
			ID: 4, CanonicalName: "Био тунквана вафла Класика", UnitSpec: "40г",
			ReferencePrice: 2.00, ReferencePriceAlt: 1.02,
			KeywordGroups: [][]string{{"вафла", "40г"}},
		},
	}
}

func testStores() []domain.StoreConfig {
	return []domain.StoreConfig{
		{ID: "ebag", Name: "eBag"},
		{ID: "kashon", Name: "Kashon", Tolerance: 0.70, LexicalTolerance: 0.40},
	}
}

func testCatalog(t *testing.T) *domain.Catalog {
	t.Helper()
	catalog, err := domain.NewCatalog(testProducts(), testStores())
	require.NoError(t, err)
	return catalog
}

func intPtr(v int) *int {
	return &v
}
