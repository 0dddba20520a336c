package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

type orchestratorDeps struct {
	matcher *mockSemanticMatcher
	checker *mockVisualChecker
}

func newTestOrchestrator(t *testing.T, catalog *domain.Catalog) (*Orchestrator, orchestratorDeps) {
	t.Helper()
	deps := orchestratorDeps{matcher: new(mockSemanticMatcher), checker: new(mockVisualChecker)}

	logger := zap.NewNop()
	currency := NewCurrencyDisambiguator(0, 0)
	validator := NewPriceValidator(0, 0)
	semantic := NewSemanticAdapter(deps.matcher, nil, SemanticConfig{
		Primary:     primaryStrategy,
		Degraded:    degradedStrategy,
		CallTimeout: time.Second,
	}, logger)
	lexical := NewLexicalMatcher(LexicalConfig{}, currency, validator, logger)
	visual := NewVisualAdapter(deps.checker, currency, validator, VisualConfig{CallTimeout: time.Second}, logger)

	return NewOrchestrator(catalog, semantic, lexical, visual, currency, validator, logger), deps
}

func TestOrchestrator_ResolveStore(t *testing.T) {
	ctx := context.Background()

	t.Run("alternate currency observation stored in base currency", func(t *testing.T) {
		catalog, err := domain.NewCatalog([]domain.CatalogProduct{
			{ID: 1, CanonicalName: "Зехтин", UnitSpec: "500мл", ReferencePrice: 10.00, ReferencePriceAlt: 5.00},
		}, []domain.StoreConfig{{ID: "ebag"}})
		require.NoError(t, err)

		o, deps := newTestOrchestrator(t, catalog)
		deps.matcher.On("MatchCandidates", mock.Anything, mock.Anything, primaryStrategy).Return(`{"1": 5.10}`, nil).Once()

		res, err := o.ResolveStore(ctx, domain.StoreObservation{
			StoreID:    "ebag",
			Candidates: []domain.RawCandidate{{DisplayName: "Зехтин 500 мл", RawPrice: 5.10}},
		})
		require.NoError(t, err)
		require.Contains(t, res.Matches, 1)
		assert.InDelta(t, 10.0, res.Matches[1].ResolvedPrice, 0.05)
		assert.Equal(t, domain.StageSemantic, res.Matches[1].OriginStage)
		assert.Equal(t, domain.TierHigh, res.Matches[1].ConfidenceTier)
	})

	t.Run("empty semantic results fall back to lexical after degraded retry", func(t *testing.T) {
		o, deps := newTestOrchestrator(t, testCatalog(t))
		deps.matcher.On("MatchCandidates", mock.Anything, mock.Anything, primaryStrategy).Return(`{}`, nil).Once()
		deps.matcher.On("MatchCandidates", mock.Anything, mock.Anything, degradedStrategy).Return(`{}`, nil).Once()

		res, err := o.ResolveStore(ctx, domain.StoreObservation{StoreID: "ebag", Candidates: testCandidates(6)})
		require.NoError(t, err)
		deps.matcher.AssertExpectations(t)

		require.Contains(t, res.Matches, 1)
		require.Contains(t, res.Matches, 2)
		assert.Equal(t, 3.79, res.Matches[1].ResolvedPrice)
		assert.Equal(t, 2.85, res.Matches[2].ResolvedPrice)
		assert.Equal(t, domain.StageLexical, res.Matches[1].OriginStage)
		assert.Equal(t, domain.TierMedium, res.Matches[1].ConfidenceTier)
		assert.Len(t, res.Matches, 2)
	})

	t.Run("semantic result is never overwritten by lexical", func(t *testing.T) {
		o, deps := newTestOrchestrator(t, testCatalog(t))
		deps.matcher.On("MatchCandidates", mock.Anything, mock.Anything, primaryStrategy).Return(`{"1": 3.70}`, nil).Once()

		res, err := o.ResolveStore(ctx, domain.StoreObservation{
			StoreID:    "ebag",
			Text:       "Локум роза 140 г 3,81 лв",
			Candidates: []domain.RawCandidate{{DisplayName: "Локум роза 140 г", RawPrice: 3.70}},
		})
		require.NoError(t, err)
		assert.Equal(t, 3.70, res.Matches[1].ResolvedPrice)
		assert.Equal(t, domain.StageSemantic, res.Matches[1].OriginStage)
	})

	t.Run("rejected semantic price leaves the slot to lexical", func(t *testing.T) {
		o, deps := newTestOrchestrator(t, testCatalog(t))
		deps.matcher.On("MatchCandidates", mock.Anything, mock.Anything, primaryStrategy).Return(`{"1": 9.99}`, nil).Once()

		res, err := o.ResolveStore(ctx, domain.StoreObservation{
			StoreID:    "ebag",
			Text:       "Локум роза 140 г 3,81 лв",
			Candidates: []domain.RawCandidate{{DisplayName: "Локум роза 140 г", RawPrice: 9.99}},
		})
		require.NoError(t, err)
		assert.Equal(t, 3.81, res.Matches[1].ResolvedPrice)
		assert.Equal(t, domain.StageLexical, res.Matches[1].OriginStage)
	})

	t.Run("visual contradiction keeps the text price", func(t *testing.T) {
		catalog, err := domain.NewCatalog([]domain.CatalogProduct{
			{ID: 1, CanonicalName: "Мед акациев", UnitSpec: "400г", ReferencePrice: 9.20, KeywordGroups: [][]string{{"мед", "акациев"}}},
		}, []domain.StoreConfig{{ID: "a"}})
		require.NoError(t, err)

		o, deps := newTestOrchestrator(t, catalog)
		deps.matcher.On("MatchCandidates", mock.Anything, mock.Anything, primaryStrategy).Return(`{"1": 9.00}`, nil).Once()
		deps.checker.On("ClassifyListing", mock.Anything, mock.Anything).
			Return(`{"id": 1, "confidence": "high", "rationale": "acacia honey jar"}`, nil).Once()

		res, err := o.ResolveStore(ctx, domain.StoreObservation{
			StoreID:    "a",
			Text:       "Мед акациев 400 г 9,60 лв",
			Candidates: []domain.RawCandidate{{DisplayName: "Мед акациев 400 г", RawPrice: 9.00}},
			Listings:   []domain.ListingImage{listing("Мед акациев 400 г", 9.50)},
		})
		require.NoError(t, err)

		assert.Equal(t, 9.00, res.Matches[1].ResolvedPrice)
		assert.Equal(t, domain.StageSemantic, res.Matches[1].OriginStage)
		require.Len(t, res.Confirmations, 1)
		assert.False(t, res.Confirmations[0].Confirmed)
		assert.Equal(t, 9.50, res.Confirmations[0].VisualPrice)
	})

	t.Run("visual guess fills a slot no text stage resolved", func(t *testing.T) {
		o, deps := newTestOrchestrator(t, testCatalog(t))
		deps.checker.On("ClassifyListing", mock.Anything, mock.Anything).
			Return(`{"id": 2, "confidence": "high"}`, nil).Once()

		res, err := o.ResolveStore(ctx, domain.StoreObservation{
			StoreID:  "ebag",
			Listings: []domain.ListingImage{listing("Айран 500 мл", 2.80)},
		})
		require.NoError(t, err)
		require.Contains(t, res.Matches, 2)
		assert.Equal(t, 2.80, res.Matches[2].ResolvedPrice)
		assert.Equal(t, domain.StageVisual, res.Matches[2].OriginStage)
		deps.matcher.AssertNotCalled(t, "MatchCandidates", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("store with no observations resolves nothing", func(t *testing.T) {
		o, deps := newTestOrchestrator(t, testCatalog(t))

		res, err := o.ResolveStore(ctx, domain.StoreObservation{StoreID: "kashon"})
		require.NoError(t, err)
		assert.Empty(t, res.Matches)
		deps.matcher.AssertNotCalled(t, "MatchCandidates", mock.Anything, mock.Anything, mock.Anything)
		deps.checker.AssertNotCalled(t, "ClassifyListing", mock.Anything, mock.Anything)
	})

	t.Run("candidates of other stores are ignored", func(t *testing.T) {
		o, deps := newTestOrchestrator(t, testCatalog(t))
		deps.matcher.On("MatchCandidates", mock.Anything, mock.MatchedBy(func(req domain.SemanticRequest) bool {
			return len(req.Candidates) == 1 && req.Candidates[0].SourceStoreID == "ebag"
		}), primaryStrategy).Return(`{}`, nil).Once()

		_, err := o.ResolveStore(ctx, domain.StoreObservation{
			StoreID: "ebag",
			Candidates: []domain.RawCandidate{
				{DisplayName: "Локум роза 140 г", RawPrice: 3.79},
				{DisplayName: "Айран 500 мл", RawPrice: 2.85, SourceStoreID: "kashon"},
			},
		})
		require.NoError(t, err)
		deps.matcher.AssertExpectations(t)
	})

	t.Run("unknown store is an error", func(t *testing.T) {
		o, _ := newTestOrchestrator(t, testCatalog(t))
		_, err := o.ResolveStore(ctx, domain.StoreObservation{StoreID: "lidl"})
		assert.ErrorIs(t, err, domain.ErrStoreNotFound)
	})

	t.Run("every stored price passes the validator", func(t *testing.T) {
		catalog := testCatalog(t)
		o, deps := newTestOrchestrator(t, catalog)
		deps.matcher.On("MatchCandidates", mock.Anything, mock.Anything, primaryStrategy).
			Return(`{"1": 3.79, "2": 12.00, "3": 0.74, "4": 0.10}`, nil).Once()

		res, err := o.ResolveStore(ctx, domain.StoreObservation{
			StoreID:    "kashon",
			Text:       "Айран 500 мл 9,90 лв Вафла 40 г 2,10 лв",
			Candidates: testCandidates(3),
		})
		require.NoError(t, err)

		validator := NewPriceValidator(0, 0)
		store, _ := catalog.Store("kashon")
		for id, m := range res.Matches {
			product, ok := catalog.Product(id)
			require.True(t, ok)
			assert.True(t, validator.Accept(m.ResolvedPrice, product, validator.ToleranceFor(store, m.OriginStage)),
				"product %d price %v stage %s", id, m.ResolvedPrice, m.OriginStage)
		}
		assert.NotContains(t, res.Matches, 2)
		assert.Contains(t, res.Matches, 4)
	})
}

func TestStoreText(t *testing.T) {
	t.Run("observation text preferred", func(t *testing.T) {
		obs := domain.StoreObservation{Text: "page text"}
		assert.Equal(t, "page text", storeText(obs, testCandidates(2)))
	})

	t.Run("candidates rendered when text missing", func(t *testing.T) {
		assert.Equal(t, "Локум роза 140 г 3.79\nАйран 500 мл 2.85", storeText(domain.StoreObservation{}, testCandidates(2)))
	})
}
