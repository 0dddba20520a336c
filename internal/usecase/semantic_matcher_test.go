package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

func testCandidates(n int) []domain.RawCandidate {
	names := []string{"Локум роза 140 г", "Айран 500 мл", "Хляб 500 г", "Сирене 400 г", "Мляко 1 л", "Кафе 250 г", "Мед 400 г"}
	prices := []float64{3.79, 2.85, 1.20, 8.50, 2.40, 6.90, 9.20}
	out := make([]domain.RawCandidate, 0, n)
	for i := 0; i < n && i < len(names); i++ {
		out = append(out, domain.RawCandidate{DisplayName: names[i], RawPrice: prices[i], SourceStoreID: "ebag"})
	}
	return out
}

func newTestSemanticAdapter(matcher domain.SemanticMatcher, cache domain.CacheRepository) *SemanticAdapter {
	return NewSemanticAdapter(matcher, cache, SemanticConfig{
		Primary:     primaryStrategy,
		Degraded:    degradedStrategy,
		CallTimeout: time.Second,
	}, zap.NewNop())
}

func TestNewSemanticAdapter(t *testing.T) {
	a := NewSemanticAdapter(nil, nil, SemanticConfig{}, nil)
	assert.Equal(t, 5, a.retryMinCandidate)
	assert.Equal(t, 60*time.Second, a.callTimeout)
	assert.Equal(t, 24*time.Hour, a.cacheTTL)
}

func TestSemanticAdapter_Match(t *testing.T) {
	ctx := context.Background()
	items := testCatalog(t).Items(false)

	t.Run("parses flat response", func(t *testing.T) {
		matcher := new(mockSemanticMatcher)
		matcher.On("MatchCandidates", mock.Anything, mock.Anything, primaryStrategy).
			Return(`{"1": 3.79, "2": "2,85 лв", "3": null, "99": 1.00}`, nil).Once()

		got := newTestSemanticAdapter(matcher, nil).Match(ctx, items, testCandidates(3))
		assert.Equal(t, map[int]float64{1: 3.79, 2: 2.85}, got)
		matcher.AssertExpectations(t)
	})

	t.Run("parses matches envelope wrapped in prose", func(t *testing.T) {
		matcher := new(mockSemanticMatcher)
		matcher.On("MatchCandidates", mock.Anything, mock.Anything, primaryStrategy).
			Return("Sure!\n```json\n{\"matches\": [{\"id\": 1, \"price\": 3.79}, {\"id\": \"2\", \"price\": {\"price\": 2.85}},]}\n```", nil).Once()

		got := newTestSemanticAdapter(matcher, nil).Match(ctx, items, testCandidates(3))
		assert.Equal(t, map[int]float64{1: 3.79, 2: 2.85}, got)
	})

	t.Run("request never carries reference prices", func(t *testing.T) {
		matcher := new(mockSemanticMatcher)
		matcher.On("MatchCandidates", mock.Anything, mock.MatchedBy(func(req domain.SemanticRequest) bool {
			return len(req.Items) == 4 && req.Items[0].Name == "Био Локум роза" && req.Items[0].VisualDescriptor == ""
		}), primaryStrategy).Return(`{}`, nil).Once()

		newTestSemanticAdapter(matcher, nil).Match(ctx, items, testCandidates(2))
		matcher.AssertExpectations(t)
	})

	t.Run("empty primary result retries with degraded strategy", func(t *testing.T) {
		matcher := new(mockSemanticMatcher)
		matcher.On("MatchCandidates", mock.Anything, mock.Anything, primaryStrategy).Return(`{}`, nil).Once()
		matcher.On("MatchCandidates", mock.Anything, mock.Anything, degradedStrategy).Return(`{"1": 3.79}`, nil).Once()

		got := newTestSemanticAdapter(matcher, nil).Match(ctx, items, testCandidates(6))
		assert.Equal(t, map[int]float64{1: 3.79}, got)
		matcher.AssertExpectations(t)
	})

	t.Run("both strategies empty yields empty result", func(t *testing.T) {
		matcher := new(mockSemanticMatcher)
		matcher.On("MatchCandidates", mock.Anything, mock.Anything, primaryStrategy).Return(`{}`, nil).Once()
		matcher.On("MatchCandidates", mock.Anything, mock.Anything, degradedStrategy).Return(`{}`, nil).Once()

		got := newTestSemanticAdapter(matcher, nil).Match(ctx, items, testCandidates(6))
		assert.Empty(t, got)
		matcher.AssertNumberOfCalls(t, "MatchCandidates", 2)
	})

	t.Run("small candidate list does not retry", func(t *testing.T) {
		matcher := new(mockSemanticMatcher)
		matcher.On("MatchCandidates", mock.Anything, mock.Anything, primaryStrategy).Return(`{}`, nil).Once()

		got := newTestSemanticAdapter(matcher, nil).Match(ctx, items, testCandidates(4))
		assert.Empty(t, got)
		matcher.AssertNotCalled(t, "MatchCandidates", mock.Anything, mock.Anything, degradedStrategy)
	})

	t.Run("no degraded model configured does not retry", func(t *testing.T) {
		matcher := new(mockSemanticMatcher)
		matcher.On("MatchCandidates", mock.Anything, mock.Anything, primaryStrategy).Return(`{}`, nil).Once()

		adapter := NewSemanticAdapter(matcher, nil, SemanticConfig{Primary: primaryStrategy}, zap.NewNop())
		assert.Empty(t, adapter.Match(ctx, items, testCandidates(6)))
		matcher.AssertNumberOfCalls(t, "MatchCandidates", 1)
	})

	t.Run("matcher error yields empty result", func(t *testing.T) {
		matcher := new(mockSemanticMatcher)
		matcher.On("MatchCandidates", mock.Anything, mock.Anything, primaryStrategy).
			Return("", errors.New("upstream unavailable")).Once()

		assert.Empty(t, newTestSemanticAdapter(matcher, nil).Match(ctx, items, testCandidates(2)))
	})

	t.Run("unrepairable response yields empty result", func(t *testing.T) {
		matcher := new(mockSemanticMatcher)
		matcher.On("MatchCandidates", mock.Anything, mock.Anything, primaryStrategy).
			Return("No products matched.", nil).Once()

		assert.Empty(t, newTestSemanticAdapter(matcher, nil).Match(ctx, items, testCandidates(2)))
	})

	t.Run("matcher panic is contained", func(t *testing.T) {
		matcher := new(mockSemanticMatcher)
		matcher.On("MatchCandidates", mock.Anything, mock.Anything, primaryStrategy).
			Run(func(mock.Arguments) { panic("boom") }).
			Return("", nil).Once()

		assert.NotPanics(t, func() {
			assert.Empty(t, newTestSemanticAdapter(matcher, nil).Match(ctx, items, testCandidates(2)))
		})
	})

	t.Run("call timeout is treated as failure", func(t *testing.T) {
		matcher := new(mockSemanticMatcher)
		matcher.On("MatchCandidates", mock.Anything, mock.Anything, primaryStrategy).
			Run(func(args mock.Arguments) {
				<-args.Get(0).(context.Context).Done()
			}).
			Return("", context.DeadlineExceeded).Once()

		adapter := NewSemanticAdapter(matcher, nil, SemanticConfig{
			Primary:     primaryStrategy,
			CallTimeout: 10 * time.Millisecond,
		}, zap.NewNop())
		assert.Empty(t, adapter.Match(ctx, items, testCandidates(2)))
	})

	t.Run("no candidates skips the call", func(t *testing.T) {
		matcher := new(mockSemanticMatcher)
		assert.Empty(t, newTestSemanticAdapter(matcher, nil).Match(ctx, items, nil))
		matcher.AssertNotCalled(t, "MatchCandidates", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("parsed responses are served from cache", func(t *testing.T) {
		matcher := new(mockSemanticMatcher)
		matcher.On("MatchCandidates", mock.Anything, mock.Anything, primaryStrategy).
			Return(`{"1": 3.79}`, nil).Once()

		adapter := newTestSemanticAdapter(matcher, newStubCache())
		first := adapter.Match(ctx, items, testCandidates(2))
		second := adapter.Match(ctx, items, testCandidates(2))

		assert.Equal(t, first, second)
		matcher.AssertNumberOfCalls(t, "MatchCandidates", 1)
	})

	t.Run("empty primary answer is not cached", func(t *testing.T) {
		matcher := new(mockSemanticMatcher)
		matcher.On("MatchCandidates", mock.Anything, mock.Anything, primaryStrategy).Return(`{}`, nil).Once()
		matcher.On("MatchCandidates", mock.Anything, mock.Anything, primaryStrategy).Return(`{"1": 3.79}`, nil).Once()
		matcher.On("MatchCandidates", mock.Anything, mock.Anything, degradedStrategy).Return(`{"1": 3.70}`, nil).Once()

		adapter := newTestSemanticAdapter(matcher, newStubCache())
		first := adapter.Match(ctx, items, testCandidates(6))
		second := adapter.Match(ctx, items, testCandidates(6))

		assert.Equal(t, map[int]float64{1: 3.70}, first)
		assert.Equal(t, map[int]float64{1: 3.79}, second)
		matcher.AssertNumberOfCalls(t, "MatchCandidates", 3)
		matcher.AssertExpectations(t)
	})

	t.Run("unusable responses are not cached", func(t *testing.T) {
		matcher := new(mockSemanticMatcher)
		matcher.On("MatchCandidates", mock.Anything, mock.Anything, primaryStrategy).
			Return("garbage", nil).Twice()

		adapter := newTestSemanticAdapter(matcher, newStubCache())
		adapter.Match(ctx, items, testCandidates(2))
		adapter.Match(ctx, items, testCandidates(2))

		matcher.AssertNumberOfCalls(t, "MatchCandidates", 2)
	})
}

func TestParseSemanticResponse(t *testing.T) {
	items := []domain.CatalogItem{{ID: 1}, {ID: 2}}

	t.Run("string ids and comma prices", func(t *testing.T) {
		got, err := parseSemanticResponse(`{" 1 ": "3,79", "2": 0}`, items)
		require.NoError(t, err)
		assert.Equal(t, map[int]float64{1: 3.79}, got)
	})

	t.Run("array of scalars is not a valid shape", func(t *testing.T) {
		_, err := parseSemanticResponse(`[1, 2]`, items)
		assert.ErrorIs(t, err, domain.ErrUnrepairableResponse)
	})
}
