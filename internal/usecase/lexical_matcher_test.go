package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

func newTestLexicalMatcher(config LexicalConfig) *LexicalMatcher {
	return NewLexicalMatcher(config, NewCurrencyDisambiguator(0, 0), NewPriceValidator(0, 0), zap.NewNop())
}

func TestNewLexicalMatcher(t *testing.T) {
	t.Run("uses defaults when zero", func(t *testing.T) {
		m := newTestLexicalMatcher(LexicalConfig{})
		assert.Equal(t, 80, m.windowBefore)
		assert.Equal(t, 240, m.windowAfter)
		assert.Equal(t, 1, m.fuzzyEditDistance)
		assert.False(t, m.enableFuzzyMatching)
	})

	t.Run("keeps provided values", func(t *testing.T) {
		m := newTestLexicalMatcher(LexicalConfig{WindowBefore: 10, WindowAfter: 20, FuzzyEditDistance: 2, EnableFuzzyMatching: true})
		assert.Equal(t, 10, m.windowBefore)
		assert.Equal(t, 20, m.windowAfter)
		assert.Equal(t, 2, m.fuzzyEditDistance)
		assert.True(t, m.enableFuzzyMatching)
	})
}

func TestLexicalMatcher_Match(t *testing.T) {
	ctx := context.Background()
	products := testProducts()
	m := newTestLexicalMatcher(LexicalConfig{})

	t.Run("matches cyrillic text", func(t *testing.T) {
		results, err := m.Match(ctx, "Био Локум роза 140 г 3,79 лв", products, 0.5)
		require.NoError(t, err)
		require.Contains(t, results, 1)
		assert.Equal(t, 3.79, results[1].ResolvedPrice)
		assert.Equal(t, domain.TierMedium, results[1].ConfidenceTier)
		assert.Equal(t, domain.StageLexical, results[1].OriginStage)
		assert.Equal(t, 1, *results[1].ProductID)
	})

	t.Run("matches transliterated latin text", func(t *testing.T) {
		results, err := m.Match(ctx, "LOKUM ROZA 140 gr - 3.81 lv", products, 0.5)
		require.NoError(t, err)
		require.Contains(t, results, 1)
		assert.Equal(t, 3.81, results[1].ResolvedPrice)
	})

	t.Run("picks the price closest to the reference", func(t *testing.T) {
		results, err := m.Match(ctx, "Локум роза 140 г стара цена 4,50 лв нова цена 3,79 лв", products, 0.5)
		require.NoError(t, err)
		require.Contains(t, results, 1)
		assert.Equal(t, 3.79, results[1].ResolvedPrice)
	})

	t.Run("converts alternate currency prices", func(t *testing.T) {
		results, err := m.Match(ctx, "Локум роза 140 г 1,95 €", products, 0.5)
		require.NoError(t, err)
		require.Contains(t, results, 1)
		assert.InDelta(t, 3.81, results[1].ResolvedPrice, 0.01)
	})

	t.Run("rejects prices outside tolerance", func(t *testing.T) {
		results, err := m.Match(ctx, "Локум роза 140 г 9,99 лв", products, 0.5)
		require.NoError(t, err)
		assert.NotContains(t, results, 1)
	})

	t.Run("requires the unit size in the window", func(t *testing.T) {
		results, err := m.Match(ctx, "Айран 1 л 2,90 лв", products, 0.5)
		require.NoError(t, err)
		assert.NotContains(t, results, 2)
	})

	t.Run("unit size decides between otherwise identical products", func(t *testing.T) {
		text := "Био вафла без добавена захар 30 г 1,44 лв Био тунквана вафла Класика 40 г 2,00 лв"
		results, err := m.Match(ctx, text, products, 0.5)
		require.NoError(t, err)
		require.Contains(t, results, 3)
		require.Contains(t, results, 4)
		assert.Equal(t, 1.44, results[3].ResolvedPrice)
		assert.Equal(t, 2.00, results[4].ResolvedPrice)
	})

	t.Run("products sharing a generic word resolve from their own tiles", func(t *testing.T) {
		wafers := []domain.CatalogProduct{
			{
				ID: 4, CanonicalName: "Био Тунквана вафла без захар", UnitSpec: "40г", ReferencePrice: 2.62,
				KeywordGroups: [][]string{{"вафла", "без захар", "40г"}, {"vafla", "bez zahar", "40g"}},
			},
			{
				ID: 8, CanonicalName: "Био тунквана вафла Класика", UnitSpec: "40г", ReferencePrice: 2.00,
				KeywordGroups: [][]string{{"вафла", "класика", "40г"}, {"vafla", "klasika", "40g"}},
			},
		}
		text := "Био тунквана вафла Класика 40 г 2,00 лв " +
			strings.Repeat("Добави в количката. ", 15) +
			"Био Тунквана вафла без захар 40 г 2,62 лв"

		results, err := m.Match(ctx, text, wafers, 0.5)
		require.NoError(t, err)
		require.Contains(t, results, 4)
		require.Contains(t, results, 8)
		assert.Equal(t, 2.62, results[4].ResolvedPrice)
		assert.Equal(t, 2.00, results[8].ResolvedPrice)
	})

	t.Run("group words outside the anchor window do not match", func(t *testing.T) {
		wafers := []domain.CatalogProduct{
			{
				ID: 8, CanonicalName: "Био тунквана вафла Класика", UnitSpec: "40г", ReferencePrice: 2.00,
				KeywordGroups: [][]string{{"вафла", "класика", "40г"}},
			},
		}
		text := "Вафла без захар 40 г 2,10 лв " + strings.Repeat("Добави в количката. ", 15) + "Класика"

		results, err := m.Match(ctx, text, wafers, 0.5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("single price is never shared by two products", func(t *testing.T) {
		products := []domain.CatalogProduct{
			{ID: 3, CanonicalName: "Вафла 30", UnitSpec: "30г", ReferencePrice: 1.44, KeywordGroups: [][]string{{"вафла"}}},
			{ID: 4, CanonicalName: "Вафла 30 промо", UnitSpec: "30г", ReferencePrice: 1.50, KeywordGroups: [][]string{{"вафла"}}},
		}
		results, err := m.Match(ctx, "Вафла 30 г 1,44 лв", products, 0.5)
		require.NoError(t, err)
		assert.Len(t, results, 1)
		assert.Contains(t, results, 3)
	})

	t.Run("empty text yields no matches", func(t *testing.T) {
		results, err := m.Match(ctx, "  ", products, 0.5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("unparseable unit spec skips product", func(t *testing.T) {
		products := []domain.CatalogProduct{
			{ID: 9, CanonicalName: "Кутия локум", UnitSpec: "кутия", ReferencePrice: 3.81, KeywordGroups: [][]string{{"локум"}}},
		}
		results, err := m.Match(ctx, "Кутия локум 140 г 3,81 лв", products, 0.5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("returns context error when cancelled", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := m.Match(cancelled, "Локум роза 140 г 3,79 лв", products, 0.5)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLexicalMatcher_FuzzyMatching(t *testing.T) {
	ctx := context.Background()
	products := testProducts()

	t.Run("disabled fuzzy matching requires exact tokens", func(t *testing.T) {
		m := newTestLexicalMatcher(LexicalConfig{})
		results, err := m.Match(ctx, "Airan 500 ml 2,90 лв", products, 0.5)
		require.NoError(t, err)
		assert.NotContains(t, results, 2)
	})

	t.Run("enabled fuzzy matching tolerates one edit", func(t *testing.T) {
		m := newTestLexicalMatcher(LexicalConfig{EnableFuzzyMatching: true})
		results, err := m.Match(ctx, "Airan 500 ml 2,90 лв", products, 0.5)
		require.NoError(t, err)
		require.Contains(t, results, 2)
		assert.Equal(t, 2.90, results[2].ResolvedPrice)
	})

	t.Run("fuzzy matching never relaxes the unit check", func(t *testing.T) {
		m := newTestLexicalMatcher(LexicalConfig{EnableFuzzyMatching: true})
		results, err := m.Match(ctx, "Airan 250 ml 2,90 лв", products, 0.5)
		require.NoError(t, err)
		assert.NotContains(t, results, 2)
	})
}

func TestKeywordGroups(t *testing.T) {
	t.Run("configured groups are returned as is", func(t *testing.T) {
		p := testProducts()[0]
		assert.Equal(t, p.KeywordGroups, keywordGroups(p))
	})

	t.Run("derived groups drop noise words and carry the unit", func(t *testing.T) {
		p := domain.CatalogProduct{ID: 5, CanonicalName: "Био Тахан harmonica", UnitSpec: "250г", Aliases: []string{"tahan"}}
		groups := keywordGroups(p)
		assert.Equal(t, [][]string{{"tahan", "250г"}, {"tahan", "250г"}}, groups)
	})

	t.Run("deriving groups does not modify aliases", func(t *testing.T) {
		aliases := make([]string, 1, 4)
		aliases[0] = "tahan"
		p := domain.CatalogProduct{ID: 5, CanonicalName: "Тахан", UnitSpec: "250г", Aliases: aliases}
		_ = keywordGroups(p)
		assert.Equal(t, []string{"tahan"}, p.Aliases)
		assert.Equal(t, "tahan", aliases[:2][0])
		assert.Equal(t, "", aliases[:2][1])
	})
}

func TestFuzzyTokenMatch(t *testing.T) {
	tests := []struct {
		name      string
		token1    string
		token2    string
		threshold int
		expected  bool
	}{
		{"exact match", "lokum", "lokum", 1, true},
		{"one substitution", "ayran", "airan", 1, true},
		{"short tokens not fuzzy", "roza", "rosa", 1, false},
		{"too many edits", "vafla", "vaffle", 1, false},
		{"length gap over threshold", "tahan", "tahanaa", 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, fuzzyTokenMatch(tt.token1, tt.token2, tt.threshold))
		})
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		s1, s2   string
		expected int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"локум", "лукум", 1},
	}

	for _, tt := range tests {
		t.Run(tt.s1+"_"+tt.s2, func(t *testing.T) {
			assert.Equal(t, tt.expected, levenshteinDistance(tt.s1, tt.s2))
		})
	}
}
