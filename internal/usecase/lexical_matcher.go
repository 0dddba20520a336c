package usecase

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

var wordSpanRegex = regexp.MustCompile(`\S+`)

const wordTrimSet = ",.!?;:()[]\"'«»-"

// noiseWords never act as keyword anchors when groups are derived from names
var noiseWords = map[string]bool{
	"bio": true, "s": true, "i": true, "za": true, "na": true, "ot": true,
	"bez": true, "and": true, "with": true, "the": true, "harmonica": true,
}

// LexicalConfig holds configuration for the lexical matcher
type LexicalConfig struct {
	WindowBefore        int
	WindowAfter         int
	EnableFuzzyMatching bool
	FuzzyEditDistance   int
	EnableDebugLogging  bool
}

// LexicalMatcher is the deterministic keyword matcher used when the semantic
// matcher is unavailable or leaves gaps.
type LexicalMatcher struct {
	windowBefore        int
	windowAfter         int
	enableFuzzyMatching bool
	fuzzyEditDistance   int
	enableDebugLogging  bool
	currency            *CurrencyDisambiguator
	validator           *PriceValidator
	logger              *zap.Logger
}

// NewLexicalMatcher creates a lexical matcher with the given configuration
func NewLexicalMatcher(
	config LexicalConfig,
	currency *CurrencyDisambiguator,
	validator *PriceValidator,
	logger *zap.Logger,
) *LexicalMatcher {
	before := config.WindowBefore
	if before <= 0 {
		before = 80
	}
	after := config.WindowAfter
	if after <= 0 {
		after = 240
	}
	fuzzyDist := config.FuzzyEditDistance
	if fuzzyDist <= 0 {
		fuzzyDist = 1
	}
	if logger == nil {
		logger = zap.L()
	}

	return &LexicalMatcher{
		windowBefore:        before,
		windowAfter:         after,
		enableFuzzyMatching: config.EnableFuzzyMatching,
		fuzzyEditDistance:   fuzzyDist,
		enableDebugLogging:  config.EnableDebugLogging,
		currency:            currency,
		validator:           validator,
		logger:              logger.Named("lexical"),
	}
}

// foldedDocument is a store text blob prepared once for every product lookup
type foldedDocument struct {
	text   string
	words  []wordSpan
	prices []priceMention
	units  []unitMention
}

type wordSpan struct {
	word  string
	start int
	end   int
}

func newFoldedDocument(raw string) *foldedDocument {
	text := foldText(raw)
	doc := &foldedDocument{
		text:   text,
		prices: findPriceMentions(text),
		units:  findUnitMentions(text),
	}
	for _, loc := range wordSpanRegex.FindAllStringIndex(text, -1) {
		word := strings.Trim(text[loc[0]:loc[1]], wordTrimSet)
		if word == "" {
			continue
		}
		doc.words = append(doc.words, wordSpan{word: word, start: loc[0], end: loc[1]})
	}
	return doc
}

// Match resolves prices for products from a store's text blob. Products are
// tried in order and the first accepted price per product wins. A single price
// occurrence in the text is never attributed to two products.
func (m *LexicalMatcher) Match(
	ctx context.Context,
	text string,
	products []domain.CatalogProduct,
	tolerance float64,
) (map[int]domain.MatchResult, error) {
	results := make(map[int]domain.MatchResult)
	if strings.TrimSpace(text) == "" || len(products) == 0 {
		return results, nil
	}

	doc := newFoldedDocument(text)
	claimed := make(map[int]bool)

	for _, product := range products {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		unit, ok := ParseUnitSpec(product.UnitSpec)
		if !ok {
			m.logger.Warn("unit spec not parseable, skipping product",
				zap.Int("product_id", product.ID), zap.String("unit", product.UnitSpec))
			continue
		}

		for _, group := range keywordGroups(product) {
			price, offset, found := m.matchGroup(doc, group, product, unit, tolerance, claimed)
			if !found {
				continue
			}
			claimed[offset] = true
			id := product.ID
			results[id] = domain.MatchResult{
				ProductID:      &id,
				ResolvedPrice:  price,
				ConfidenceTier: domain.TierMedium,
				OriginStage:    domain.StageLexical,
			}
			if m.enableDebugLogging {
				m.logger.Debug("lexical match",
					zap.Int("product_id", id),
					zap.Strings("group", group),
					zap.Float64("price", price))
			}
			break
		}
	}

	return results, nil
}

// matchGroup checks one keyword group and, on a hit, picks the best price in a
// window around an occurrence of the anchor. Every anchor occurrence is tried
// in text order; a window only counts when all the group's words fall inside
// it. It returns the price in base currency and the offset of the price
// occurrence.
func (m *LexicalMatcher) matchGroup(
	doc *foldedDocument,
	group []string,
	product domain.CatalogProduct,
	unit UnitSize,
	tolerance float64,
	claimed map[int]bool,
) (float64, int, bool) {
	tokens := foldGroup(group)
	if len(tokens) == 0 {
		return 0, 0, false
	}
	for _, token := range tokens {
		if !m.containsToken(doc, token) {
			return 0, 0, false
		}
	}

	anchor := anchorToken(tokens)
	for _, span := range m.occurrences(doc, anchor) {
		winStart, winEnd := m.window(doc.text, span)
		if !m.windowHasWords(doc, tokens, winStart, winEnd) {
			continue
		}
		units := mentionsInWindow(doc.units, winStart, winEnd)
		if !hasUnit(units, unit) {
			if m.enableDebugLogging {
				m.logger.Debug("unit size absent from window",
					zap.Int("product_id", product.ID), zap.String("unit", unit.Token()))
			}
			continue
		}
		if price, offset, ok := m.bestPrice(doc, units, winStart, winEnd, product, unit, tolerance, claimed); ok {
			return price, offset, true
		}
	}
	return 0, 0, false
}

// bestPrice picks the unclaimed price in the window that binds to the
// product's unit and lies closest to the reference price.
func (m *LexicalMatcher) bestPrice(
	doc *foldedDocument,
	units []unitMention,
	winStart, winEnd int,
	product domain.CatalogProduct,
	unit UnitSize,
	tolerance float64,
	claimed map[int]bool,
) (float64, int, bool) {
	bestPrice, bestOffset := 0.0, -1
	bestDeviation := -1.0
	for _, pm := range doc.prices {
		if pm.start < winStart || pm.end > winEnd || claimed[pm.start] {
			continue
		}
		bound, ok := nearestUnit(units, pm)
		if !ok || !bound.size.Equal(unit) {
			continue
		}
		base, _ := m.currency.ToBase(pm.value, product.ReferencePrice)
		if !m.validator.Accept(base, product, tolerance) {
			continue
		}
		dev := relativeDeviation(base, product.ReferencePrice)
		if bestOffset < 0 || dev < bestDeviation {
			bestPrice, bestOffset, bestDeviation = base, pm.start, dev
		}
	}

	if bestOffset < 0 {
		return 0, 0, false
	}
	return bestPrice, bestOffset, true
}

// windowHasWords reports whether every non-unit token of a group occurs
// inside [start, end). Unit tokens are checked separately by binding.
func (m *LexicalMatcher) windowHasWords(doc *foldedDocument, tokens []string, start, end int) bool {
	for _, token := range tokens {
		if isUnitToken(token) {
			continue
		}
		found := false
		for _, span := range m.occurrences(doc, token) {
			if span.start >= start && span.end <= end {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// containsToken reports whether a folded token is present in the document.
// Unit tokens and multi-part tokens are matched as substrings; plain words
// may match fuzzily.
func (m *LexicalMatcher) containsToken(doc *foldedDocument, token string) bool {
	if size, ok := ParseUnitSpec(token); ok && isUnitToken(token) {
		for _, u := range doc.units {
			if u.size.Equal(size) {
				return true
			}
		}
		return false
	}
	return len(m.occurrences(doc, token)) > 0
}

// occurrences lists every exact occurrence of token in text order. Without an
// exact hit and with fuzzy matching on, it lists the fuzzily equal words.
func (m *LexicalMatcher) occurrences(doc *foldedDocument, token string) []wordSpan {
	if token == "" {
		return nil
	}
	var spans []wordSpan
	for from := 0; from < len(doc.text); {
		idx := strings.Index(doc.text[from:], token)
		if idx < 0 {
			break
		}
		start := from + idx
		spans = append(spans, wordSpan{word: token, start: start, end: start + len(token)})
		from = start + len(token)
	}
	if len(spans) > 0 || !m.enableFuzzyMatching {
		return spans
	}
	for _, w := range doc.words {
		if fuzzyTokenMatch(w.word, token, m.fuzzyEditDistance) {
			spans = append(spans, w)
		}
	}
	return spans
}

// window returns byte bounds around span, aligned to rune starts
func (m *LexicalMatcher) window(text string, span wordSpan) (int, int) {
	start := max(span.start-m.windowBefore, 0)
	end := min(span.end+m.windowAfter, len(text))
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	return start, end
}

func mentionsInWindow(units []unitMention, start, end int) []unitMention {
	var out []unitMention
	for _, u := range units {
		if u.start >= start && u.end <= end {
			out = append(out, u)
		}
	}
	return out
}

func hasUnit(units []unitMention, unit UnitSize) bool {
	for _, u := range units {
		if u.size.Equal(unit) {
			return true
		}
	}
	return false
}

// nearestUnit binds a price to the closest unit token in the window
func nearestUnit(units []unitMention, pm priceMention) (unitMention, bool) {
	best, bestDist := unitMention{}, -1
	for _, u := range units {
		var dist int
		switch {
		case u.end <= pm.start:
			dist = pm.start - u.end
		case u.start >= pm.end:
			dist = u.start - pm.end
		default:
			dist = 0
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = u, dist
		}
	}
	return best, bestDist >= 0
}

// keywordGroups returns configured groups, or groups derived from the
// canonical name and aliases when none are configured. Derived groups always
// carry the unit token so the size stays a hard disambiguator.
func keywordGroups(p domain.CatalogProduct) [][]string {
	if len(p.KeywordGroups) > 0 {
		return p.KeywordGroups
	}
	names := make([]string, 0, len(p.Aliases)+1)
	names = append(names, p.Aliases...)
	names = append(names, p.CanonicalName)

	var groups [][]string
	for _, name := range names {
		var group []string
		for _, tok := range foldTokens(name) {
			if len(tok) < 3 || noiseWords[tok] || isUnitToken(tok) {
				continue
			}
			group = append(group, tok)
		}
		if len(group) > 0 {
			groups = append(groups, append(group, p.UnitSpec))
		}
	}
	return groups
}

// foldGroup folds every configured token, splitting multi-word entries
func foldGroup(group []string) []string {
	var tokens []string
	for _, entry := range group {
		tokens = append(tokens, foldTokens(entry)...)
	}
	return tokens
}

// anchorToken is the first token of a group that is not a unit size
func anchorToken(tokens []string) string {
	for _, t := range tokens {
		if !isUnitToken(t) {
			return t
		}
	}
	return tokens[0]
}

func isUnitToken(token string) bool {
	loc := unitTokenPattern.FindStringIndex(token)
	return loc != nil && loc[0] == 0 && loc[1] == len(token)
}

// fuzzyTokenMatch checks if two tokens are similar within the edit distance threshold
func fuzzyTokenMatch(token1, token2 string, threshold int) bool {
	if token1 == token2 {
		return true
	}

	// Only apply fuzzy matching to longer tokens to avoid false positives
	len1 := utf8.RuneCountInString(token1)
	len2 := utf8.RuneCountInString(token2)
	if len1 < 5 || len2 < 5 {
		return false
	}

	lenDiff := len1 - len2
	if lenDiff < 0 {
		lenDiff = -lenDiff
	}
	if lenDiff > threshold {
		return false
	}

	return levenshteinDistance(token1, token2) <= threshold
}

// levenshteinDistance calculates the edit distance between two strings
func levenshteinDistance(s1, s2 string) int {
	r1 := []rune(s1)
	r2 := []rune(s2)
	m := len(r1)
	n := len(r2)
	if m == 0 {
		return n
	}
	if n == 0 {
		return m
	}

	// Use two rows instead of full matrix for space efficiency
	prev := make([]int, n+1)
	curr := make([]int, n+1)
	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[n]
}
