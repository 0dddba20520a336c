package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

// SemanticConfig holds configuration for the semantic matcher adapter
type SemanticConfig struct {
	Primary                    domain.MatchStrategy
	Degraded                   domain.MatchStrategy
	DegradedRetryMinCandidates int
	CallTimeout                time.Duration
	CacheTTL                   time.Duration
}

// SemanticAdapter wraps the external semantic matcher with response repair,
// the degraded-strategy retry and failure isolation.
type SemanticAdapter struct {
	matcher           domain.SemanticMatcher
	cache             domain.CacheRepository
	primary           domain.MatchStrategy
	degraded          domain.MatchStrategy
	retryMinCandidate int
	callTimeout       time.Duration
	cacheTTL          time.Duration
	logger            *zap.Logger
}

// NewSemanticAdapter creates the adapter. cache may be nil.
func NewSemanticAdapter(
	matcher domain.SemanticMatcher,
	cache domain.CacheRepository,
	config SemanticConfig,
	logger *zap.Logger,
) *SemanticAdapter {
	minCandidates := config.DegradedRetryMinCandidates
	if minCandidates <= 0 {
		minCandidates = 5
	}
	timeout := config.CallTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.L()
	}

	return &SemanticAdapter{
		matcher:           matcher,
		cache:             cache,
		primary:           config.Primary,
		degraded:          config.Degraded,
		retryMinCandidate: minCandidates,
		callTimeout:       timeout,
		cacheTTL:          ttl,
		logger:            logger.Named("semantic"),
	}
}

// Match returns catalog id -> chosen raw candidate price. It never fails:
// adapter errors, timeouts and unparseable responses all yield an empty map.
func (a *SemanticAdapter) Match(
	ctx context.Context,
	items []domain.CatalogItem,
	candidates []domain.RawCandidate,
) map[int]float64 {
	if a == nil || a.matcher == nil || len(candidates) == 0 {
		return map[int]float64{}
	}

	req := domain.SemanticRequest{Items: items, Candidates: candidates}
	matches := a.call(ctx, req, a.primary, items)
	if len(matches) > 0 {
		return matches
	}

	if len(candidates) < a.retryMinCandidate || a.degraded.Model == "" {
		return matches
	}

	a.logger.Info("primary matcher returned no matches, retrying with degraded strategy",
		zap.String("primary", a.primary.Name),
		zap.String("degraded", a.degraded.Name),
		zap.Int("candidates", len(candidates)))

	return a.call(ctx, req, a.degraded, items)
}

// call performs one external request with its own timeout and converts every
// failure mode into an empty result.
func (a *SemanticAdapter) call(
	ctx context.Context,
	req domain.SemanticRequest,
	strategy domain.MatchStrategy,
	items []domain.CatalogItem,
) (matches map[int]float64) {
	matches = map[int]float64{}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("semantic matcher panicked", zap.Any("panic", r), zap.String("strategy", strategy.Name))
			matches = map[int]float64{}
		}
	}()

	key, keyErr := semanticCacheKey(req, strategy)
	if keyErr == nil && a.cache != nil {
		if cached, err := a.cache.Get(ctx, key); err == nil {
			if parsed, err := parseSemanticResponse(string(cached), items); err == nil {
				a.logger.Debug("semantic response served from cache", zap.String("strategy", strategy.Name))
				return parsed
			}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	text, err := a.matcher.MatchCandidates(callCtx, req, strategy)
	if err != nil {
		a.logger.Warn("semantic matcher failed",
			zap.String("strategy", strategy.Name),
			zap.Bool("timeout", errors.Is(err, context.DeadlineExceeded)),
			zap.Error(err))
		return matches
	}

	parsed, err := parseSemanticResponse(text, items)
	if err != nil {
		a.logger.Warn("semantic response unusable",
			zap.String("strategy", strategy.Name), zap.Error(err))
		return matches
	}

	// An empty answer is never cached so the next run asks the model again.
	if keyErr == nil && a.cache != nil && len(parsed) > 0 {
		if err := a.cache.Set(ctx, key, []byte(text), a.cacheTTL); err != nil {
			a.logger.Debug("semantic response not cached", zap.Error(err))
		}
	}

	a.logger.Info("semantic matcher responded",
		zap.String("strategy", strategy.Name), zap.Int("matches", len(parsed)))
	return parsed
}

// semanticCacheKey creates a cache key from the request and strategy.
// Format: "semantic:{model}:{sha256(request)}"
func semanticCacheKey(req domain.SemanticRequest, strategy domain.MatchStrategy) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("semantic:%s:%s", strategy.Model, hex.EncodeToString(sum[:])), nil
}

// semanticMatchEntry is the array shape some models prefer
type semanticMatchEntry struct {
	ID    json.RawMessage `json:"id"`
	Price json.RawMessage `json:"price"`
}

// parseSemanticResponse repairs and decodes a matcher response. Two shapes are
// accepted: a flat {"<id>": price} object and {"matches": [{"id": .., "price": ..}]}.
// Ids outside the catalog and null prices are dropped.
func parseSemanticResponse(text string, items []domain.CatalogItem) (map[int]float64, error) {
	raw, _, err := RepairJSON(text)
	if err != nil {
		return nil, err
	}

	known := make(map[int]bool, len(items))
	for _, item := range items {
		known[item.ID] = true
	}

	var envelope struct {
		Matches []semanticMatchEntry `json:"matches"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Matches != nil {
		out := make(map[int]float64, len(envelope.Matches))
		for _, entry := range envelope.Matches {
			id, okID := decodeID(entry.ID)
			price, okPrice := decodePrice(entry.Price)
			if okID && okPrice && known[id] {
				out[id] = price
			}
		}
		return out, nil
	}

	var flat map[string]json.RawMessage
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnrepairableResponse, err)
	}

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[int]float64, len(flat))
	for _, k := range keys {
		id, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || !known[id] {
			continue
		}
		if price, ok := decodePrice(flat[k]); ok {
			out[id] = price
		}
	}
	return out, nil
}

func decodeID(raw json.RawMessage) (int, bool) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, true
		}
	}
	return 0, false
}

// decodePrice accepts numbers, numeric strings with comma decimals and
// {"price": n} objects. Null and non-positive values are rejected.
func decodePrice(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, f > 0
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(strings.Replace(s, ",", ".", 1))
		s = strings.TrimRight(s, " lvлв€eurbgnEURBGN")
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && v > 0 {
			return v, true
		}
		return 0, false
	}

	var obj struct {
		Price json.RawMessage `json:"price"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Price != nil {
		return decodePrice(obj.Price)
	}
	return 0, false
}
