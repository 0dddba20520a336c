package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

// VisualConfig holds configuration for the visual cross-checker adapter
type VisualConfig struct {
	SampleSize       int
	ConfirmThreshold float64
	CallTimeout      time.Duration
}

// VisualAdapter classifies listing images and reconciles the guesses with
// text-derived prices. Image classification is the least constrained signal,
// so a guess must pass the confidence, price and keyword gates before use.
type VisualAdapter struct {
	checker          domain.VisualChecker
	currency         *CurrencyDisambiguator
	validator        *PriceValidator
	sampleSize       int
	confirmThreshold float64
	callTimeout      time.Duration
	logger           *zap.Logger
}

// VisualOutcome is the result of reconciling one store's listings
type VisualOutcome struct {
	Additions map[int]domain.MatchResult
	Notes     []domain.VisualReconcileNote
}

// NewVisualAdapter creates the adapter with defaults for zero values
func NewVisualAdapter(
	checker domain.VisualChecker,
	currency *CurrencyDisambiguator,
	validator *PriceValidator,
	config VisualConfig,
	logger *zap.Logger,
) *VisualAdapter {
	sample := config.SampleSize
	if sample <= 0 {
		sample = 5
	}
	threshold := config.ConfirmThreshold
	if threshold <= 0 {
		threshold = 0.05
	}
	timeout := config.CallTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.L()
	}

	return &VisualAdapter{
		checker:          checker,
		currency:         currency,
		validator:        validator,
		sampleSize:       sample,
		confirmThreshold: threshold,
		callTimeout:      timeout,
		logger:           logger.Named("visual"),
	}
}

// Reconcile classifies up to the sample size of listings and compares each
// gated guess with the price already resolved for that product at this store.
// Existing prices are never changed: agreement is a confirmation, disagreement
// is a logged contradiction. Only empty slots receive additions.
func (a *VisualAdapter) Reconcile(
	ctx context.Context,
	catalog *domain.Catalog,
	store domain.StoreConfig,
	listings []domain.ListingImage,
	filled map[int]domain.MatchResult,
) VisualOutcome {
	outcome := VisualOutcome{Additions: make(map[int]domain.MatchResult)}
	if a == nil || a.checker == nil || len(listings) == 0 {
		return outcome
	}

	if len(listings) > a.sampleSize {
		listings = listings[:a.sampleSize]
	}
	items := catalog.Items(true)
	tolerance := a.validator.ToleranceFor(store, domain.StageVisual)

	for _, listing := range listings {
		if ctx.Err() != nil {
			return outcome
		}

		guess, ok := a.classify(ctx, listing, items)
		if !ok || guess.ProductID == nil {
			continue
		}

		product, ok := catalog.Product(*guess.ProductID)
		if !ok {
			a.logger.Debug("visual guess outside catalog", zap.Int("product_id", *guess.ProductID))
			continue
		}

		price, gated := a.gate(guess, product, listing, tolerance)
		if !gated {
			continue
		}

		if existing, ok := filled[product.ID]; ok {
			outcome.Notes = append(outcome.Notes, a.compare(store, product.ID, existing.ResolvedPrice, price, guess.Rationale))
			continue
		}
		if _, ok := outcome.Additions[product.ID]; ok {
			continue
		}

		id := product.ID
		outcome.Additions[id] = domain.MatchResult{
			ProductID:      &id,
			ResolvedPrice:  price,
			ConfidenceTier: guess.Confidence,
			OriginStage:    domain.StageVisual,
		}
		a.logger.Info("visual stage added price",
			zap.String("store", store.ID), zap.Int("product_id", id), zap.Float64("price", price))
	}

	return outcome
}

// gate applies the confidence, price-bounds and keyword checks
func (a *VisualAdapter) gate(
	guess *domain.VisualGuess,
	product domain.CatalogProduct,
	listing domain.ListingImage,
	tolerance float64,
) (float64, bool) {
	if guess.Confidence < domain.TierMedium {
		a.logger.Debug("visual guess below medium confidence",
			zap.Int("product_id", product.ID), zap.Stringer("tier", guess.Confidence))
		return 0, false
	}

	price, _ := a.currency.ToBase(listing.DisplayedPrice, product.ReferencePrice)
	if !a.validator.Accept(price, product, tolerance) {
		a.logger.Debug("visual guess price outside tolerance",
			zap.Int("product_id", product.ID), zap.Float64("price", price))
		return 0, false
	}

	if !mentionsKeyword(listing.DisplayName, product) {
		a.logger.Debug("visual guess not backed by listing text",
			zap.Int("product_id", product.ID), zap.String("name", listing.DisplayName))
		return 0, false
	}

	return price, true
}

func (a *VisualAdapter) compare(store domain.StoreConfig, productID int, existing, visual float64, rationale string) domain.VisualReconcileNote {
	diff := relativeDeviation(visual, existing)
	note := domain.VisualReconcileNote{
		ProductID:     productID,
		ExistingPrice: existing,
		VisualPrice:   visual,
		Difference:    math.Round(diff*1000) / 1000,
		Confirmed:     diff < a.confirmThreshold,
		Rationale:     rationale,
	}
	if note.Confirmed {
		a.logger.Info("visual stage confirmed price",
			zap.String("store", store.ID), zap.Int("product_id", productID), zap.Float64("price", existing))
	} else {
		a.logger.Warn("visual stage contradicts text-derived price, keeping text price",
			zap.String("store", store.ID),
			zap.Int("product_id", productID),
			zap.Float64("text_price", existing),
			zap.Float64("visual_price", visual),
			zap.Float64("difference", note.Difference))
	}
	return note
}

// classify calls the checker under a timeout and parses its answer.
// Every failure is reported as "no guess".
func (a *VisualAdapter) classify(ctx context.Context, listing domain.ListingImage, items []domain.CatalogItem) (guess *domain.VisualGuess, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("visual checker panicked", zap.Any("panic", r))
			guess, ok = nil, false
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	text, err := a.checker.ClassifyListing(callCtx, domain.VisualRequest{Listing: listing, Items: items})
	if err != nil {
		a.logger.Warn("visual checker failed", zap.String("listing", listing.DisplayName), zap.Error(err))
		return nil, false
	}

	parsed, err := parseVisualResponse(text)
	if err != nil {
		a.logger.Warn("visual response unusable", zap.String("listing", listing.DisplayName), zap.Error(err))
		return nil, false
	}
	return parsed, true
}

// parseVisualResponse decodes {"id": n|null, "confidence": "...", "rationale": "..."}
func parseVisualResponse(text string) (*domain.VisualGuess, error) {
	raw, _, err := RepairJSON(text)
	if err != nil {
		return nil, err
	}

	var body struct {
		ID         json.RawMessage `json:"id"`
		Confidence string          `json:"confidence"`
		Rationale  string          `json:"rationale"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnrepairableResponse, err)
	}

	guess := &domain.VisualGuess{
		Confidence: domain.ParseConfidenceTier(body.Confidence),
		Rationale:  strings.TrimSpace(body.Rationale),
	}
	if id, ok := decodeID(body.ID); ok {
		guess.ProductID = &id
	} else {
		guess.Confidence = domain.TierNone
	}
	return guess, nil
}

// mentionsKeyword reports whether text contains at least one configured
// keyword of the product (unit tokens do not count)
func mentionsKeyword(text string, product domain.CatalogProduct) bool {
	folded := foldText(text)
	if folded == "" {
		return false
	}
	for _, group := range keywordGroups(product) {
		for _, token := range foldGroup(group) {
			if isUnitToken(token) || len(token) < 3 || noiseWords[token] {
				continue
			}
			if strings.Contains(folded, token) {
				return true
			}
		}
	}
	return false
}
