package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

// Orchestrator resolves one store at a time through the fixed stage order
// semantic -> lexical -> visual. Each stage only fills gaps left by the
// stages before it.
type Orchestrator struct {
	catalog   *domain.Catalog
	semantic  *SemanticAdapter
	lexical   *LexicalMatcher
	visual    *VisualAdapter
	currency  *CurrencyDisambiguator
	validator *PriceValidator
	logger    *zap.Logger
}

// NewOrchestrator creates an orchestrator. semantic and visual may be nil, in
// which case those stages are skipped.
func NewOrchestrator(
	catalog *domain.Catalog,
	semantic *SemanticAdapter,
	lexical *LexicalMatcher,
	visual *VisualAdapter,
	currency *CurrencyDisambiguator,
	validator *PriceValidator,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.L()
	}
	return &Orchestrator{
		catalog:   catalog,
		semantic:  semantic,
		lexical:   lexical,
		visual:    visual,
		currency:  currency,
		validator: validator,
		logger:    logger.Named("orchestrator"),
	}
}

// ResolveStore runs the three stages for one store observation. The returned
// resolution holds at most one validated MatchResult per product.
func (o *Orchestrator) ResolveStore(ctx context.Context, obs domain.StoreObservation) (domain.StoreResolution, error) {
	resolution := domain.StoreResolution{
		StoreID: obs.StoreID,
		Matches: make(map[int]domain.MatchResult),
	}

	store, ok := o.catalog.Store(obs.StoreID)
	if !ok {
		return resolution, fmt.Errorf("%w: %q", domain.ErrStoreNotFound, obs.StoreID)
	}
	log := o.logger.With(zap.String("store", store.ID))

	candidates := storeCandidates(obs)

	// Stage 1: semantic match over all raw candidates
	if o.semantic != nil && len(candidates) > 0 {
		raw := o.semantic.Match(ctx, o.catalog.Items(false), candidates)
		tolerance := o.validator.ToleranceFor(store, domain.StageSemantic)
		for _, id := range sortedIDs(raw) {
			product, ok := o.catalog.Product(id)
			if !ok {
				continue
			}
			price, currency := o.currency.ToBase(raw[id], product.ReferencePrice)
			if !o.validator.Accept(price, product, tolerance) {
				log.Debug("semantic price rejected",
					zap.Int("product_id", id),
					zap.Float64("raw_price", raw[id]),
					zap.Float64("price", price),
					zap.String("currency", string(currency)))
				continue
			}
			o.fill(resolution.Matches, id, price, domain.TierHigh, domain.StageSemantic)
		}
		log.Info("semantic stage done", zap.Int("resolved", len(resolution.Matches)))
	}
	if err := ctx.Err(); err != nil {
		return resolution, err
	}

	// Stage 2: lexical fallback, only for products still unfilled
	text := storeText(obs, candidates)
	if unfilled := o.unfilled(resolution.Matches); len(unfilled) > 0 && text != "" {
		lexical, err := o.lexical.Match(ctx, text, unfilled, o.validator.ToleranceFor(store, domain.StageLexical))
		if err != nil {
			return resolution, err
		}
		for _, id := range sortedResultIDs(lexical) {
			m := lexical[id]
			o.fill(resolution.Matches, id, m.ResolvedPrice, m.ConfidenceTier, domain.StageLexical)
		}
		log.Info("lexical stage done", zap.Int("added", len(lexical)), zap.Int("resolved", len(resolution.Matches)))
	}
	if err := ctx.Err(); err != nil {
		return resolution, err
	}

	// Stage 3: visual cross-check; confirmations are notes, additions fill gaps
	if o.visual != nil && len(obs.Listings) > 0 {
		outcome := o.visual.Reconcile(ctx, o.catalog, store, obs.Listings, resolution.Matches)
		for _, id := range sortedResultIDs(outcome.Additions) {
			m := outcome.Additions[id]
			o.fill(resolution.Matches, id, m.ResolvedPrice, m.ConfidenceTier, domain.StageVisual)
		}
		resolution.Confirmations = outcome.Notes
		log.Info("visual stage done",
			zap.Int("added", len(outcome.Additions)),
			zap.Int("notes", len(outcome.Notes)),
			zap.Int("resolved", len(resolution.Matches)))
	}
	if err := ctx.Err(); err != nil {
		return resolution, err
	}

	return resolution, nil
}

// fill records a validated price unless the slot is already taken
func (o *Orchestrator) fill(matches map[int]domain.MatchResult, id int, price float64, tier domain.ConfidenceTier, stage domain.Stage) bool {
	if _, taken := matches[id]; taken {
		return false
	}
	pid := id
	matches[id] = domain.MatchResult{
		ProductID:      &pid,
		ResolvedPrice:  price,
		ConfidenceTier: tier,
		OriginStage:    stage,
	}
	return true
}

func (o *Orchestrator) unfilled(matches map[int]domain.MatchResult) []domain.CatalogProduct {
	var out []domain.CatalogProduct
	for _, p := range o.catalog.Products() {
		if _, ok := matches[p.ID]; !ok {
			out = append(out, p)
		}
	}
	return out
}

// storeCandidates keeps the candidates that belong to this store and stamps
// the store id on the ones that carry none
func storeCandidates(obs domain.StoreObservation) []domain.RawCandidate {
	out := make([]domain.RawCandidate, 0, len(obs.Candidates))
	for _, c := range obs.Candidates {
		if c.SourceStoreID != "" && c.SourceStoreID != obs.StoreID {
			continue
		}
		if strings.TrimSpace(c.DisplayName) == "" || c.RawPrice <= 0 {
			continue
		}
		c.SourceStoreID = obs.StoreID
		out = append(out, c)
	}
	return out
}

// storeText returns the observation text, or a text rendering of the candidates
// when the extractor supplied none
func storeText(obs domain.StoreObservation, candidates []domain.RawCandidate) string {
	if strings.TrimSpace(obs.Text) != "" {
		return obs.Text
	}
	var b strings.Builder
	for _, c := range candidates {
		b.WriteString(c.DisplayName)
		b.WriteString(" ")
		b.WriteString(strconv.FormatFloat(c.RawPrice, 'f', 2, 64))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func sortedIDs(m map[int]float64) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func sortedResultIDs(m map[int]domain.MatchResult) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
