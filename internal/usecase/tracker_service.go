package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pricelens/backend/internal/domain"
)

// TrackerConfig holds configuration for the tracker service
type TrackerConfig struct {
	Concurrency int
}

// TrackerService runs a full price-resolution pass over every observed store
// and hands the aggregated records and alerts downstream.
type TrackerService struct {
	catalog      *domain.Catalog
	orchestrator *Orchestrator
	aggregator   *Aggregator
	notifier     domain.AlertNotifier
	history      domain.RunHistory
	concurrency  int
	logger       *zap.Logger
}

// NewTrackerService creates a tracker service. notifier may be nil.
func NewTrackerService(
	catalog *domain.Catalog,
	orchestrator *Orchestrator,
	aggregator *Aggregator,
	notifier domain.AlertNotifier,
	config TrackerConfig,
	logger *zap.Logger,
) *TrackerService {
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.L()
	}

	return &TrackerService{
		catalog:      catalog,
		orchestrator: orchestrator,
		aggregator:   aggregator,
		notifier:     notifier,
		concurrency:  concurrency,
		logger:       logger.Named("tracker"),
	}
}

// SetHistory makes every completed run persist to history
func (s *TrackerService) SetHistory(history domain.RunHistory) {
	s.history = history
}

// Catalog returns the catalog the service resolves against
func (s *TrackerService) Catalog() *domain.Catalog {
	return s.catalog
}

// Run resolves every observation and aggregates the result.
// Flow: resolve stores (bounded parallel) -> merge -> aggregate -> notify -> record
// A store that fails contributes no prices; the run still returns a record
// for every catalog product.
func (s *TrackerService) Run(ctx context.Context, observations []domain.StoreObservation) (*domain.RunResult, error) {
	if len(observations) == 0 {
		return nil, fmt.Errorf("%w: no store observations", domain.ErrInvalidRequest)
	}

	runID := uuid.NewString()
	log := s.logger.With(zap.String("run_id", runID))
	started := time.Now()

	resolutions := make([]domain.StoreResolution, len(observations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, obs := range observations {
		g.Go(func() error {
			resolutions[i] = s.resolveStore(gctx, obs)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrapf(err, "run %s cancelled", runID)
	}

	prices, failed := s.merge(resolutions)
	records := s.aggregator.Aggregate(s.catalog, prices)
	alerts := Alerts(records)
	summary := Summarize(records, failed)

	log.Info("run complete",
		zap.Int("stores", len(observations)),
		zap.Int("products_with_prices", summary.ProductsWithPrices),
		zap.Int("total_products", summary.TotalProducts),
		zap.Int("alerts", summary.AlertCount),
		zap.Strings("failed_stores", failed),
		zap.Duration("elapsed", time.Since(started)))

	if len(alerts) > 0 && s.notifier != nil {
		if err := s.notifier.NotifyAlerts(ctx, runID, s.aggregator.Threshold(), alerts); err != nil {
			log.Error("alert notification failed", zap.Error(err))
		}
	}

	result := &domain.RunResult{
		RunID:       runID,
		StartedAt:   started.UTC(),
		Records:     records,
		Alerts:      alerts,
		Summary:     summary,
		Resolutions: resolutions,
	}

	if s.history != nil {
		if err := s.history.SaveRun(ctx, result); err != nil {
			log.Error("saving run history failed", zap.Error(err))
		}
	}

	return result, nil
}

// resolveStore isolates one store run: errors and panics turn into an empty
// resolution carrying the error text.
func (s *TrackerService) resolveStore(ctx context.Context, obs domain.StoreObservation) (res domain.StoreResolution) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("store resolution panicked", zap.String("store", obs.StoreID), zap.Any("panic", r))
			res = failedResolution(obs.StoreID, eris.Errorf("panic: %v", r))
		}
	}()

	resolution, err := s.orchestrator.ResolveStore(ctx, obs)
	if err != nil {
		s.logger.Error("store resolution failed", zap.String("store", obs.StoreID), zap.Error(err))
		return failedResolution(obs.StoreID, err)
	}
	return resolution
}

func failedResolution(storeID string, err error) domain.StoreResolution {
	return domain.StoreResolution{
		StoreID: storeID,
		Matches: map[int]domain.MatchResult{},
		Err:     eris.Wrapf(domain.ErrStoreResolution, "store %s: %v", storeID, err).Error(),
	}
}

// merge builds the per-store price map. When a store was observed twice the
// first resolution to fill a slot wins.
func (s *TrackerService) merge(resolutions []domain.StoreResolution) (domain.PerStorePriceMap, []string) {
	prices := make(domain.PerStorePriceMap)
	var failed []string

	for _, res := range resolutions {
		if res.Err != "" {
			failed = append(failed, res.StoreID)
			continue
		}
		for _, id := range sortedResultIDs(res.Matches) {
			if _, taken := prices.Get(id, res.StoreID); taken {
				continue
			}
			prices.Set(id, res.StoreID, res.Matches[id].ResolvedPrice)
		}
	}
	return prices, failed
}
