// Package app wires configuration into a ready-to-run pipeline shared by the
// CLI and the HTTP server.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pricelens/backend/config"
	httpDelivery "github.com/pricelens/backend/internal/delivery/http"
	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/infrastructure/anthropic"
	"github.com/pricelens/backend/internal/infrastructure/cache"
	"github.com/pricelens/backend/internal/infrastructure/catalogfile"
	"github.com/pricelens/backend/internal/infrastructure/notify"
	"github.com/pricelens/backend/internal/infrastructure/sqlite"
	"github.com/pricelens/backend/internal/usecase"
)

const (
	shutdownTimeout        = 15 * time.Second
	defaultCleanupInterval = 10 * time.Minute
	purgeTimeout           = 30 * time.Second
)

// App holds the wired pipeline and the resources it owns
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Catalog    *domain.Catalog
	Tracker    *usecase.TrackerService
	Aggregator *usecase.Aggregator
	History    domain.RunHistory

	closers []func() error
}

// New loads the catalog and builds every pipeline component from cfg.
// The model-backed stages are only wired when an API key is configured.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.L()
	}
	a := &App{Config: cfg, Logger: logger}

	catalog, err := catalogfile.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	a.Catalog = catalog

	responseCache, err := a.openCache(ctx)
	if err != nil {
		a.Close() //nolint:errcheck
		return nil, err
	}
	if err := a.openHistory(ctx); err != nil {
		a.Close() //nolint:errcheck
		return nil, err
	}

	p := cfg.Pipeline
	currency := usecase.NewCurrencyDisambiguator(p.ExchangeRate, p.PriceFloor)
	validator := usecase.NewPriceValidator(p.DefaultTolerance, p.LexicalTolerance)
	lexical := usecase.NewLexicalMatcher(usecase.LexicalConfig{
		WindowBefore:        p.WindowBefore,
		WindowAfter:         p.WindowAfter,
		EnableFuzzyMatching: p.FuzzyMatching,
		FuzzyEditDistance:   p.FuzzyEditDistance,
		EnableDebugLogging:  p.DebugLogging,
	}, currency, validator, logger)

	var (
		semantic *usecase.SemanticAdapter
		visual   *usecase.VisualAdapter
	)
	if cfg.Anthropic.Enabled() {
		client := anthropic.NewClient(anthropic.Config{
			APIKey:            cfg.Anthropic.APIKey,
			BaseURL:           cfg.Anthropic.BaseURL,
			RequestsPerMinute: cfg.Anthropic.RequestsPerMinute,
		}, logger)

		semantic = usecase.NewSemanticAdapter(anthropic.NewSemanticMatcher(client), responseCache, usecase.SemanticConfig{
			Primary:                    domain.MatchStrategy{Name: "primary", Model: cfg.Anthropic.PrimaryModel, MaxTokens: cfg.Anthropic.MaxTokens},
			Degraded:                   domain.MatchStrategy{Name: "degraded", Model: cfg.Anthropic.DegradedModel, MaxTokens: cfg.Anthropic.MaxTokens},
			DegradedRetryMinCandidates: p.DegradedRetryMinCandidates,
			CallTimeout:                p.AdapterTimeout,
			CacheTTL:                   cfg.Cache.TTL,
		}, logger)

		visual = usecase.NewVisualAdapter(
			anthropic.NewVisualChecker(client, cfg.Anthropic.VisionModel, cfg.Anthropic.VisionMaxTokens),
			currency, validator,
			usecase.VisualConfig{
				SampleSize:       p.VisualSampleSize,
				ConfirmThreshold: p.ConfirmThreshold,
				CallTimeout:      p.AdapterTimeout,
			}, logger)
	} else {
		logger.Warn("no Anthropic API key configured, only the lexical stage will run")
	}

	orchestrator := usecase.NewOrchestrator(catalog, semantic, lexical, visual, currency, validator, logger)
	a.Aggregator = usecase.NewAggregator(currency, p.AlertThreshold)
	a.Tracker = usecase.NewTrackerService(catalog, orchestrator, a.Aggregator, notify.NewLogNotifier(logger),
		usecase.TrackerConfig{Concurrency: p.Concurrency}, logger)
	if a.History != nil {
		a.Tracker.SetHistory(a.History)
	}

	logger.Info("pipeline ready",
		zap.Int("products", catalog.Len()),
		zap.Int("stores", len(catalog.Stores())),
		zap.Bool("semantic", semantic != nil),
		zap.Bool("visual", visual != nil),
		zap.String("cache", cfg.Cache.Type),
		zap.Bool("history", a.History != nil),
		zap.Int("concurrency", p.Concurrency))

	return a, nil
}

func (a *App) openCache(ctx context.Context) (domain.CacheRepository, error) {
	switch a.Config.Cache.Type {
	case "sqlite":
		db, err := sqlite.Open(ctx, a.Config.Cache.Path)
		if err != nil {
			return nil, eris.Wrap(err, "open response cache")
		}
		a.closers = append(a.closers, db.Close)
		c := sqlite.NewCache(db)
		a.closers = append(a.closers, a.purgeExpired(c))
		return c, nil
	default:
		mem := cache.NewMemoryCache(a.Config.Cache.CleanupInterval, a.Logger)
		a.closers = append(a.closers, func() error { mem.Close(); return nil })
		return mem, nil
	}
}

// purgeExpired drops expired sqlite cache rows now and then every cleanup
// interval. The returned func stops the loop and waits for it.
func (a *App) purgeExpired(c *sqlite.Cache) func() error {
	interval := a.Config.Cache.CleanupInterval
	if interval <= 0 {
		interval = defaultCleanupInterval
	}

	purge := func() {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()
		n, err := c.PurgeExpired(ctx)
		if err != nil {
			a.Logger.Warn("purging expired cache entries failed", zap.Error(err))
			return
		}
		if n > 0 {
			a.Logger.Debug("expired cache entries purged", zap.Int("count", n))
		}
	}
	purge()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				purge()
			case <-done:
				return
			}
		}
	}()

	return func() error {
		close(done)
		wg.Wait()
		return nil
	}
}

func (a *App) openHistory(ctx context.Context) error {
	if a.Config.History.Path == "" {
		return nil
	}
	db, err := sqlite.Open(ctx, a.Config.History.Path)
	if err != nil {
		return eris.Wrap(err, "open run history")
	}
	a.closers = append(a.closers, db.Close)
	a.History = sqlite.NewHistory(db)
	return nil
}

// Router builds the HTTP router over the wired tracker
func (a *App) Router() *gin.Engine {
	handler := httpDelivery.NewHandler(a.Tracker, a.History, a.Config.Server.RequestTimeout, a.Logger)
	return httpDelivery.SetupRouter(a.Config, handler, a.Logger)
}

// Close releases caches and databases in reverse order of opening
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down gracefully
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + a.Config.Server.Port,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("environment", a.Config.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return eris.Wrap(err, "http server")
		}
		return nil
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "http server shutdown")
	}
	return <-errCh
}
