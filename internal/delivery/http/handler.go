package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/infrastructure/observations"
)

const (
	serviceName    = "pricelens-backend"
	serviceVersion = "1.0.0"
)

// Tracker runs resolution passes over store observations
type Tracker interface {
	Run(ctx context.Context, observations []domain.StoreObservation) (*domain.RunResult, error)
	Catalog() *domain.Catalog
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	tracker        Tracker
	history        domain.RunHistory
	requestTimeout time.Duration
	logger         *zap.Logger
}

// NewHandler creates a new HTTP handler. history may be nil.
func NewHandler(tracker Tracker, history domain.RunHistory, requestTimeout time.Duration, logger *zap.Logger) *Handler {
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Handler{
		tracker:        tracker,
		history:        history,
		requestTimeout: requestTimeout,
		logger:         logger.Named("handler"),
	}
}

// resolveResponse is the body returned for a resolution run
type resolveResponse struct {
	RunID       string                    `json:"runId"`
	StartedAt   time.Time                 `json:"startedAt"`
	Records     []domain.AggregatedRecord `json:"records"`
	Alerts      []domain.AggregatedRecord `json:"alerts"`
	Summary     domain.RunSummary         `json:"summary"`
	Resolutions []domain.StoreResolution  `json:"resolutions,omitempty"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// GetCatalog returns the products and stores every run resolves against
func (h *Handler) GetCatalog(c *gin.Context) {
	if h.tracker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tracker not configured"})
		return
	}
	catalog := h.tracker.Catalog()
	c.JSON(http.StatusOK, gin.H{
		"products": catalog.Products(),
		"stores":   catalog.Stores(),
	})
}

// ResolvePrices runs the pipeline over the posted store observations.
// Pass ?resolutions=true to include the per-store match details.
func (h *Handler) ResolvePrices(c *gin.Context) {
	if h.tracker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tracker not configured"})
		return
	}

	var req domain.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := observations.FillMediaTypes(req.Stores); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	result, err := h.tracker.Run(ctx, req.Stores)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := resolveResponse{
		RunID:     result.RunID,
		StartedAt: result.StartedAt,
		Records:   result.Records,
		Alerts:    result.Alerts,
		Summary:   result.Summary,
	}
	if c.Query("resolutions") == "true" {
		resp.Resolutions = result.Resolutions
	}
	c.JSON(http.StatusOK, resp)
}

// ListRuns returns recent runs, newest first
func (h *Handler) ListRuns(c *gin.Context) {
	if !h.requireHistory(c) {
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runs, err := h.history.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if runs == nil {
		runs = []domain.RunEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GetRun returns a stored run result
func (h *Handler) GetRun(c *gin.Context) {
	if !h.requireHistory(c) {
		return
	}
	result, err := h.history.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetProductHistory returns the validated store prices of one product across runs
func (h *Handler) GetProductHistory(c *gin.Context) {
	if !h.requireHistory(c) {
		return
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product id must be an integer"})
		return
	}
	if h.tracker != nil {
		if _, ok := h.tracker.Catalog().Product(id); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrProductNotFound.Error()})
			return
		}
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	points, err := h.history.ProductHistory(c.Request.Context(), id, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if points == nil {
		points = []domain.PricePoint{}
	}
	c.JSON(http.StatusOK, gin.H{"productId": id, "prices": points})
}

func (h *Handler) requireHistory(c *gin.Context) bool {
	if h.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "run history not configured"})
		return false
	}
	return true
}

// writeError maps domain errors onto HTTP status codes
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrRunNotFound), errors.Is(err, domain.ErrProductNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}
