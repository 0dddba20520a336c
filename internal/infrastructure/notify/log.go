// Package notify hands alert sets to an operator channel.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

// LogNotifier reports alerts as structured log entries, one per product
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier writing to logger
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.L()
	}
	return &LogNotifier{logger: logger.Named("alerts")}
}

// NotifyAlerts implements domain.AlertNotifier. An empty alert set is not reported.
func (n *LogNotifier) NotifyAlerts(ctx context.Context, runID string, threshold float64, alerts []domain.AggregatedRecord) error {
	if len(alerts) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	n.logger.Warn("price deviation alert",
		zap.String("run_id", runID),
		zap.Float64("threshold_percent", threshold),
		zap.Int("count", len(alerts)),
	)
	for _, a := range alerts {
		fields := []zap.Field{
			zap.String("run_id", runID),
			zap.Int("product_id", a.ID),
			zap.String("name", a.Name),
			zap.Float64("reference_price", a.ReferencePrice),
		}
		if a.AveragePrice != nil {
			fields = append(fields, zap.Float64("average_price", *a.AveragePrice))
		}
		if a.DeviationPercent != nil {
			fields = append(fields, zap.Float64("deviation_percent", *a.DeviationPercent))
		}
		n.logger.Warn("product above threshold", fields...)
	}
	return nil
}
