package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"

	"github.com/pricelens/backend/internal/domain"
)

// WriteJSON writes the run result as indented JSON
func WriteJSON(w io.Writer, result *domain.RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return eris.Wrap(err, "json: encode run result")
	}
	return nil
}

// WriteSummary prints a short console summary: coverage, alert count and one
// line per attention product with its signed deviation.
func WriteSummary(w io.Writer, result *domain.RunResult, threshold float64) error {
	s := result.Summary
	lines := []string{
		fmt.Sprintf("Run %s", result.RunID),
		fmt.Sprintf("Products with prices: %d/%d", s.ProductsWithPrices, s.TotalProducts),
		fmt.Sprintf("Alerts (>%.0f%%): %d", threshold, s.AlertCount),
	}
	for _, id := range s.FailedStores {
		lines = append(lines, fmt.Sprintf("  store %s failed", id))
	}
	for _, alert := range result.Alerts {
		if alert.DeviationPercent == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s: %+.1f%%", alert.Name, *alert.DeviationPercent))
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return eris.Wrap(err, "write summary")
		}
	}
	return nil
}
