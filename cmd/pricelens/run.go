package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/app"
	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/infrastructure/observations"
	"github.com/pricelens/backend/internal/infrastructure/report"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Resolve prices for one set of store observations",
	Long:  "Loads store observations from a JSON document, runs the resolution pipeline and writes the summary, plus optional JSON and XLSX reports.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		obsPath, _ := cmd.Flags().GetString("observations")
		jsonPath, _ := cmd.Flags().GetString("json")
		xlsxPath, _ := cmd.Flags().GetString("xlsx")
		if c, _ := cmd.Flags().GetInt("concurrency"); c > 0 {
			cfg.Pipeline.Concurrency = c
		}

		obs, err := observations.Load(obsPath)
		if err != nil {
			return err
		}

		a, err := app.New(ctx, cfg, zap.L())
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		result, err := a.Tracker.Run(ctx, obs)
		if err != nil {
			return eris.Wrap(err, "run")
		}

		out := cmd.OutOrStdout()
		if err := report.WriteSummary(out, result, cfg.Pipeline.AlertThreshold); err != nil {
			return err
		}

		if jsonPath != "" {
			if err := writeJSONReport(out, jsonPath, result); err != nil {
				return err
			}
		}
		if xlsxPath != "" {
			if err := report.WriteXLSX(xlsxPath, result, a.Catalog.Stores()); err != nil {
				return err
			}
			zap.L().Info("xlsx report written", zap.String("path", xlsxPath))
		}

		return nil
	},
}

// writeJSONReport writes to path, or to out when path is "-"
func writeJSONReport(out io.Writer, path string, result *domain.RunResult) error {
	if path == "-" {
		return report.WriteJSON(out, result)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := report.WriteJSON(f, result); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "close %s", path)
	}
	zap.L().Info("json report written", zap.String("path", path))
	return nil
}

func init() {
	runCmd.Flags().String("observations", "", "path to the observations JSON document")
	runCmd.Flags().String("json", "", "write the full run result as JSON (\"-\" for stdout)")
	runCmd.Flags().String("xlsx", "", "write the price table workbook to this path")
	runCmd.Flags().Int("concurrency", 0, "stores resolved in parallel (overrides pipeline.concurrency)")
	_ = runCmd.MarkFlagRequired("observations")
}
