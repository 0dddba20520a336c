package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/app"
	"github.com/pricelens/backend/internal/infrastructure/report"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		return withHistory(cmd.Context(), func(a *app.App) error {
			runs, err := a.History.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.RunID,
					r.StartedAt.Local().Format(time.DateTime),
					fmt.Sprintf("%d/%d", r.Summary.ProductsWithPrices, r.Summary.TotalProducts),
					strconv.Itoa(r.Summary.AlertCount),
					strconv.Itoa(len(r.Summary.FailedStores)),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Run", "Started", "Priced", "Alerts", "Failed stores"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		})
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the price table of a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		return withHistory(cmd.Context(), func(a *app.App) error {
			result, err := a.History.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return report.WriteJSON(out, result)
			}

			rows := make([][]string, 0, len(result.Records))
			for _, r := range result.Records {
				deviation := "-"
				if r.DeviationPercent != nil {
					deviation = fmt.Sprintf("%+.1f%%", *r.DeviationPercent)
				}
				rows = append(rows, []string{
					strconv.Itoa(r.ID),
					r.Name,
					strconv.FormatFloat(r.ReferencePrice, 'f', 2, 64),
					formatPrice(r.AveragePrice),
					deviation,
					report.StatusLabel(r.Status),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Product", "Reference", "Average", "Deviation", "Status"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return report.WriteSummary(out, result, a.Aggregator.Threshold())
		})
	},
}

var runsHistoryCmd = &cobra.Command{
	Use:   "history <product-id>",
	Short: "Show the stored store prices of one product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return eris.Errorf("product id must be an integer, got %q", args[0])
		}
		limit, _ := cmd.Flags().GetInt("limit")

		return withHistory(cmd.Context(), func(a *app.App) error {
			product, ok := a.Catalog.Product(id)
			if !ok {
				return eris.Errorf("product %d is not in the catalog", id)
			}
			points, err := a.History.ProductHistory(cmd.Context(), id, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s), reference %.2f\n", product.CanonicalName, product.UnitSpec, product.ReferencePrice)
			if len(points) == 0 {
				fmt.Fprintln(out, "No prices recorded.")
				return nil
			}

			rows := make([][]string, 0, len(points))
			for _, p := range points {
				rows = append(rows, []string{
					p.StartedAt.Local().Format(time.DateTime),
					p.RunID,
					p.StoreID,
					strconv.FormatFloat(p.Price, 'f', 2, 64),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Started", "Run", "Store", "Price"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		})
	},
}

// withHistory builds the app and fails early when no history database is configured
func withHistory(ctx context.Context, fn func(a *app.App) error) error {
	if cfg.History.Path == "" {
		return eris.New("run history is not configured (set history.path)")
	}
	a, err := app.New(ctx, cfg, zap.L())
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck
	return fn(a)
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	runsShowCmd.Flags().Bool("json", false, "print the stored result as JSON")
	runsHistoryCmd.Flags().Int("limit", 50, "maximum number of prices to list")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsHistoryCmd)
}
