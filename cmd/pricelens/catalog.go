package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pricelens/backend/internal/infrastructure/catalogfile"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the loaded product catalog and stores",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if dump, _ := cmd.Flags().GetBool("default"); dump {
			_, err := cmd.OutOrStdout().Write(catalogfile.Default())
			return err
		}

		catalog, err := catalogfile.Load(cfg.Catalog.Path)
		if err != nil {
			return err
		}

		rows := make([][]string, 0, catalog.Len())
		for _, p := range catalog.Products() {
			rows = append(rows, []string{
				strconv.Itoa(p.ID),
				p.CanonicalName,
				p.UnitSpec,
				strconv.FormatFloat(p.ReferencePrice, 'f', 2, 64),
				strconv.FormatFloat(p.ReferencePriceAlt, 'f', 2, 64),
			})
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, renderTable(
			[]string{"ID", "Product", "Unit", "Reference", "Reference (alt)"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight},
		))

		storeRows := make([][]string, 0, len(catalog.Stores()))
		for _, s := range catalog.Stores() {
			storeRows = append(storeRows, []string{s.ID, s.Name, tolerance(s.Tolerance), tolerance(s.LexicalTolerance)})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Store", "Name", "Tolerance", "Lexical tolerance"},
			storeRows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
		))
		return nil
	},
}

func tolerance(v float64) string {
	if v <= 0 {
		return "default"
	}
	return fmt.Sprintf("±%.0f%%", v*100)
}

func init() {
	catalogCmd.Flags().Bool("default", false, "print the built-in catalog YAML, a starting point for catalog.path")
}
