// Package report renders run results as workbooks, JSON and console summaries.
package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/pricelens/backend/internal/domain"
)

const (
	PricesSheet  = "Prices"
	SummarySheet = "Summary"
)

// StatusLabel is the label written for a record status
func StatusLabel(s domain.Status) string {
	switch s {
	case domain.StatusOK:
		return "OK"
	case domain.StatusAttention:
		return "ВНИМАНИЕ"
	default:
		return "НЯМА ДАННИ"
	}
}

// BuildWorkbook lays out a run result as a workbook with one price row per
// product and a summary sheet. Store columns follow the order of stores.
func BuildWorkbook(result *domain.RunResult, stores []domain.StoreConfig) (*xlsx.File, error) {
	f := xlsx.NewFile()

	prices, err := f.AddSheet(PricesSheet)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add prices sheet")
	}

	header := []string{"ID", "Product", "Unit", "Reference", "Reference (alt)"}
	for _, s := range stores {
		header = append(header, storeLabel(s))
	}
	header = append(header, "Average", "Average (alt)", "Deviation %", "Status")
	addStringRow(prices, header)

	for _, rec := range result.Records {
		row := prices.AddRow()
		row.AddCell().SetInt(rec.ID)
		row.AddCell().SetString(rec.Name)
		row.AddCell().SetString(rec.UnitSpec)
		row.AddCell().SetFloat(rec.ReferencePrice)
		row.AddCell().SetFloat(rec.ReferencePriceAlt)
		for _, s := range stores {
			addOptionalFloat(row, rec.PerStorePrices[s.ID])
		}
		addOptionalFloat(row, rec.AveragePrice)
		addOptionalFloat(row, rec.AveragePriceAlt)
		addOptionalFloat(row, rec.DeviationPercent)
		row.AddCell().SetString(StatusLabel(rec.Status))
	}

	summary, err := f.AddSheet(SummarySheet)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: add summary sheet")
	}
	addStringRow(summary, []string{"Run", result.RunID})

	row := summary.AddRow()
	row.AddCell().SetString("Products with prices")
	row.AddCell().SetInt(result.Summary.ProductsWithPrices)
	row = summary.AddRow()
	row.AddCell().SetString("Total products")
	row.AddCell().SetInt(result.Summary.TotalProducts)
	row = summary.AddRow()
	row.AddCell().SetString("Alerts")
	row.AddCell().SetInt(result.Summary.AlertCount)
	for _, id := range result.Summary.FailedStores {
		addStringRow(summary, []string{"Failed store", id})
	}

	for _, alert := range result.Alerts {
		row := summary.AddRow()
		row.AddCell().SetString(alert.Name)
		addOptionalFloat(row, alert.DeviationPercent)
	}

	return f, nil
}

// WriteXLSX builds the workbook and saves it to path
func WriteXLSX(path string, result *domain.RunResult, stores []domain.StoreConfig) error {
	f, err := BuildWorkbook(result, stores)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func storeLabel(s domain.StoreConfig) string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

func addStringRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// addOptionalFloat leaves the cell empty for absent values
func addOptionalFloat(row *xlsx.Row, v *float64) {
	cell := row.AddCell()
	if v != nil {
		cell.SetFloat(*v)
	}
}
