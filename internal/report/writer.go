package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// Header is the column header of the semicolon report.
var Header = []string{"period", "wbs_key", "qty", "unit", "LH_theo", "LH_actual", "delta", "delta_%", "productivity"}

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "variance"

func (r Row) record() []string {
	return []string{
		r.Period,
		r.WorkItemKey,
		strconv.FormatFloat(r.Quantity, 'f', -1, 64),
		r.Unit,
		strconv.FormatFloat(r.Theoretical, 'f', 2, 64),
		strconv.FormatFloat(r.Observed, 'f', 2, 64),
		strconv.FormatFloat(r.Delta, 'f', 2, 64),
		strconv.FormatFloat(r.DeltaPercent, 'f', 1, 64),
		strconv.FormatFloat(r.Productivity, 'f', 3, 64),
	}
}

// WriteCSV writes rows as semicolon-delimited text with Header as the first line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return fmt.Errorf("failed to write row %s: %w", r.WorkItemKey, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes rows as a single-sheet workbook with the same header. Numeric columns are
// stored as numbers.
func WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{
			r.Period, r.WorkItemKey, r.Quantity, r.Unit,
			round(r.Theoretical, 2), round(r.Observed, 2), round(r.Delta, 2),
			round(r.DeltaPercent, 1), round(r.Productivity, 3),
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %s: %w", r.WorkItemKey, err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func round(v float64, places int) float64 {
	n, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	return n
}
