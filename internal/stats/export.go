package stats

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	overviewSheet = "Overview"
	chaptersSheet = "Chapters"
)

// WriteXLSX writes s as a workbook with an overview sheet and one row per chapter.
func WriteXLSX(w io.Writer, s Stats) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", overviewSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(chaptersSheet); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	overview := [][]any{
		{"Total lectures", s.Overall.Total},
		{"Completed lectures", s.Overall.Completed},
		{"Overall progress", s.Overall.OverallLabel()},
	}
	for i, row := range overview {
		if err := setRow(f, overviewSheet, i+1, row); err != nil {
			return err
		}
	}
	if err := f.SetColStyle(overviewSheet, "A", bold); err != nil {
		return fmt.Errorf("style overview: %w", err)
	}

	header := []any{"Batch", "Subject", "Chapter", "Completed", "Total", "Percent"}
	if err := setRow(f, chaptersSheet, 1, header); err != nil {
		return err
	}
	if err := f.SetRowStyle(chaptersSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	for i, c := range s.Ordered() {
		var pct any = "No lectures"
		if p, ok := c.Percent(); ok {
			pct = p
		}
		row := []any{c.BatchName, c.SubjectName, c.Name, c.Completed, c.Total, pct}
		if err := setRow(f, chaptersSheet, i+2, row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(chaptersSheet, "A", "C", 32); err != nil {
		return fmt.Errorf("column width: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
