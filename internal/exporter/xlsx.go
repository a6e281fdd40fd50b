package exporter

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"bmidash/pkg/contracts/domain"
)

const selectionSheet = "Selection"

// WorkbookExporter writes all summary tables into one xlsx workbook. Each
// dataset gets a sheet with one column per income group and a line chart.
type WorkbookExporter struct {
	logger *slog.Logger
}

// NewWorkbookExporter creates a workbook exporter
func NewWorkbookExporter(logger *slog.Logger) *WorkbookExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkbookExporter{logger: logger.With(slog.String("component", "xlsx_exporter"))}
}

// Workbook is the content of one export
type Workbook struct {
	Selection  domain.Selection
	ComputedAt time.Time
	Summaries  map[domain.DatasetKind]domain.SummaryTable
	Charts     []domain.ChartSpec
}

// Write encodes wb to w
func (e *WorkbookExporter) Write(w io.Writer, wb Workbook) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := e.writeSelection(f, wb, header); err != nil {
		return err
	}
	for _, spec := range wb.Charts {
		if err := e.writeDataset(f, spec, wb.Summaries[spec.Kind], header); err != nil {
			return fmt.Errorf("write %s sheet: %w", spec.Kind, err)
		}
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("remove default sheet: %w", err)
	}
	if idx, err := f.GetSheetIndex(selectionSheet); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("encode workbook: %w", err)
	}
	e.logger.Info("workbook exported",
		slog.String("sex", string(wb.Selection.Sex)),
		slog.Int("sheets", len(wb.Charts)+1))
	return nil
}

func (e *WorkbookExporter) writeSelection(f *excelize.File, wb Workbook, header int) error {
	if _, err := f.NewSheet(selectionSheet); err != nil {
		return fmt.Errorf("create selection sheet: %w", err)
	}

	maxYear := "all"
	if wb.Selection.MaxYear > 0 {
		maxYear = formatYear(wb.Selection.MaxYear)
	}
	rows := [][]interface{}{
		{"Field", "Value"},
		{"Sex", string(wb.Selection.Sex)},
		{"MaxYear", maxYear},
		{"ComputedAt", wb.ComputedAt.UTC().Format(time.RFC3339)},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(selectionSheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(selectionSheet, "A1", "B1", header); err != nil {
		return err
	}
	return f.SetColWidth(selectionSheet, "A", "B", 24)
}

// writeDataset pivots table to one row per year and one column per group
func (e *WorkbookExporter) writeDataset(f *excelize.File, spec domain.ChartSpec, table domain.SummaryTable, header int) error {
	sheet := string(spec.Kind)
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	groups, series := table.Series()
	years := distinctYears(table)

	headerRow := []interface{}{"TimeDim"}
	for _, g := range groups {
		headerRow = append(headerRow, string(g))
	}
	if err := f.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		return err
	}

	rowOf := make(map[int]int, len(years))
	for i, y := range years {
		rowOf[y] = i + 2
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetCellValue(sheet, cell, y); err != nil {
			return err
		}
	}
	for col, g := range groups {
		for _, row := range series[g] {
			cell, _ := excelize.CoordinatesToCellName(col+2, rowOf[row.TimeDim])
			if err := f.SetCellValue(sheet, cell, row.Prevalence); err != nil {
				return err
			}
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(groups) + 1)
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", header); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 20); err != nil {
		return err
	}

	if len(groups) == 0 {
		return nil
	}
	return addLineChart(f, sheet, spec, groups, len(years))
}

func addLineChart(f *excelize.File, sheet string, spec domain.ChartSpec, groups []domain.IncomeGroup, years int) error {
	lastRow := years + 1
	chartSeries := make([]excelize.ChartSeries, 0, len(groups))
	for i := range groups {
		col, _ := excelize.ColumnNumberToName(i + 2)
		chartSeries = append(chartSeries, excelize.ChartSeries{
			Name:       fmt.Sprintf("'%s'!$%s$1", sheet, col),
			Categories: fmt.Sprintf("'%s'!$A$2:$A$%d", sheet, lastRow),
			Values:     fmt.Sprintf("'%s'!$%s$2:$%s$%d", sheet, col, col, lastRow),
		})
	}

	anchor, _ := excelize.ColumnNumberToName(len(groups) + 3)
	return f.AddChart(sheet, anchor+"2", &excelize.Chart{
		Type:   excelize.Line,
		Series: chartSeries,
		Title:  []excelize.RichTextRun{{Text: spec.Title}},
		Legend: excelize.ChartLegend{Position: "bottom"},
		XAxis:  excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: spec.XLabel}}},
		YAxis:  excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: spec.YLabel}}},
		Dimension: excelize.ChartDimension{
			Width:  uint(spec.Width),
			Height: uint(spec.Height),
		},
	})
}

func distinctYears(table domain.SummaryTable) []int {
	years := make([]int, 0)
	seen := make(map[int]bool)
	for _, row := range table {
		if !seen[row.TimeDim] {
			seen[row.TimeDim] = true
			years = append(years, row.TimeDim)
		}
	}
	return years
}
