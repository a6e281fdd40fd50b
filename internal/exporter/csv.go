package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"bmidash/pkg/contracts/domain"
)

// utf8BOM helps Excel recognize UTF-8
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SummaryHeaders is the column order of exported summary tables
var SummaryHeaders = []string{"WorldBankIncomeGroup", "TimeDim", "Prevalence"}

// CSVWriter writes summary tables as CSV
type CSVWriter struct {
	logger *slog.Logger
}

// NewCSVWriter creates a new CSV writer instance
func NewCSVWriter(logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{logger: logger.With(slog.String("component", "csv_exporter"))}
}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	// ValueHeader replaces the Prevalence column name
	ValueHeader string
	BOMPrefix   bool
}

// WriteSummary writes table to w, header first
func (cw *CSVWriter) WriteSummary(w io.Writer, table domain.SummaryTable, opts WriteOptions) error {
	if opts.BOMPrefix {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	headers := append([]string(nil), SummaryHeaders...)
	if opts.ValueHeader != "" {
		headers[2] = opts.ValueHeader
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, row := range table {
		record := []string{string(row.WorldBankIncomeGroup), formatYear(row.TimeDim), formatFloat(row.Prevalence)}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFile writes table to path, creating parent directories
func (cw *CSVWriter) WriteFile(path string, table domain.SummaryTable, opts WriteOptions) error {
	cw.logger.Info("writing CSV file",
		slog.String("file_path", path),
		slog.Int("record_count", len(table)))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := cw.WriteSummary(file, table, opts); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// FileName returns the export file name for a dataset and selection
func FileName(kind domain.DatasetKind, sel domain.Selection, ext string) string {
	name := fmt.Sprintf("%s_%s", kind, sel.Sex)
	if sel.MaxYear > 0 {
		name = fmt.Sprintf("%s_to%d", name, sel.MaxYear)
	}
	return name + "." + ext
}
