package dataprocessing

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "bmidash/internal/errors"
	"bmidash/pkg/contracts/domain"
)

// Column names of the dataset contract
const (
	ColumnSex         = "Sex"
	ColumnIncomeGroup = "WorldBankIncomeGroup"
	ColumnTimeDim     = "TimeDim"
	ColumnPrevalence  = "Prevalence"
)

// maxSkippedLines bounds how many skipped line numbers LoadStats remembers
const maxSkippedLines = 50

// ErrMissingColumn is returned when the header lacks a required column
var ErrMissingColumn = errors.New("missing required column")

// LoadStats describes the outcome of reading one dataset source
type LoadStats struct {
	Source       string `json:"source"`
	Rows         int    `json:"rows"`
	Loaded       int    `json:"loaded"`
	Skipped      int    `json:"skipped"`
	SkippedLines []int  `json:"skipped_lines,omitempty"`
}

// ParseOptions configures column lookup
type ParseOptions struct {
	// ValueColumn names the measurement column. Defaults to Prevalence.
	ValueColumn string
}

func (o ParseOptions) valueColumn() string {
	if o.ValueColumn == "" {
		return ColumnPrevalence
	}
	return o.ValueColumn
}

type columnIndex struct {
	sex, group, year, value int
	width                   int
}

func resolveColumns(header []string, opts ParseOptions) (columnIndex, error) {
	idx := columnIndex{sex: -1, group: -1, year: -1, value: -1}
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		switch {
		case strings.EqualFold(name, ColumnSex):
			idx.sex = i
		case strings.EqualFold(name, ColumnIncomeGroup):
			idx.group = i
		case strings.EqualFold(name, ColumnTimeDim):
			idx.year = i
		case strings.EqualFold(name, opts.valueColumn()):
			idx.value = i
		}
	}

	var missing []string
	if idx.sex < 0 {
		missing = append(missing, ColumnSex)
	}
	if idx.group < 0 {
		missing = append(missing, ColumnIncomeGroup)
	}
	if idx.year < 0 {
		missing = append(missing, ColumnTimeDim)
	}
	if idx.value < 0 {
		missing = append(missing, opts.valueColumn())
	}
	if len(missing) > 0 {
		return idx, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}

	idx.width = max(idx.sex, idx.group, idx.year, idx.value) + 1
	return idx, nil
}

// parseRow converts one data row. ok is false for malformed rows.
func parseRow(row []string, idx columnIndex) (domain.Record, bool) {
	if len(row) < idx.width {
		return domain.Record{}, false
	}

	sex, err := domain.ParseSex(row[idx.sex])
	if err != nil {
		return domain.Record{}, false
	}

	group := strings.TrimSpace(row[idx.group])
	if group == "" {
		return domain.Record{}, false
	}

	year, ok := parseYear(row[idx.year])
	if !ok {
		return domain.Record{}, false
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(row[idx.value]), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return domain.Record{}, false
	}

	return domain.Record{
		Sex:                  sex,
		WorldBankIncomeGroup: domain.IncomeGroup(group),
		TimeDim:              year,
		Prevalence:           value,
	}, true
}

// parseYear accepts "1975" and integral floats such as "1975.0". Years
// outside the int32 range are malformed.
func parseYear(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if year, err := strconv.ParseInt(raw, 10, 32); err == nil {
		return int(year), true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// rowSource yields rows with the 1-based source line each one starts on
type rowSource interface {
	next() ([]string, int, error)
}

func collect(src rowSource, kind domain.DatasetKind, name string, opts ParseOptions) (domain.Dataset, LoadStats, error) {
	stats := LoadStats{Source: name}
	ds := domain.Dataset{Kind: kind}

	header, _, err := src.next()
	if err == io.EOF {
		return ds, stats, apperrors.NewParsingError("dataset has no header row", ErrMissingColumn)
	}
	if err != nil {
		return ds, stats, apperrors.NewParsingError("read header", err)
	}

	idx, err := resolveColumns(header, opts)
	if err != nil {
		return ds, stats, apperrors.NewParsingError("resolve columns", err).WithContext("source", name)
	}

	for {
		row, line, err := src.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				stats.Rows++
				stats.skip(line)
				continue
			}
			return ds, stats, apperrors.NewParsingError(fmt.Sprintf("read line %d", line), err)
		}
		if isBlank(row) {
			continue
		}
		stats.Rows++
		rec, ok := parseRow(row, idx)
		if !ok {
			stats.skip(line)
			continue
		}
		ds.Records = append(ds.Records, rec)
		stats.Loaded++
	}
	return ds, stats, nil
}

func (s *LoadStats) skip(line int) {
	s.Skipped++
	if len(s.SkippedLines) < maxSkippedLines {
		s.SkippedLines = append(s.SkippedLines, line)
	}
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

type csvSource struct {
	r *csv.Reader
}

func (c csvSource) next() ([]string, int, error) {
	row, err := c.r.Read()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, perr.StartLine, err
		}
		return nil, 0, err
	}
	line, _ := c.r.FieldPos(0)
	return row, line, nil
}

// ParseCSV reads a delimited dataset. Malformed rows are skipped and counted
// in the returned stats; a missing header column is an error.
func ParseCSV(r io.Reader, kind domain.DatasetKind, opts ParseOptions) (domain.Dataset, LoadStats, error) {
	return parseDelimited(r, ',', kind, "csv", opts)
}

func parseDelimited(r io.Reader, comma rune, kind domain.DatasetKind, name string, opts ParseOptions) (domain.Dataset, LoadStats, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return collect(csvSource{r: reader}, kind, name, opts)
}

type sliceSource struct {
	rows [][]string
	pos  int
}

func (s *sliceSource) next() ([]string, int, error) {
	if s.pos >= len(s.rows) {
		return nil, 0, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, s.pos, nil
}

// ParseXLSX reads the first sheet of a workbook with the same column contract
// as ParseCSV.
func ParseXLSX(path string, kind domain.DatasetKind, opts ParseOptions) (domain.Dataset, LoadStats, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return domain.Dataset{Kind: kind}, LoadStats{Source: path}, apperrors.NewParsingError("open workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return domain.Dataset{Kind: kind}, LoadStats{Source: path}, apperrors.NewParsingError("workbook has no sheets", nil)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return domain.Dataset{Kind: kind}, LoadStats{Source: path}, apperrors.NewParsingError("read sheet "+sheets[0], err)
	}
	return collect(&sliceSource{rows: rows}, kind, path, opts)
}

// LoadFile opens path and parses it according to its extension
func LoadFile(path string, kind domain.DatasetKind, opts ParseOptions) (domain.Dataset, LoadStats, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ParseXLSX(path, kind, opts)
	case ".csv", ".tsv", ".txt":
	default:
		return domain.Dataset{Kind: kind}, LoadStats{Source: path},
			apperrors.NewParsingError("unsupported dataset format "+filepath.Ext(path), nil)
	}

	file, err := os.Open(path)
	if err != nil {
		return domain.Dataset{Kind: kind}, LoadStats{Source: path}, apperrors.NewStorageError("open dataset", err)
	}
	defer file.Close()

	comma := ','
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		comma = '\t'
	}
	return parseDelimited(file, comma, kind, path, opts)
}
