package dataprocessing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"bmidash/internal/shared/testutil"
	"bmidash/pkg/contracts/domain"
)

func TestParseCSV(t *testing.T) {
	input := strings.Join([]string{
		"\ufeffId,Sex,WorldBankIncomeGroup,TimeDim,Prevalence",
		"1,Male,HighIncome,1975,24.5",
		"2,Female,LowerIncome,1976.0,19",
		"3,Unknown,HighIncome,1977,20",
		"4,Male,,1977,20",
		"5,Male,HighIncome,soon,20",
		"6,Male,HighIncome,1978,n/a",
		"7,Male,HighIncome",
		"8, BothSexes ,UpperMiddleIncome,1979,NaN",
		"9,BothSexes,UpperMiddleIncome,1980,27.25",
	}, "\n")

	ds, stats, err := ParseCSV(strings.NewReader(input), domain.DatasetMean, ParseOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.DatasetMean, ds.Kind)
	assert.Equal(t, []domain.Record{
		rec(domain.SexMale, domain.IncomeHigh, 1975, 24.5),
		rec(domain.SexFemale, domain.IncomeLower, 1976, 19),
		rec(domain.SexBoth, domain.IncomeUpperMiddle, 1980, 27.25),
	}, ds.Records)
	assert.Equal(t, 9, stats.Rows)
	assert.Equal(t, 3, stats.Loaded)
	assert.Equal(t, 6, stats.Skipped)
	assert.Equal(t, []int{4, 5, 6, 7, 8, 9}, stats.SkippedLines)
}

func TestParseCSV_SkippedLinesFollowTheFile(t *testing.T) {
	input := strings.Join([]string{
		"Sex,WorldBankIncomeGroup,TimeDim,Prevalence",
		"Male,HighIncome,1975,24.5",
		"",
		"Male,HighIncome,soon,1",
		`Male,"Lower`,
		`Income",1976,2`,
		"Female,LowerIncome,1977,x",
	}, "\n")

	ds, stats, err := ParseCSV(strings.NewReader(input), domain.DatasetMean, ParseOptions{})
	require.NoError(t, err)

	assert.Len(t, ds.Records, 2)
	assert.Equal(t, domain.IncomeGroup("Lower\nIncome"), ds.Records[1].WorldBankIncomeGroup)
	assert.Equal(t, 4, stats.Rows)
	assert.Equal(t, []int{4, 7}, stats.SkippedLines)
}

func TestParseYear(t *testing.T) {
	tests := []struct {
		raw  string
		want int
		ok   bool
	}{
		{"1975", 1975, true},
		{" 2016 ", 2016, true},
		{"1980.0", 1980, true},
		{"1980.5", 0, false},
		{"1e300", 0, false},
		{"-1e300", 0, false},
		{"99999999999", 0, false},
		{"Inf", 0, false},
		{"NaN", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := parseYear(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCSV_ValueColumn(t *testing.T) {
	input := "Sex,WorldBankIncomeGroup,TimeDim,Value\nMale,HighIncome,2000,26.1\n"

	_, _, err := ParseCSV(strings.NewReader(input), domain.DatasetMean, ParseOptions{})
	assert.ErrorIs(t, err, ErrMissingColumn)

	ds, _, err := ParseCSV(strings.NewReader(input), domain.DatasetMean, ParseOptions{ValueColumn: "Value"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Record{rec(domain.SexMale, domain.IncomeHigh, 2000, 26.1)}, ds.Records)
}

func TestParseCSV_MissingColumns(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no sex", "WorldBankIncomeGroup,TimeDim,Prevalence\n", "Sex"},
		{"no year or value", "Sex,WorldBankIncomeGroup\n", "TimeDim, Prevalence"},
		{"empty file", "", "no header"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseCSV(strings.NewReader(tt.input), domain.DatasetOverweight, ParseOptions{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingColumn)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseCSV_OnlyHeader(t *testing.T) {
	ds, stats, err := ParseCSV(strings.NewReader("Sex,WorldBankIncomeGroup,TimeDim,Prevalence\n"), domain.DatasetMean, ParseOptions{})
	require.NoError(t, err)
	assert.Empty(t, ds.Records)
	assert.Zero(t, stats.Rows)
}

func TestParseXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset_under.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Sex", "WorldBankIncomeGroup", "TimeDim", "Prevalence"},
		{"Female", "LowerMiddleIncome", 1990, 7.5},
		{"Male", "HighIncome", "not a year", 1.2},
		{"Male", "HighIncome", 1991, 1.25},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	ds, stats, err := LoadFile(path, domain.DatasetUnderweight, ParseOptions{})
	require.NoError(t, err)

	assert.Equal(t, []domain.Record{
		rec(domain.SexFemale, domain.IncomeLowerMiddle, 1990, 7.5),
		rec(domain.SexMale, domain.IncomeHigh, 1991, 1.25),
	}, ds.Records)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, []int{3}, stats.SkippedLines)
}

func TestLoadFile(t *testing.T) {
	t.Run("csv", func(t *testing.T) {
		path := testutil.WriteDatasetCSV(t, testutil.SampleRecords())
		ds, stats, err := LoadFile(path, domain.DatasetMean, ParseOptions{})
		require.NoError(t, err)
		assert.Equal(t, testutil.SampleRecords(), ds.Records)
		assert.Equal(t, path, stats.Source)
	})

	t.Run("tsv", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dataset.tsv")
		require.NoError(t, os.WriteFile(path, []byte("Sex\tWorldBankIncomeGroup\tTimeDim\tPrevalence\nMale\tHighIncome\t2001\t3.5\n"), 0o644))
		ds, _, err := LoadFile(path, domain.DatasetMean, ParseOptions{})
		require.NoError(t, err)
		assert.Equal(t, []domain.Record{rec(domain.SexMale, domain.IncomeHigh, 2001, 3.5)}, ds.Records)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := LoadFile(filepath.Join(t.TempDir(), "absent.csv"), domain.DatasetMean, ParseOptions{})
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, _, err := LoadFile("dataset.parquet", domain.DatasetMean, ParseOptions{})
		assert.ErrorContains(t, err, "unsupported dataset format")
	})
}
