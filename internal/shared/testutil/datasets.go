package testutil

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"bmidash/pkg/contracts/domain"
)

// DatasetHeader is the column order used by the fixtures
var DatasetHeader = []string{"Sex", "WorldBankIncomeGroup", "TimeDim", "Prevalence"}

// SampleRecords returns a small dataset covering every sex, two years, one
// unrecognized income group and a duplicate (group, year) pair.
func SampleRecords() []domain.Record {
	return []domain.Record{
		{Sex: domain.SexMale, WorldBankIncomeGroup: domain.IncomeHigh, TimeDim: 2000, Prevalence: 24.0},
		{Sex: domain.SexMale, WorldBankIncomeGroup: domain.IncomeHigh, TimeDim: 2000, Prevalence: 26.0},
		{Sex: domain.SexFemale, WorldBankIncomeGroup: domain.IncomeHigh, TimeDim: 2000, Prevalence: 30.0},
		{Sex: domain.SexMale, WorldBankIncomeGroup: domain.IncomeLower, TimeDim: 1999, Prevalence: 20.0},
		{Sex: domain.SexMale, WorldBankIncomeGroup: "NotAGroup", TimeDim: 2000, Prevalence: 99.0},
		{Sex: domain.SexBoth, WorldBankIncomeGroup: domain.IncomeUpperMiddle, TimeDim: 2001, Prevalence: 27.5},
		{Sex: domain.SexBoth, WorldBankIncomeGroup: domain.IncomeLowerMiddle, TimeDim: 2000, Prevalence: 23.1},
	}
}

// SampleDataset wraps SampleRecords as a dataset of kind
func SampleDataset(kind domain.DatasetKind) domain.Dataset {
	return domain.Dataset{Kind: kind, Records: SampleRecords()}
}

// RecordRows converts records to CSV rows, header first
func RecordRows(records []domain.Record) [][]string {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, DatasetHeader)
	for _, r := range records {
		rows = append(rows, []string{
			string(r.Sex),
			string(r.WorldBankIncomeGroup),
			strconv.Itoa(r.TimeDim),
			strconv.FormatFloat(r.Prevalence, 'f', -1, 64),
		})
	}
	return rows
}

// WriteDatasetCSV writes records to a CSV file in t.TempDir and returns its path
func WriteDatasetCSV(t *testing.T, records []domain.Record) string {
	t.Helper()
	return WriteRawCSV(t, "dataset.csv", RecordRows(records))
}

// WriteRawCSV writes rows verbatim, for malformed-input tests
func WriteRawCSV(t *testing.T, name string, rows [][]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	writeRows(t, path, rows)
	return path
}

// WriteDatasetDir writes records under the default file name of every
// dataset kind into one directory and returns it
func WriteDatasetDir(t *testing.T, records []domain.Record) string {
	t.Helper()

	dir := t.TempDir()
	for _, name := range []string{"dataset_mean.csv", "dataset_over.csv", "dataset_under.csv"} {
		writeRows(t, filepath.Join(dir, name), RecordRows(records))
	}
	return dir
}

func writeRows(t *testing.T, path string, rows [][]string) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}
