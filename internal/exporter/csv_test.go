package exporter

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bmidash/pkg/contracts/domain"
)

func sampleTable() domain.SummaryTable {
	return domain.SummaryTable{
		{WorldBankIncomeGroup: domain.IncomeLower, TimeDim: 1999, Prevalence: 20.0},
		{WorldBankIncomeGroup: domain.IncomeHigh, TimeDim: 2000, Prevalence: 25.0},
		{WorldBankIncomeGroup: domain.IncomeLower, TimeDim: 2000, Prevalence: 21.5},
	}
}

func TestWriteSummary(t *testing.T) {
	tests := []struct {
		name       string
		opts       WriteOptions
		wantBOM    bool
		wantHeader []string
	}{
		{"plain", WriteOptions{}, false, SummaryHeaders},
		{"bom", WriteOptions{BOMPrefix: true}, true, SummaryHeaders},
		{"custom value header", WriteOptions{ValueHeader: "MeanBMI"}, false, []string{"WorldBankIncomeGroup", "TimeDim", "MeanBMI"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, NewCSVWriter(nil).WriteSummary(&buf, sampleTable(), tt.opts))

			data := buf.Bytes()
			assert.Equal(t, tt.wantBOM, bytes.HasPrefix(data, utf8BOM))
			data = bytes.TrimPrefix(data, utf8BOM)

			records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
			require.NoError(t, err)
			require.Len(t, records, 4)
			assert.Equal(t, tt.wantHeader, records[0])
			assert.Equal(t, []string{"LowerIncome", "1999", "20"}, records[1])
			assert.Equal(t, []string{"LowerIncome", "2000", "21.5"}, records[3])
		})
	}
}

func TestWriteSummaryEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSVWriter(nil).WriteSummary(&buf, nil, WriteOptions{}))
	assert.Equal(t, "WorldBankIncomeGroup,TimeDim,Prevalence\n", buf.String())
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "mean_Male.csv")

	require.NoError(t, NewCSVWriter(nil).WriteFile(path, sampleTable(), WriteOptions{BOMPrefix: true}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, utf8BOM))
	assert.Contains(t, string(data), "HighIncome,2000,25")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "mean_Male.csv", FileName(domain.DatasetMean, domain.Selection{Sex: domain.SexMale}, "csv"))
	assert.Equal(t, "underweight_BothSexes_to2000.csv",
		FileName(domain.DatasetUnderweight, domain.Selection{Sex: domain.SexBoth, MaxYear: 2000}, "csv"))
}
