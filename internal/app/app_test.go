package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bmidash/internal/config"
	"bmidash/internal/shared/testutil"
	api "bmidash/pkg/contracts/api/v1"
	"bmidash/pkg/contracts/domain"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Data.MeanFile = testutil.WriteDatasetCSV(t, testutil.SampleRecords())
	cfg.Data.OverweightFile = testutil.WriteDatasetCSV(t, testutil.SampleRecords())
	cfg.Data.UnderweightFile = testutil.WriteDatasetCSV(t, testutil.SampleRecords())
	cfg.Storage.Path = filepath.Join(t.TempDir(), "db", "bmidash.db")
	cfg.Server.Port = 0
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	a, err := NewApplication(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	return a
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewApplication_RequiresConfig(t *testing.T) {
	_, err := NewApplication(nil, nil)
	assert.Error(t, err)
}

func TestDatasetSources(t *testing.T) {
	cfg := config.Default()
	cfg.Data.Dir = "/srv/data"

	sources := DatasetSources(cfg)

	require.Len(t, sources, 3)
	assert.Equal(t, domain.DatasetMean, sources[0].Kind)
	assert.Equal(t, filepath.Join("/srv/data", "dataset_mean.csv"), sources[0].Path)
	assert.Equal(t, domain.DatasetOverweight, sources[1].Kind)
	assert.Equal(t, domain.DatasetUnderweight, sources[2].Kind)
}

func TestApplication_NotReadyBeforeBootstrap(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	assert.Equal(t, http.StatusOK, do(t, a.Router, http.MethodGet, "/api/health", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, a.Router, http.MethodGet, "/api/health/ready", "").Code)

	rec := do(t, a.Router, http.MethodGet, "/api/dashboard", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}

func TestApplication_SelectionFlow(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	require.NoError(t, a.Bootstrap(context.Background()))

	require.Equal(t, http.StatusOK, do(t, a.Router, http.MethodGet, "/api/health/ready", "").Code)

	rec := do(t, a.Router, http.MethodPut, "/api/selection", `{"sex":"Male"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, a.Router, http.MethodGet, "/api/summaries/mean", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary api.SummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, domain.SexMale, summary.Sex)
	assert.Equal(t, domain.SummaryTable{
		{WorldBankIncomeGroup: domain.IncomeLower, TimeDim: 1999, Prevalence: 20},
		{WorldBankIncomeGroup: domain.IncomeHigh, TimeDim: 2000, Prevalence: 25},
	}, summary.Table)

	rec = do(t, a.Router, http.MethodGet, "/api/snapshots", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var snaps api.SnapshotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snaps))
	assert.NotZero(t, snaps.Count)

	rec = do(t, a.Router, http.MethodGet, "/api/charts/overweight.svg", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))

	rec = do(t, a.Router, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<option value="Male" selected>Male</option>`)
}

func TestApplication_ReportsSkippedRows(t *testing.T) {
	cfg := testConfig(t)
	rows := append(testutil.RecordRows(testutil.SampleRecords()), []string{"Female", "LowerIncome", "1980", "n/a"})
	cfg.Data.MeanFile = testutil.WriteRawCSV(t, "mean.csv", rows)

	a := newTestApp(t, cfg)
	require.NoError(t, a.Bootstrap(context.Background()))

	rec := do(t, a.Router, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var dash api.DashboardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dash))
	assert.Equal(t, 1, dash.Stats[domain.DatasetMean].Skipped)
	assert.Equal(t, 0, dash.Stats[domain.DatasetUnderweight].Skipped)

	rec = do(t, a.Router, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-skipped="1">7 of 8 rows loaded, 1 skipped</p>`)
}

func TestApplication_SelectionSurvivesRestart(t *testing.T) {
	cfg := testConfig(t)

	first := newTestApp(t, cfg)
	require.NoError(t, first.Bootstrap(context.Background()))
	rec := do(t, first.Router, http.MethodPut, "/api/selection", `{"sex":"Female","max_year":2000}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, first.Stop(context.Background()))

	second := newTestApp(t, cfg)
	require.NoError(t, second.Bootstrap(context.Background()))
	assert.Equal(t, domain.Selection{Sex: domain.SexFemale, MaxYear: 2000}, second.Dashboard.Selection())
}

func TestApplication_ErrorsAreProblems(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	rec := do(t, a.Router, http.MethodGet, "/api/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, float64(http.StatusNotFound), problem["status"])
}

func TestApplication_RejectsMalformedJSON(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	require.NoError(t, a.Bootstrap(context.Background()))

	rec := do(t, a.Router, http.MethodPut, "/api/selection", `{"sex":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "INVALID_JSON", problem["error_code"])
	assert.Equal(t, domain.SexBoth, a.Dashboard.Selection().Sex)
}

func TestApplication_MetricsEndpoint(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	require.NoError(t, a.Bootstrap(context.Background()))

	rec := do(t, a.Router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
