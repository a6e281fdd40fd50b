package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "bmidash/internal/errors"
	"bmidash/internal/services"
	api "bmidash/pkg/contracts/api/v1"
	"bmidash/pkg/contracts/domain"
	"bmidash/pkg/contracts/events"
)

func newDashboardRouter(svc *MockDashboardService) http.Handler {
	r := chi.NewRouter()
	NewDashboardHandler(svc, discardLogger(), newErrorHandler()).RegisterRoutes(r)
	return r
}

func TestDashboardHandler_GetSelection(t *testing.T) {
	svc := new(MockDashboardService)
	svc.On("Selection").Return(domain.Selection{Sex: domain.SexFemale})

	rec := serve(newDashboardRouter(svc), http.MethodGet, "/selection", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.SelectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.SexFemale, resp.Selection.Sex)
	assert.Equal(t, domain.Sexes(), resp.Options)
}

func TestDashboardHandler_PutSelection(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		serviceErr  error
		wantStatus  int
		wantType    string
		wantService bool
	}{
		{
			name:        "valid selection",
			body:        `{"sex":"Male","max_year":2000}`,
			wantStatus:  http.StatusOK,
			wantService: true,
		},
		{
			name:       "unknown sex",
			body:       `{"sex":"Other"}`,
			wantStatus: http.StatusBadRequest,
			wantType:   apierrors.TypeInvalidFilter,
		},
		{
			name:       "missing sex",
			body:       `{"max_year":2000}`,
			wantStatus: http.StatusBadRequest,
			wantType:   apierrors.TypeValidation,
		},
		{
			name:       "year out of range",
			body:       `{"sex":"Male","max_year":1200}`,
			wantStatus: http.StatusBadRequest,
			wantType:   apierrors.TypeValidation,
		},
		{
			name:       "malformed json",
			body:       `{"sex":`,
			wantStatus: http.StatusBadRequest,
			wantType:   apierrors.TypeValidation,
		},
		{
			name:        "datasets still loading",
			body:        `{"sex":"Female"}`,
			serviceErr:  services.ErrNotReady,
			wantStatus:  http.StatusServiceUnavailable,
			wantType:    apierrors.TypeServiceDown,
			wantService: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockDashboardService)
			if tt.wantService {
				svc.On("SetSelection", mock.Anything, mock.AnythingOfType("domain.Selection")).
					Return(func() events.SummaryUpdate {
						var req api.SelectionRequest
						_ = json.Unmarshal([]byte(tt.body), &req)
						return events.SummaryUpdate{Selection: req.ToSelection(), ComputedAt: time.Now()}
					}(), tt.serviceErr)
			}

			rec := serve(newDashboardRouter(svc), http.MethodPut, "/selection", strings.NewReader(tt.body))

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantType != "" {
				assert.Equal(t, tt.wantType, decodeProblem(t, rec)["type"])
			}
			if tt.serviceErr != nil {
				assert.Equal(t, "2", rec.Header().Get("Retry-After"))
			}
			if !tt.wantService {
				svc.AssertNotCalled(t, "SetSelection", mock.Anything, mock.Anything)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestDashboardHandler_PutSelectionRequiresJSON(t *testing.T) {
	svc := new(MockDashboardService)
	req := strings.NewReader(`sex=Male`)
	h := newDashboardRouter(svc)

	rec := serveWithType(h, http.MethodPut, "/selection", req, "application/x-www-form-urlencoded")

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	svc.AssertNotCalled(t, "SetSelection", mock.Anything, mock.Anything)
}

func TestDashboardHandler_GetSummary(t *testing.T) {
	svc := new(MockDashboardService)
	svc.On("Summary", mock.Anything, domain.DatasetOverweight, domain.SexMale).Return(api.SummaryResponse{
		Dataset: domain.DatasetOverweight,
		Sex:     domain.SexMale,
		Rows:    4,
		Table:   sampleTable(),
	}, nil)

	rec := serve(newDashboardRouter(svc), http.MethodGet, "/summaries/overweight?sex=Male", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp api.SummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Rows)
	assert.Equal(t, sampleTable(), resp.Table)
	svc.AssertExpectations(t)
}

func TestDashboardHandler_GetSummaryRejectsInput(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantType   string
	}{
		{"unknown dataset", "/summaries/obese", http.StatusNotFound, apierrors.TypeDatasetNotFound},
		{"unknown sex", "/summaries/mean?sex=Other", http.StatusBadRequest, apierrors.TypeInvalidFilter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockDashboardService)
			rec := serve(newDashboardRouter(svc), http.MethodGet, tt.target, nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantType, decodeProblem(t, rec)["type"])
			svc.AssertNotCalled(t, "Summary", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestDashboardHandler_GetChart(t *testing.T) {
	svc := new(MockDashboardService)
	svc.On("Summary", mock.Anything, domain.DatasetMean, domain.Sex("")).Return(api.SummaryResponse{
		Dataset: domain.DatasetMean,
		Sex:     domain.SexBoth,
		Table:   sampleTable(),
	}, nil)

	rec := serve(newDashboardRouter(svc), http.MethodGet, "/charts/mean.svg", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), "<svg")
}

func TestDashboardHandler_GetChartUnknownFormat(t *testing.T) {
	svc := new(MockDashboardService)

	rec := serve(newDashboardRouter(svc), http.MethodGet, "/charts/mean.gif", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apierrors.TypeValidation, decodeProblem(t, rec)["type"])
}

func TestDashboardHandler_ExportCSV(t *testing.T) {
	svc := new(MockDashboardService)
	svc.On("Summary", mock.Anything, domain.DatasetUnderweight, domain.SexFemale).Return(api.SummaryResponse{
		Dataset: domain.DatasetUnderweight,
		Sex:     domain.SexFemale,
		Table:   sampleTable(),
	}, nil)

	rec := serve(newDashboardRouter(svc), http.MethodGet, "/export/underweight.csv?sex=Female", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	body := rec.Body.String()
	assert.Contains(t, body, "WorldBankIncomeGroup,TimeDim,Prevalence")
	assert.Contains(t, body, "HighIncome,2001,26.25")
}

func TestDashboardHandler_ExportWorkbook(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		svc := new(MockDashboardService)
		svc.On("Status").Return(events.SystemStatus{Phase: events.PhaseReady, Ready: true})
		svc.On("Snapshot").Return(
			domain.Selection{Sex: domain.SexMale},
			map[domain.DatasetKind]domain.SummaryTable{
				domain.DatasetMean:        sampleTable(),
				domain.DatasetOverweight:  sampleTable(),
				domain.DatasetUnderweight: sampleTable(),
			},
			time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		)

		rec := serve(newDashboardRouter(svc), http.MethodGet, "/export/workbook.xlsx", nil)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "bmidash_Male_20240301T120000.xlsx")
		// xlsx files are zip archives
		assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"))
	})

	t.Run("not ready", func(t *testing.T) {
		svc := new(MockDashboardService)
		svc.On("Status").Return(events.SystemStatus{Phase: events.PhaseLoading})

		rec := serve(newDashboardRouter(svc), http.MethodGet, "/export/workbook.xlsx", nil)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		svc.AssertNotCalled(t, "Snapshot")
	})
}

func TestDashboardHandler_GetSnapshots(t *testing.T) {
	t.Run("default limit", func(t *testing.T) {
		svc := new(MockDashboardService)
		svc.On("Snapshots", mock.Anything, defaultSnapshotLimit).Return([]api.Snapshot{
			{ID: "a", Dataset: domain.DatasetMean, Sex: domain.SexMale, Rows: 3},
		}, nil)

		rec := serve(newDashboardRouter(svc), http.MethodGet, "/snapshots", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp api.SnapshotsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
		svc.AssertExpectations(t)
	})

	t.Run("limit out of range", func(t *testing.T) {
		svc := new(MockDashboardService)
		rec := serve(newDashboardRouter(svc), http.MethodGet, "/snapshots?limit=0", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("storage disabled", func(t *testing.T) {
		svc := new(MockDashboardService)
		svc.On("Snapshots", mock.Anything, 5).Return(nil, services.ErrNoStore)

		rec := serve(newDashboardRouter(svc), http.MethodGet, "/snapshots?limit=5", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, apierrors.TypeNotFound, decodeProblem(t, rec)["type"])
	})
}

func TestDashboardHandler_GetDashboard(t *testing.T) {
	svc := new(MockDashboardService)
	svc.On("Dashboard", mock.Anything).Return(api.DashboardResponse{
		Selection: domain.DefaultSelection(),
		Charts: []api.ChartView{
			{Spec: domain.DefaultChartSpecs()[0], Table: sampleTable(), ImageURL: "/api/charts/mean.svg?sex=BothSexes"},
		},
	}, nil)

	rec := serve(newDashboardRouter(svc), http.MethodGet, "/dashboard", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"image_url":"/api/charts/mean.svg?sex=BothSexes"`)
}
