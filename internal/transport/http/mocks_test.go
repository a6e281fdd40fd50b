package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "bmidash/internal/errors"
	api "bmidash/pkg/contracts/api/v1"
	"bmidash/pkg/contracts/domain"
	"bmidash/pkg/contracts/events"
)

type MockDashboardService struct {
	mock.Mock
}

func (m *MockDashboardService) Dashboard(ctx context.Context) (api.DashboardResponse, error) {
	args := m.Called(ctx)
	return args.Get(0).(api.DashboardResponse), args.Error(1)
}

func (m *MockDashboardService) Selection() domain.Selection {
	return m.Called().Get(0).(domain.Selection)
}

func (m *MockDashboardService) SetSelection(ctx context.Context, sel domain.Selection) (events.SummaryUpdate, error) {
	args := m.Called(ctx, sel)
	return args.Get(0).(events.SummaryUpdate), args.Error(1)
}

func (m *MockDashboardService) Summary(ctx context.Context, kind domain.DatasetKind, sex domain.Sex) (api.SummaryResponse, error) {
	args := m.Called(ctx, kind, sex)
	return args.Get(0).(api.SummaryResponse), args.Error(1)
}

func (m *MockDashboardService) Snapshot() (domain.Selection, map[domain.DatasetKind]domain.SummaryTable, time.Time) {
	args := m.Called()
	return args.Get(0).(domain.Selection), args.Get(1).(map[domain.DatasetKind]domain.SummaryTable), args.Get(2).(time.Time)
}

func (m *MockDashboardService) Snapshots(ctx context.Context, limit int) ([]api.Snapshot, error) {
	args := m.Called(ctx, limit)
	snaps, _ := args.Get(0).([]api.Snapshot)
	return snaps, args.Error(1)
}

func (m *MockDashboardService) Status() events.SystemStatus {
	return m.Called().Get(0).(events.SystemStatus)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newErrorHandler() *apierrors.ErrorHandler {
	return apierrors.NewErrorHandler(discardLogger(), false)
}

func sampleTable() domain.SummaryTable {
	return domain.SummaryTable{
		{WorldBankIncomeGroup: domain.IncomeLower, TimeDim: 1999, Prevalence: 20},
		{WorldBankIncomeGroup: domain.IncomeHigh, TimeDim: 2000, Prevalence: 25},
		{WorldBankIncomeGroup: domain.IncomeLower, TimeDim: 2000, Prevalence: 21.5},
		{WorldBankIncomeGroup: domain.IncomeHigh, TimeDim: 2001, Prevalence: 26.25},
	}
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem), rec.Body.String())
	return problem
}

func serve(h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	return serveWithType(h, method, target, body, "application/json")
}

func serveWithType(h http.Handler, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
