package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bmidash/internal/shared/testutil"
	"bmidash/pkg/contracts/domain"
)

func withRequestID(r *http.Request, id string) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
	return r.WithContext(ctx)
}

func decodeProblem(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestNewErrorHandler(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)

	handler := NewErrorHandler(logger, true)
	assert.True(t, handler.includeStack)
	assert.NotNil(t, handler.logger)

	assert.NotNil(t, NewErrorHandler(nil, false).logger)
}

func TestErrorHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantTitle  string
	}{
		{
			name:       "handle nil error",
			err:        nil,
			wantStatus: http.StatusOK,
		},
		{
			name:       "handle context deadline exceeded",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
			wantType:   TypeTimeout,
			wantTitle:  "Request Timeout",
		},
		{
			name:       "handle invalid sex",
			err:        fmt.Errorf("%w: sex %q", domain.ErrInvalidFilterValue, "Other"),
			wantStatus: http.StatusBadRequest,
			wantType:   TypeInvalidFilter,
			wantTitle:  "Invalid Filter Value",
		},
		{
			name:       "handle unknown dataset",
			err:        fmt.Errorf("summary: %w", domain.ErrDatasetNotFound),
			wantStatus: http.StatusNotFound,
			wantType:   TypeDatasetNotFound,
			wantTitle:  "Dataset Not Found",
		},
		{
			name:       "handle APIError",
			err:        ErrInvalidRequest,
			wantStatus: http.StatusBadRequest,
			wantType:   TypeValidation,
			wantTitle:  "Bad Request",
		},
		{
			name:       "handle generic error",
			err:        fmt.Errorf("something went wrong"),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeInternal,
			wantTitle:  "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logHandler := testutil.NewTestLogger(t)
			handler := NewErrorHandler(logger, true)

			w := httptest.NewRecorder()
			r := withRequestID(httptest.NewRequest(http.MethodGet, "/api/summaries/mean", nil), "req-1")

			handler.HandleError(w, r, tt.err)

			if tt.err == nil {
				assert.Equal(t, 0, w.Body.Len())
				assert.Equal(t, 0, logHandler.Count())
				return
			}

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

			problem := decodeProblem(t, w.Body.Bytes())
			assert.Equal(t, tt.wantType, problem["type"])
			assert.Equal(t, tt.wantTitle, problem["title"])
			assert.Equal(t, float64(tt.wantStatus), problem["status"])
			assert.Equal(t, "/api/summaries/mean", problem["instance"])
			assert.Equal(t, "req-1", problem["trace_id"])
			assert.True(t, logHandler.ContainsMessage("request failed"))
		})
	}
}

func TestErrorHandler_ErrorToProblem(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantCode   interface{}
	}{
		{
			name:       "invalid filter value",
			err:        domain.ErrInvalidFilterValue,
			wantStatus: http.StatusBadRequest,
			wantType:   TypeInvalidFilter,
			wantCode:   CodeInvalidFilterValue,
		},
		{
			name:       "parsed dataset kind",
			err:        func() error { _, err := domain.ParseDatasetKind("bogus"); return err }(),
			wantStatus: http.StatusNotFound,
			wantType:   TypeDatasetNotFound,
			wantCode:   CodeDatasetNotFound,
		},
		{
			name:       "render app error",
			err:        NewRenderError("draw", fmt.Errorf("boom")),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeRenderFailed,
		},
		{
			name:       "storage app error",
			err:        NewStorageError("save selection", fmt.Errorf("disk full")),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeStorageFailed,
		},
		{
			name:       "messaging app error",
			err:        NewMessagingError("publish message", fmt.Errorf("channel closed")),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeInternal,
		},
		{
			name:       "string error with not found",
			err:        fmt.Errorf("snapshot not found"),
			wantStatus: http.StatusNotFound,
			wantType:   TypeNotFound,
		},
		{
			name:       "string error with rate limit",
			err:        fmt.Errorf("rate limit exceeded"),
			wantStatus: http.StatusTooManyRequests,
			wantType:   TypeRateLimit,
		},
		{
			name:       "string error with payload too large",
			err:        fmt.Errorf("payload too large"),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantType:   TypePayloadTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := testutil.NewTestLogger(t)
			handler := NewErrorHandler(logger, false)
			r := httptest.NewRequest(http.MethodGet, "/test", nil)

			problem := handler.ErrorToProblem(tt.err, r)

			assert.Equal(t, tt.wantStatus, problem.Status)
			assert.Equal(t, tt.wantType, problem.Type)
			assert.Equal(t, "/test", problem.Instance)
			if tt.wantCode != nil {
				assert.Equal(t, tt.wantCode, problem.Extensions["error_code"])
			}
		})
	}
}

func TestErrorHandler_apiErrorToProblem(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		wantType string
	}{
		{"validation", ErrValidation("sex", "required"), TypeValidation},
		{"dataset not found", DatasetNotFoundError("bogus"), TypeDatasetNotFound},
		{"not found", NotFoundError("snapshot"), TypeNotFound},
		{"not ready", ErrServiceUnavailable, TypeServiceDown},
		{"render", RenderError(fmt.Errorf("font")), TypeRenderFailed},
		{"export", ExportError(fmt.Errorf("disk")), TypeExportFailed},
		{"rate limit", ErrRateLimitExceeded, TypeRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewErrorHandler(nil, false)
			r := httptest.NewRequest(http.MethodGet, "/test", nil)

			problem := handler.apiErrorToProblem(tt.apiError, r)

			assert.Equal(t, tt.apiError.StatusCode, problem.Status)
			assert.Equal(t, tt.wantType, problem.Type)
			assert.Equal(t, http.StatusText(tt.apiError.StatusCode), problem.Title)
			assert.Equal(t, tt.apiError.Message, problem.Detail)
			assert.Equal(t, tt.apiError.ErrorCode, problem.Extensions["error_code"])
			if tt.apiError.Details != nil {
				assert.Equal(t, tt.apiError.Details, problem.Extensions["details"])
			}
		})
	}
}

func TestErrorHandler_NotFoundAndMethodNotAllowed(t *testing.T) {
	handler := NewErrorHandler(nil, false)

	w := httptest.NewRecorder()
	handler.NotFound(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	handler.MethodNotAllowed(w, httptest.NewRequest(http.MethodDelete, "/api/selection", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Contains(t, decodeProblem(t, w.Body.Bytes())["detail"], "DELETE")
}

func TestProblemDetails_MarshalJSON(t *testing.T) {
	problem := NewProblemDetails(http.StatusBadRequest, TypeInvalidFilter, "Invalid Filter Value", "", "/api/selection").
		WithExtension("error_code", CodeInvalidFilterValue).
		WithExtension("status", "ignored")

	data, err := json.Marshal(problem)
	require.NoError(t, err)

	out := decodeProblem(t, data)
	assert.Equal(t, float64(http.StatusBadRequest), out["status"])
	assert.Equal(t, CodeInvalidFilterValue, out["error_code"])
	assert.NotContains(t, out, "detail")
}
