package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"bmidash/internal/charts"
	apierrors "bmidash/internal/errors"
	"bmidash/internal/exporter"
	"bmidash/internal/middleware"
	"bmidash/internal/services"
	api "bmidash/pkg/contracts/api/v1"
	"bmidash/pkg/contracts/domain"
)

const (
	defaultSnapshotLimit = 20
	maxSnapshotLimit     = 500

	// retryAfterSeconds is sent with every 503 while the datasets load
	retryAfterSeconds = "2"
)

// DashboardHandler serves the selection, summaries, charts and exports
type DashboardHandler struct {
	service      DashboardServiceInterface
	renderer     *charts.Renderer
	csv          *exporter.CSVWriter
	workbook     *exporter.WorkbookExporter
	validator    *middleware.Validator
	query        *middleware.QueryParamValidator
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(service DashboardServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *DashboardHandler {
	return &DashboardHandler{
		service:      service,
		renderer:     charts.NewRenderer(logger),
		csv:          exporter.NewCSVWriter(logger),
		workbook:     exporter.NewWorkbookExporter(logger),
		validator:    middleware.NewValidator(),
		query:        middleware.NewQueryParamValidator(errorHandler),
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("component", "dashboard_handler")),
	}
}

// RegisterRoutes registers the dashboard routes on r
func (h *DashboardHandler) RegisterRoutes(r chi.Router) {
	r.Get("/dashboard", h.GetDashboard)
	r.Get("/selection", h.GetSelection)
	r.With(middleware.ContentTypeValidator(h.errorHandler, "application/json")).
		Put("/selection", h.PutSelection)
	r.Get("/snapshots", h.GetSnapshots)

	r.With(h.DatasetCtx).Get("/summaries/{dataset}", h.GetSummary)
	r.With(h.DatasetCtx).Get("/charts/{dataset}.{format}", h.GetChart)

	r.Get("/export/workbook.xlsx", h.ExportWorkbook)
	r.With(h.DatasetCtx).Get("/export/{dataset}.csv", h.ExportCSV)
}

type datasetKey struct{}

// DatasetCtx validates the {dataset} URL parameter
func (h *DashboardHandler) DatasetCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "dataset")
		kind, err := domain.ParseDatasetKind(raw)
		if err != nil {
			h.errorHandler.HandleError(w, r, apierrors.DatasetNotFoundError(raw))
			return
		}
		next.ServeHTTP(w, r.WithContext(withDataset(r.Context(), kind)))
	})
}

// GetDashboard handles GET /api/dashboard
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// GetSelection handles GET /api/selection
func (h *DashboardHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, api.SelectionResponse{
		Selection: h.service.Selection(),
		Options:   domain.Sexes(),
	})
}

// PutSelection handles PUT /api/selection
func (h *DashboardHandler) PutSelection(w http.ResponseWriter, r *http.Request) {
	var req api.SelectionRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		// An out-of-range sex is a filter problem, not a generic validation failure
		if _, perr := domain.ParseSex(req.Sex); req.Sex != "" && perr != nil {
			h.errorHandler.HandleError(w, r, perr)
			return
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}

	update, err := h.service.SetSelection(r.Context(), req.ToSelection())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "selection updated",
		slog.String("sex", string(update.Selection.Sex)),
		slog.Int("max_year", update.Selection.MaxYear))
	render.JSON(w, r, api.SelectionResponse{
		Selection: update.Selection,
		Options:   domain.Sexes(),
	})
}

// GetSummary handles GET /api/summaries/{dataset}?sex=
func (h *DashboardHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	sex, ok := h.query.ValidateSex(w, r, "sex", "")
	if !ok {
		return
	}

	resp, err := h.service.Summary(r.Context(), datasetFrom(r.Context()), sex)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// GetChart handles GET /api/charts/{dataset}.{svg|png}?sex=
func (h *DashboardHandler) GetChart(w http.ResponseWriter, r *http.Request) {
	format, err := charts.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("format", err.Error()))
		return
	}
	sex, ok := h.query.ValidateSex(w, r, "sex", "")
	if !ok {
		return
	}

	kind := datasetFrom(r.Context())
	summary, err := h.service.Summary(r.Context(), kind, sex)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	spec, _ := domain.ChartSpecFor(kind)

	img, err := h.renderer.RenderBytes(spec, summary.Table, format)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.RenderError(err))
		return
	}
	middleware.MetricsFromContext(r.Context()).RecordChartRender(r.Context(), string(kind), string(format))

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	_, _ = w.Write(img)
}

// ExportCSV handles GET /api/export/{dataset}.csv?sex=
func (h *DashboardHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	sex, ok := h.query.ValidateSex(w, r, "sex", "")
	if !ok {
		return
	}

	kind := datasetFrom(r.Context())
	summary, err := h.service.Summary(r.Context(), kind, sex)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := h.csv.WriteSummary(&buf, summary.Table, exporter.WriteOptions{BOMPrefix: true}); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ExportError(err))
		return
	}
	middleware.MetricsFromContext(r.Context()).RecordExport(r.Context(), "csv")

	name := exporter.FileName(kind, domain.Selection{Sex: summary.Sex, MaxYear: summary.MaxYear}, "csv")
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	_, _ = w.Write(buf.Bytes())
}

// ExportWorkbook handles GET /api/export/workbook.xlsx
func (h *DashboardHandler) ExportWorkbook(w http.ResponseWriter, r *http.Request) {
	if !h.service.Status().Ready {
		h.fail(w, r, services.ErrNotReady)
		return
	}

	sel, summaries, computedAt := h.service.Snapshot()
	var buf bytes.Buffer
	err := h.workbook.Write(&buf, exporter.Workbook{
		Selection:  sel,
		ComputedAt: computedAt,
		Summaries:  summaries,
		Charts:     domain.DefaultChartSpecs(),
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ExportError(err))
		return
	}
	middleware.MetricsFromContext(r.Context()).RecordExport(r.Context(), "xlsx")

	name := fmt.Sprintf("bmidash_%s_%s.xlsx", sel.Sex, computedAt.UTC().Format("20060102T150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	_, _ = w.Write(buf.Bytes())
}

// GetSnapshots handles GET /api/snapshots?limit=
func (h *DashboardHandler) GetSnapshots(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.query.ValidateInt(w, r, "limit", 1, maxSnapshotLimit, defaultSnapshotLimit)
	if !ok {
		return
	}

	snaps, err := h.service.Snapshots(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, api.SnapshotsResponse{Snapshots: snaps, Count: len(snaps)})
}

// fail maps service errors onto problem responses
func (h *DashboardHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrNotReady):
		w.Header().Set("Retry-After", retryAfterSeconds)
		h.errorHandler.HandleError(w, r, apierrors.ErrServiceUnavailable)
	case errors.Is(err, services.ErrNoStore):
		h.errorHandler.HandleError(w, r, apierrors.NotFoundError("snapshot history"))
	default:
		h.errorHandler.HandleError(w, r, err)
	}
}

func withDataset(ctx context.Context, kind domain.DatasetKind) context.Context {
	return context.WithValue(ctx, datasetKey{}, kind)
}

func datasetFrom(ctx context.Context) domain.DatasetKind {
	kind, _ := ctx.Value(datasetKey{}).(domain.DatasetKind)
	return kind
}
