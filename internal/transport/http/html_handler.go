package http

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "bmidash/internal/errors"
	"bmidash/internal/services"
	"bmidash/pkg/contracts"
	api "bmidash/pkg/contracts/api/v1"
	"bmidash/pkg/contracts/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	pageTitle   = "Global Obesity Prevalence"
	accentColor = "#88d8b0"
)

var pageFacts = []string{
	"Worldwide obesity has approximately tripled since 1975.",
	"In 2016, more than 1.9 billion adults (18 years and older) were overweight. Of these, over 650 million were obese.",
	"Most of the world's population live in countries where overweight and obesity kills more people than underweight.",
}

// PageHandler renders the dashboard page
type PageHandler struct {
	service      DashboardServiceInterface
	tmpl         *template.Template
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

type pageChart struct {
	Kind     domain.DatasetKind
	Title    string
	YLabel   string
	Width    int
	Height   int
	ImageURL string
	Stats    *api.DatasetStats
}

type pageData struct {
	Title      string
	Accent     string
	Subtitle   string
	Facts      []string
	Source     string
	Selection  domain.Selection
	Options    []domain.Sex
	Charts     []pageChart
	Ready      bool
	Phase      string
	Version    string
	MaxYearStr string
}

// NewPageHandler parses the embedded templates
func NewPageHandler(service DashboardServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) (*PageHandler, error) {
	tmpl, err := template.New("dashboard.html").ParseFS(templateFS, "templates/dashboard.html")
	if err != nil {
		return nil, err
	}
	return &PageHandler{
		service:      service,
		tmpl:         tmpl,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "page")),
	}, nil
}

// ServeDashboard handles GET /
func (h *PageHandler) ServeDashboard(w http.ResponseWriter, r *http.Request) {
	sel := h.service.Selection()
	status := h.service.Status()

	data := pageData{
		Title:     pageTitle,
		Accent:    accentColor,
		Subtitle:  "Global prevalence of overweight and underweight people, by sex and country income (according to World Bank Classification)",
		Facts:     pageFacts,
		Source:    "Data source: World Health Organisation (2023)",
		Selection: sel,
		Options:   domain.Sexes(),
		Ready:     status.Ready,
		Phase:     status.Phase,
		Version:   contracts.Version,
	}
	if sel.MaxYear > 0 {
		data.MaxYearStr = strconv.Itoa(sel.MaxYear)
	}
	stats := h.loadStats(r, status.Ready)
	for _, spec := range domain.DefaultChartSpecs() {
		chart := pageChart{
			Kind:     spec.Kind,
			Title:    spec.Title,
			YLabel:   spec.YLabel,
			Width:    spec.Width,
			Height:   spec.Height,
			ImageURL: services.ChartURL(spec.Kind, "svg", sel),
		}
		if st, ok := stats[spec.Kind]; ok {
			chart.Stats = &st
		}
		data.Charts = append(data.Charts, chart)
	}

	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, data); err != nil {
		h.logger.ErrorContext(r.Context(), "render dashboard page", slog.String("error", err.Error()))
		h.errorHandler.HandleError(w, r, apierrors.RenderError(err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(buf.Bytes())
}

// loadStats returns the per-dataset load counts, or nil while the
// datasets are not ready
func (h *PageHandler) loadStats(r *http.Request, ready bool) map[domain.DatasetKind]api.DatasetStats {
	if !ready {
		return nil
	}
	resp, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "dataset stats unavailable", slog.String("error", err.Error()))
		return nil
	}
	return resp.Stats
}
