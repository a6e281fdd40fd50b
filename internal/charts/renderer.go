// Package charts draws summary tables as multi-series line charts.
package charts

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	apierrors "bmidash/internal/errors"
	"bmidash/pkg/contracts/domain"
)

// Format is an output image encoding
type Format string

const (
	FormatSVG Format = "svg"
	FormatPNG Format = "png"
)

// pixelsPerInch converts chart specs, given in CSS pixels, to vg lengths
const pixelsPerInch = 96

// maxYearTicks bounds the number of labelled years on the x axis
const maxYearTicks = 12

// ParseFormat accepts "svg" and "png" in any case
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatSVG, FormatPNG:
		return f, nil
	}
	return "", fmt.Errorf("unsupported chart format %q", raw)
}

// ContentType returns the MIME type of f
func (f Format) ContentType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/svg+xml"
}

// Renderer draws one line per income group, x = year, y = prevalence
type Renderer struct {
	logger *slog.Logger
}

// NewRenderer creates a chart renderer
func NewRenderer(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{logger: logger.With(slog.String("component", "chart_renderer"))}
}

// Render writes table drawn according to spec to w. An empty table yields
// a chart with axes and no lines.
func (r *Renderer) Render(w io.Writer, spec domain.ChartSpec, table domain.SummaryTable, format Format) error {
	p, err := r.Plot(spec, table)
	if err != nil {
		return err
	}

	width := vg.Length(spec.Width) * vg.Inch / pixelsPerInch
	height := vg.Length(spec.Height) * vg.Inch / pixelsPerInch
	wt, err := p.WriterTo(width, height, string(format))
	if err != nil {
		return apierrors.NewRenderError("prepare "+string(format)+" canvas", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return apierrors.NewRenderError("write "+string(format)+" chart", err).
			WithContext("dataset", string(spec.Kind))
	}
	return nil
}

// RenderBytes renders into memory so callers can report failures before
// writing any response
func (r *Renderer) RenderBytes(spec domain.ChartSpec, table domain.SummaryTable, format Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, spec, table, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Plot builds the plot without encoding it
func (r *Renderer) Plot(spec domain.ChartSpec, table domain.SummaryTable) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = spec.Title
	p.X.Label.Text = spec.XLabel
	p.Y.Label.Text = spec.YLabel
	p.X.Tick.Marker = plot.TickerFunc(yearTicks)
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	order, series := table.Series()
	for i, group := range order {
		rows := series[group]
		xys := make(plotter.XYs, len(rows))
		for j, row := range rows {
			xys[j].X = float64(row.TimeDim)
			xys[j].Y = row.Prevalence
		}

		line, points, err := plotter.NewLinePoints(xys)
		if err != nil {
			return nil, fmt.Errorf("build %s series: %w", group, err)
		}
		c := plotutil.Color(i)
		line.Color = c
		line.Width = vg.Points(spec.LineWidth)
		points.Color = c
		points.Radius = vg.Points(spec.LineWidth + 1)

		p.Add(line, points)
		p.Legend.Add(string(group), line, points)
	}

	r.logger.Debug("chart built",
		slog.String("dataset", string(spec.Kind)),
		slog.Int("series", len(order)),
		slog.Int("rows", len(table)))
	return p, nil
}

// yearTicks places labelled ticks on whole years, at most maxYearTicks of
// them however wide the axis is
func yearTicks(min, max float64) []plot.Tick {
	if math.IsNaN(min) || math.IsNaN(max) || math.IsInf(min, 0) || math.IsInf(max, 0) {
		return nil
	}
	first := math.Ceil(min)
	last := math.Floor(max)
	if last < first {
		return nil
	}

	step := math.Max(1, math.Ceil((last-first+1)/maxYearTicks))
	ticks := make([]plot.Tick, 0, maxYearTicks)
	for y := first; y <= last; y += step {
		ticks = append(ticks, plot.Tick{Value: y, Label: strconv.FormatFloat(y, 'f', 0, 64)})
	}
	return ticks
}
