package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bmidash/internal/charts"
	"bmidash/internal/exporter"
	"bmidash/internal/validation"
	"bmidash/pkg/contracts/domain"
)

var exportFormats = []string{"csv", "xlsx", "svg", "png"}

func newExportCommand(root *rootOptions) *cobra.Command {
	var (
		sel     selectionFlags
		outDir  string
		formats []string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write summary tables, charts and a workbook for a selection",
		Example: `  bmidash export --out reports --sex Male
  bmidash export --format xlsx --format png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			selection, err := sel.selection()
			if err != nil {
				return err
			}
			want := map[string]bool{}
			for _, f := range formats {
				f = strings.ToLower(strings.TrimSpace(f))
				if !slices.Contains(exportFormats, f) {
					return fmt.Errorf("unknown format %q: use %s", f, strings.Join(exportFormats, ", "))
				}
				want[f] = true
			}

			pipelines, err := root.loadPipelines(cmd.Context(), nil)
			if err != nil {
				return err
			}
			if err := validation.NewFileValidator(root.logger).ValidateOutputDirectory(outDir); err != nil {
				return err
			}

			summaries := make(map[domain.DatasetKind]domain.SummaryTable, len(pipelines))
			csvWriter := exporter.NewCSVWriter(root.logger)
			renderer := charts.NewRenderer(root.logger)
			var written []string

			for _, p := range pipelines {
				table, err := p.Summarize(selection)
				if err != nil {
					return fmt.Errorf("%s: %w", p.Kind(), err)
				}
				summaries[p.Kind()] = table

				if want["csv"] {
					path := filepath.Join(outDir, exporter.FileName(p.Kind(), selection, "csv"))
					if err := csvWriter.WriteFile(path, table, exporter.WriteOptions{}); err != nil {
						return err
					}
					written = append(written, path)
				}
				for _, format := range []charts.Format{charts.FormatSVG, charts.FormatPNG} {
					if !want[string(format)] {
						continue
					}
					path := filepath.Join(outDir, exporter.FileName(p.Kind(), selection, string(format)))
					if err := writeChart(renderer, path, p.Chart, table, format); err != nil {
						return err
					}
					written = append(written, path)
				}
			}

			if want["xlsx"] {
				path := filepath.Join(outDir, fmt.Sprintf("bmidash_%s.xlsx", selection.Sex))
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("create workbook: %w", err)
				}
				err = exporter.NewWorkbookExporter(root.logger).Write(f, exporter.Workbook{
					Selection:  selection,
					ComputedAt: time.Now().UTC(),
					Summaries:  summaries,
					Charts:     domain.DefaultChartSpecs(),
				})
				if cerr := f.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					return err
				}
				written = append(written, path)
			}

			for _, path := range written {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}

	sel.register(cmd)
	cmd.Flags().StringVarP(&outDir, "out", "o", "exports", "output directory")
	cmd.Flags().StringSliceVarP(&formats, "format", "f", []string{"csv", "xlsx"}, "csv, xlsx, svg or png (repeatable)")
	return cmd
}

func writeChart(r *charts.Renderer, path string, spec domain.ChartSpec, table domain.SummaryTable, format charts.Format) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart: %w", err)
	}
	if err := r.Render(f, spec, table, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
