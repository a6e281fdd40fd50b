package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"bmidash/internal/exporter"
	"bmidash/pkg/contracts/domain"
)

type computeResult struct {
	Dataset   domain.DatasetKind  `json:"dataset"`
	Selection domain.Selection    `json:"selection"`
	Rows      int                 `json:"rows"`
	Table     domain.SummaryTable `json:"table"`
}

func newComputeCommand(root *rootOptions) *cobra.Command {
	var (
		sel      selectionFlags
		datasets []string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Print the summary tables for a selection",
		Example: `  bmidash compute --sex Female
  bmidash compute --dataset mean --max-year 2000 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			selection, err := sel.selection()
			if err != nil {
				return err
			}
			kinds, err := parseKinds(datasets)
			if err != nil {
				return err
			}
			if format != "csv" && format != "json" {
				return fmt.Errorf("unknown format %q: use csv or json", format)
			}

			pipelines, err := root.loadPipelines(cmd.Context(), kinds)
			if err != nil {
				return err
			}

			results := make([]computeResult, 0, len(pipelines))
			for _, p := range pipelines {
				table, err := p.Summarize(selection)
				if err != nil {
					return fmt.Errorf("%s: %w", p.Kind(), err)
				}
				results = append(results, computeResult{Dataset: p.Kind(), Selection: selection, Rows: len(table), Table: table})
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			csvWriter := exporter.NewCSVWriter(root.logger)
			for i, res := range results {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "# %s\n", res.Dataset)
				if err := csvWriter.WriteSummary(out, res.Table, exporter.WriteOptions{}); err != nil {
					return err
				}
			}
			return nil
		},
	}

	sel.register(cmd)
	cmd.Flags().StringSliceVarP(&datasets, "dataset", "d", nil, "mean, overweight or underweight (repeatable, default all)")
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format: csv or json")
	return cmd
}
