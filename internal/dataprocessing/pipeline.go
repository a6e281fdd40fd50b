package dataprocessing

import (
	"fmt"
	"sort"

	"bmidash/pkg/contracts/domain"
)

// Query narrows a dataset before aggregation
type Query struct {
	Sex          domain.Sex
	IncomeGroups []domain.IncomeGroup
	// MaxYear keeps records with TimeDim <= MaxYear. Zero disables the bound.
	MaxYear int
}

// Compute filters ds to sex and the recognized income groups, averages
// Prevalence per (income group, year) and returns the rows ordered by year.
// Rows sharing a year are ordered by income group name.
func Compute(ds domain.Dataset, sex domain.Sex, incomeGroups []domain.IncomeGroup) (domain.SummaryTable, error) {
	return Run(ds, Query{Sex: sex, IncomeGroups: incomeGroups})
}

type groupKey struct {
	group domain.IncomeGroup
	year  int
}

type accumulator struct {
	sum   float64
	count int
}

// Run executes q against ds. An empty match yields an empty table.
func Run(ds domain.Dataset, q Query) (domain.SummaryTable, error) {
	if !q.Sex.Valid() {
		return nil, fmt.Errorf("%w: sex %q", domain.ErrInvalidFilterValue, q.Sex)
	}
	if q.MaxYear < 0 {
		return nil, fmt.Errorf("%w: max year %d", domain.ErrInvalidFilterValue, q.MaxYear)
	}

	allowed := allowedGroups(q.IncomeGroups)

	order := make([]groupKey, 0)
	groups := make(map[groupKey]*accumulator)
	for _, rec := range ds.Records {
		if rec.Sex != q.Sex || !allowed[rec.WorldBankIncomeGroup] {
			continue
		}
		if q.MaxYear > 0 && rec.TimeDim > q.MaxYear {
			continue
		}
		key := groupKey{group: rec.WorldBankIncomeGroup, year: rec.TimeDim}
		acc, ok := groups[key]
		if !ok {
			acc = &accumulator{}
			groups[key] = acc
			order = append(order, key)
		}
		acc.sum += rec.Prevalence
		acc.count++
	}

	// Groups come out in key order, then a stable sort by year keeps that
	// order for ties.
	sort.Slice(order, func(i, j int) bool {
		if order[i].group != order[j].group {
			return order[i].group < order[j].group
		}
		return order[i].year < order[j].year
	})

	table := make(domain.SummaryTable, 0, len(order))
	for _, key := range order {
		acc := groups[key]
		table = append(table, domain.SummaryRow{
			WorldBankIncomeGroup: key.group,
			TimeDim:              key.year,
			Prevalence:           acc.sum / float64(acc.count),
		})
	}

	sort.SliceStable(table, func(i, j int) bool {
		return table[i].TimeDim < table[j].TimeDim
	})
	return table, nil
}

// allowedGroups intersects requested with the recognized income groups.
// A nil request selects all four.
func allowedGroups(requested []domain.IncomeGroup) map[domain.IncomeGroup]bool {
	recognized := make(map[domain.IncomeGroup]bool, 4)
	for _, g := range domain.DefaultIncomeGroups() {
		recognized[g] = true
	}
	if requested == nil {
		return recognized
	}
	allowed := make(map[domain.IncomeGroup]bool, len(requested))
	for _, g := range requested {
		if recognized[g] {
			allowed[g] = true
		}
	}
	return allowed
}

// Pipeline binds one dataset to its chart. The dashboard runs three of them
// over the same selection.
type Pipeline struct {
	Dataset domain.Dataset
	Chart   domain.ChartSpec
	Stats   LoadStats
}

// NewPipeline creates a pipeline for ds drawn according to chart
func NewPipeline(ds domain.Dataset, chart domain.ChartSpec, stats LoadStats) *Pipeline {
	return &Pipeline{Dataset: ds, Chart: chart, Stats: stats}
}

// Kind returns the dataset kind
func (p *Pipeline) Kind() domain.DatasetKind {
	return p.Dataset.Kind
}

// YLabel returns the label of the aggregated measure
func (p *Pipeline) YLabel() string {
	return p.Chart.YLabel
}

// Summarize aggregates the pipeline's dataset for sel
func (p *Pipeline) Summarize(sel domain.Selection) (domain.SummaryTable, error) {
	return Run(p.Dataset, Query{
		Sex:          sel.Sex,
		IncomeGroups: domain.DefaultIncomeGroups(),
		MaxYear:      sel.MaxYear,
	})
}
