package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFilterValue is returned when a filter value is outside its
// recognized categories.
var ErrInvalidFilterValue = errors.New("invalid filter value")

// Sex is the population segment a record belongs to
type Sex string

const (
	SexBoth   Sex = "BothSexes"
	SexFemale Sex = "Female"
	SexMale   Sex = "Male"
)

// Sexes returns the recognized sex categories in selector order.
func Sexes() []Sex {
	return []Sex{SexBoth, SexFemale, SexMale}
}

// Valid reports whether s is one of the recognized categories
func (s Sex) Valid() bool {
	switch s {
	case SexBoth, SexFemale, SexMale:
		return true
	}
	return false
}

// ParseSex converts a raw value to a Sex, rejecting unknown values.
func ParseSex(raw string) (Sex, error) {
	s := Sex(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", fmt.Errorf("%w: sex %q must be one of %s", ErrInvalidFilterValue, raw, joinSexes())
	}
	return s, nil
}

func joinSexes() string {
	names := make([]string, 0, 3)
	for _, s := range Sexes() {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

// IncomeGroup is a World Bank income classification
type IncomeGroup string

const (
	IncomeHigh        IncomeGroup = "HighIncome"
	IncomeLower       IncomeGroup = "LowerIncome"
	IncomeLowerMiddle IncomeGroup = "LowerMiddleIncome"
	IncomeUpperMiddle IncomeGroup = "UpperMiddleIncome"
)

// DefaultIncomeGroups returns the four income groups that take part in
// aggregation. Records carrying any other group are excluded.
func DefaultIncomeGroups() []IncomeGroup {
	return []IncomeGroup{IncomeHigh, IncomeLower, IncomeLowerMiddle, IncomeUpperMiddle}
}

// Record is one row of a prevalence dataset
type Record struct {
	Sex                  Sex         `json:"sex"`
	WorldBankIncomeGroup IncomeGroup `json:"world_bank_income_group"`
	TimeDim              int         `json:"time_dim"`
	Prevalence           float64     `json:"prevalence"`
}

// DatasetKind identifies one of the three dashboard datasets
type DatasetKind string

const (
	DatasetMean        DatasetKind = "mean"
	DatasetOverweight  DatasetKind = "overweight"
	DatasetUnderweight DatasetKind = "underweight"
)

// DatasetKinds returns the dataset kinds in dashboard order.
func DatasetKinds() []DatasetKind {
	return []DatasetKind{DatasetMean, DatasetOverweight, DatasetUnderweight}
}

// ParseDatasetKind converts a path segment or flag value to a DatasetKind
func ParseDatasetKind(raw string) (DatasetKind, error) {
	k := DatasetKind(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range DatasetKinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown dataset %q", ErrDatasetNotFound, raw)
}

// ErrDatasetNotFound is returned for dataset kinds the dashboard does not serve
var ErrDatasetNotFound = errors.New("dataset not found")

// Dataset is an ordered, load-once sequence of records.
// Callers must not mutate Records after the dataset is published.
type Dataset struct {
	Kind    DatasetKind `json:"kind"`
	Records []Record    `json:"-"`
}

// Len returns the number of records
func (d Dataset) Len() int {
	return len(d.Records)
}

// Selection is the single authoritative filter state shared by all charts
type Selection struct {
	Sex     Sex `json:"sex"`
	MaxYear int `json:"max_year,omitempty"`
}

// DefaultSelection returns the selector's first option with no year bound
func DefaultSelection() Selection {
	return Selection{Sex: SexBoth}
}

// SummaryRow is the mean prevalence for one income group and year
type SummaryRow struct {
	WorldBankIncomeGroup IncomeGroup `json:"world_bank_income_group"`
	TimeDim              int         `json:"time_dim"`
	Prevalence           float64     `json:"prevalence"`
}

// SummaryTable is ordered ascending by TimeDim
type SummaryTable []SummaryRow

// Series splits the table into one ordered point list per income group,
// keyed in first-seen order.
func (t SummaryTable) Series() ([]IncomeGroup, map[IncomeGroup][]SummaryRow) {
	order := make([]IncomeGroup, 0, 4)
	series := make(map[IncomeGroup][]SummaryRow)
	for _, row := range t {
		if _, ok := series[row.WorldBankIncomeGroup]; !ok {
			order = append(order, row.WorldBankIncomeGroup)
		}
		series[row.WorldBankIncomeGroup] = append(series[row.WorldBankIncomeGroup], row)
	}
	return order, series
}
