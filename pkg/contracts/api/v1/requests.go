// Package api contains the HTTP API contracts of the BMI dashboard.
// Version v1 represents the current stable API version.
package api

import (
	"time"

	"bmidash/pkg/contracts/domain"
)

// SelectionRequest is the body of PUT /api/selection
type SelectionRequest struct {
	Sex     string `json:"sex" validate:"required,oneof=BothSexes Female Male"`
	MaxYear int    `json:"max_year,omitempty" validate:"omitempty,min=1900,max=2100"`
}

// ToSelection converts a validated request to the domain selection
func (r SelectionRequest) ToSelection() domain.Selection {
	return domain.Selection{Sex: domain.Sex(r.Sex), MaxYear: r.MaxYear}
}

// SelectionResponse echoes the current selection
type SelectionResponse struct {
	Selection domain.Selection `json:"selection"`
	Options   []domain.Sex     `json:"options"`
}

// SummaryResponse is one computed table
type SummaryResponse struct {
	Dataset   domain.DatasetKind  `json:"dataset"`
	Sex       domain.Sex          `json:"sex"`
	MaxYear   int                 `json:"max_year,omitempty"`
	Rows      int                 `json:"rows"`
	Table     domain.SummaryTable `json:"table"`
	Generated time.Time           `json:"generated_at"`
}

// ChartView couples a chart spec with its table and image URL
type ChartView struct {
	Spec     domain.ChartSpec    `json:"spec"`
	Table    domain.SummaryTable `json:"table"`
	ImageURL string              `json:"image_url"`
}

// DatasetStats reports how a dataset file was loaded
type DatasetStats struct {
	Source  string `json:"source"`
	Rows    int    `json:"rows"`
	Loaded  int    `json:"loaded"`
	Skipped int    `json:"skipped"`
}

// DashboardResponse is the full view model of the dashboard page
type DashboardResponse struct {
	Selection domain.Selection                    `json:"selection"`
	Charts    []ChartView                         `json:"charts"`
	Stats     map[domain.DatasetKind]DatasetStats `json:"stats"`
}

// Snapshot is one recorded recomputation
type Snapshot struct {
	ID         string             `json:"id"`
	Dataset    domain.DatasetKind `json:"dataset"`
	Sex        domain.Sex         `json:"sex"`
	MaxYear    int                `json:"max_year,omitempty"`
	Rows       int                `json:"rows"`
	ComputedAt time.Time          `json:"computed_at"`
	TraceID    string             `json:"trace_id,omitempty"`
}

// SnapshotsResponse lists recent recomputations, newest first
type SnapshotsResponse struct {
	Snapshots []Snapshot `json:"snapshots"`
	Count     int        `json:"count"`
}
