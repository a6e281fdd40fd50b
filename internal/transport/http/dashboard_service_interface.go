package http

import (
	"context"
	"time"

	api "bmidash/pkg/contracts/api/v1"
	"bmidash/pkg/contracts/domain"
	"bmidash/pkg/contracts/events"
)

// DashboardServiceInterface defines the dashboard operations the handlers need
type DashboardServiceInterface interface {
	Dashboard(ctx context.Context) (api.DashboardResponse, error)
	Selection() domain.Selection
	SetSelection(ctx context.Context, sel domain.Selection) (events.SummaryUpdate, error)
	Summary(ctx context.Context, kind domain.DatasetKind, sex domain.Sex) (api.SummaryResponse, error)
	Snapshot() (domain.Selection, map[domain.DatasetKind]domain.SummaryTable, time.Time)
	Snapshots(ctx context.Context, limit int) ([]api.Snapshot, error)
	Status() events.SystemStatus
}
