package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"bmidash/internal/dataprocessing"
	"bmidash/internal/infrastructure"
	api "bmidash/pkg/contracts/api/v1"
	"bmidash/pkg/contracts/domain"
	"bmidash/pkg/contracts/events"
)

// Broadcaster pushes typed messages to connected dashboards
type Broadcaster interface {
	Broadcast(ctx context.Context, msgType events.MessageType, data interface{}) error
}

// SelectionStore persists the selection and a history of recomputations
type SelectionStore interface {
	SaveSelection(ctx context.Context, sel domain.Selection) error
	LoadSelection(ctx context.Context) (domain.Selection, bool, error)
	AppendSnapshots(ctx context.Context, snapshots []api.Snapshot) error
	ListSnapshots(ctx context.Context, limit int) ([]api.Snapshot, error)
	Ping(ctx context.Context) error
}

// EventPublisher announces selection changes to other systems
type EventPublisher interface {
	PublishSelectionChanged(ctx context.Context, evt events.SelectionChanged) error
}

// NopPublisher discards every event
type NopPublisher struct{}

// PublishSelectionChanged implements EventPublisher
func (NopPublisher) PublishSelectionChanged(context.Context, events.SelectionChanged) error {
	return nil
}

// DashboardDeps wires a DashboardService. Store, Publisher and Metrics are optional.
type DashboardDeps struct {
	Loader      *dataprocessing.Loader
	Sources     []dataprocessing.Source
	Broadcaster Broadcaster
	Store       SelectionStore
	Publisher   EventPublisher
	Metrics     *infrastructure.BusinessMetrics
	Logger      *slog.Logger
}

// DashboardService holds the single selection and the summary tables
// derived from it
type DashboardService struct {
	loader      *dataprocessing.Loader
	sources     []dataprocessing.Source
	broadcaster Broadcaster
	store       SelectionStore
	publisher   EventPublisher
	metrics     *infrastructure.BusinessMetrics
	logger      *slog.Logger

	// serializes selection changes so snapshots and events stay ordered
	changeMu sync.Mutex

	mu         sync.RWMutex
	phase      string
	lastErr    error
	pipelines  map[domain.DatasetKind]*dataprocessing.Pipeline
	selection  domain.Selection
	summaries  map[domain.DatasetKind]domain.SummaryTable
	computedAt time.Time
}

// NewDashboardService creates a dashboard service in the starting phase
func NewDashboardService(deps DashboardDeps) *DashboardService {
	logger := deps.Logger
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = NopPublisher{}
	}
	loader := deps.Loader
	if loader == nil {
		loader = dataprocessing.NewLoader(logger, dataprocessing.ParseOptions{})
	}

	return &DashboardService{
		loader:      loader,
		sources:     deps.Sources,
		broadcaster: deps.Broadcaster,
		store:       deps.Store,
		publisher:   publisher,
		metrics:     deps.Metrics,
		logger:      logger.With(slog.String("service", "dashboard")),
		phase:       events.PhaseStarting,
		selection:   domain.DefaultSelection(),
	}
}

// Init loads the datasets, restores the persisted selection and computes the
// first summaries. A failed load leaves the service in the failed phase.
func (s *DashboardService) Init(ctx context.Context) error {
	ctx = infrastructure.EnsureTraceID(ctx)
	start := time.Now()

	s.setPhase(ctx, events.PhaseLoading, "Loading datasets", nil)
	loaded, err := s.loader.LoadAll(ctx, s.sources)
	if err != nil {
		s.setPhase(ctx, events.PhaseFailed, "Dataset load failed", err)
		return fmt.Errorf("load datasets: %w", err)
	}

	pipelines := make(map[domain.DatasetKind]*dataprocessing.Pipeline, len(loaded))
	for _, kind := range domain.DatasetKinds() {
		l, ok := loaded[kind]
		if !ok {
			err := fmt.Errorf("%w: %s", domain.ErrDatasetNotFound, kind)
			s.setPhase(ctx, events.PhaseFailed, "Dataset missing", err)
			return err
		}
		spec, _ := domain.ChartSpecFor(kind)
		pipelines[kind] = dataprocessing.NewPipeline(l.Dataset, spec, l.Stats)
		s.metrics.RecordDatasetLoad(ctx, string(kind), l.Stats.Loaded, l.Stats.Skipped)
	}

	sel := s.restoreSelection(ctx)

	s.setPhase(ctx, events.PhaseComputing, "Computing summaries", nil)
	summaries, err := s.computeAll(ctx, pipelines, sel)
	if err != nil {
		s.setPhase(ctx, events.PhaseFailed, "Summary computation failed", err)
		return fmt.Errorf("compute summaries: %w", err)
	}

	s.mu.Lock()
	s.pipelines = pipelines
	s.selection = sel
	s.summaries = summaries
	s.computedAt = time.Now().UTC()
	s.mu.Unlock()

	s.broadcastSummaries(ctx)
	s.setPhase(ctx, events.PhaseReady, "Dashboard ready", nil)

	s.logger.InfoContext(ctx, "dashboard initialized",
		slog.String("sex", string(sel.Sex)),
		slog.Int("max_year", sel.MaxYear),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// restoreSelection returns the persisted selection, or the default when
// there is none or it no longer validates
func (s *DashboardService) restoreSelection(ctx context.Context) domain.Selection {
	sel := domain.DefaultSelection()
	if s.store == nil {
		return sel
	}

	stored, ok, err := s.store.LoadSelection(ctx)
	switch {
	case err != nil:
		s.logger.WarnContext(ctx, "failed to restore selection, using default",
			slog.String("error", err.Error()))
	case !ok:
	case validateSelection(stored) != nil:
		s.logger.WarnContext(ctx, "stored selection is invalid, using default",
			slog.String("sex", string(stored.Sex)))
	default:
		sel = stored
		s.logger.InfoContext(ctx, "selection restored", slog.String("sex", string(sel.Sex)))
	}
	return sel
}

// SetSelection replaces the selection and recomputes every summary table.
// On any error the previous selection and tables stay in place.
func (s *DashboardService) SetSelection(ctx context.Context, sel domain.Selection) (events.SummaryUpdate, error) {
	ctx = infrastructure.EnsureTraceID(ctx)
	if err := validateSelection(sel); err != nil {
		return events.SummaryUpdate{}, err
	}

	s.changeMu.Lock()
	defer s.changeMu.Unlock()

	s.mu.RLock()
	pipelines := s.pipelines
	previous := s.selection
	ready := s.phase == events.PhaseReady
	s.mu.RUnlock()
	if !ready {
		return events.SummaryUpdate{}, ErrNotReady
	}

	summaries, err := s.computeAll(ctx, pipelines, sel)
	if err != nil {
		return events.SummaryUpdate{}, err
	}

	computedAt := time.Now().UTC()
	s.mu.Lock()
	s.selection = sel
	s.summaries = summaries
	s.computedAt = computedAt
	s.mu.Unlock()

	update := events.SummaryUpdate{Selection: sel, Summaries: summaries, ComputedAt: computedAt}
	if s.broadcaster != nil {
		if err := s.broadcaster.Broadcast(ctx, events.MessageTypeSummaryUpdate, update); err != nil {
			s.logger.WarnContext(ctx, "summary broadcast failed", slog.String("error", err.Error()))
		}
	}

	s.metrics.RecordSelectionChange(ctx, string(sel.Sex))
	infrastructure.AddSpanEvent(ctx, "selection.changed",
		attribute.String("sex", string(sel.Sex)),
		attribute.Int("max_year", sel.MaxYear))

	s.persist(ctx, sel, summaries, computedAt)
	s.publish(ctx, previous, sel, summaries, computedAt)

	s.logger.InfoContext(ctx, "selection changed",
		slog.String("previous_sex", string(previous.Sex)),
		slog.String("sex", string(sel.Sex)),
		slog.Int("max_year", sel.MaxYear))
	return update, nil
}

func validateSelection(sel domain.Selection) error {
	if _, err := domain.ParseSex(string(sel.Sex)); err != nil {
		return err
	}
	if sel.MaxYear < 0 {
		return fmt.Errorf("%w: max year %d", domain.ErrInvalidFilterValue, sel.MaxYear)
	}
	return nil
}

// computeAll runs the three pipelines concurrently
func (s *DashboardService) computeAll(ctx context.Context, pipelines map[domain.DatasetKind]*dataprocessing.Pipeline, sel domain.Selection) (map[domain.DatasetKind]domain.SummaryTable, error) {
	kinds := domain.DatasetKinds()
	tables := make([]domain.SummaryTable, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		i, kind := i, kind
		p, ok := pipelines[kind]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrDatasetNotFound, kind)
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			table, err := p.Summarize(sel)
			s.metrics.RecordCompute(gctx, string(kind), string(sel.Sex), len(table), time.Since(start), err)
			if err != nil {
				return fmt.Errorf("summarize %s: %w", kind, err)
			}
			tables[i] = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[domain.DatasetKind]domain.SummaryTable, len(kinds))
	for i, kind := range kinds {
		out[kind] = tables[i]
	}
	return out, nil
}

func (s *DashboardService) persist(ctx context.Context, sel domain.Selection, summaries map[domain.DatasetKind]domain.SummaryTable, at time.Time) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveSelection(ctx, sel); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist selection", slog.String("error", err.Error()))
	}

	traceID := infrastructure.GetTraceID(ctx)
	snapshots := make([]api.Snapshot, 0, len(summaries))
	for _, kind := range domain.DatasetKinds() {
		snapshots = append(snapshots, api.Snapshot{
			ID:         uuid.New().String(),
			Dataset:    kind,
			Sex:        sel.Sex,
			MaxYear:    sel.MaxYear,
			Rows:       len(summaries[kind]),
			ComputedAt: at,
			TraceID:    traceID,
		})
	}
	if err := s.store.AppendSnapshots(ctx, snapshots); err != nil {
		s.logger.ErrorContext(ctx, "failed to record snapshots", slog.String("error", err.Error()))
	}
}

func (s *DashboardService) publish(ctx context.Context, previous, current domain.Selection, summaries map[domain.DatasetKind]domain.SummaryTable, at time.Time) {
	rows := make(map[domain.DatasetKind]int, len(summaries))
	for kind, table := range summaries {
		rows[kind] = len(table)
	}
	err := s.publisher.PublishSelectionChanged(ctx, events.SelectionChanged{
		ID:         uuid.New().String(),
		Previous:   previous,
		Current:    current,
		Rows:       rows,
		OccurredAt: at,
		TraceID:    infrastructure.GetTraceID(ctx),
	})
	s.metrics.RecordEventPublish(ctx, err)
	if err != nil {
		s.logger.WarnContext(ctx, "selection event not published", slog.String("error", err.Error()))
	}
}

func (s *DashboardService) setPhase(ctx context.Context, phase, message string, err error) {
	s.mu.Lock()
	s.phase = phase
	s.lastErr = err
	s.mu.Unlock()

	status := events.SystemStatus{Phase: phase, Message: message, Ready: phase == events.PhaseReady}
	if err != nil {
		status.Message = fmt.Sprintf("%s: %v", message, err)
		s.logger.ErrorContext(ctx, "dashboard phase failed",
			slog.String("phase", phase),
			slog.String("error", err.Error()))
	} else {
		s.logger.DebugContext(ctx, "dashboard phase", slog.String("phase", phase))
	}

	if s.broadcaster == nil {
		return
	}
	if berr := s.broadcaster.Broadcast(ctx, events.MessageTypeSystemStatus, status); berr != nil {
		s.logger.WarnContext(ctx, "status broadcast failed", slog.String("error", berr.Error()))
	}
}

func (s *DashboardService) broadcastSummaries(ctx context.Context) {
	if s.broadcaster == nil {
		return
	}
	sel, summaries, at := s.Snapshot()
	update := events.SummaryUpdate{Selection: sel, Summaries: summaries, ComputedAt: at}
	if err := s.broadcaster.Broadcast(ctx, events.MessageTypeSummaryUpdate, update); err != nil {
		s.logger.WarnContext(ctx, "summary broadcast failed", slog.String("error", err.Error()))
	}
}

// Status reports the current bootstrap phase
func (s *DashboardService) Status() events.SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := events.SystemStatus{Phase: s.phase, Ready: s.phase == events.PhaseReady}
	if s.lastErr != nil {
		status.Message = s.lastErr.Error()
	}
	return status
}

// Ready reports whether the dashboard can serve summaries
func (s *DashboardService) Ready() bool {
	return s.Status().Ready
}

// Selection returns the current selection
func (s *DashboardService) Selection() domain.Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection
}

// Snapshot returns the current selection with its tables. The returned
// tables are shared and must not be modified.
func (s *DashboardService) Snapshot() (domain.Selection, map[domain.DatasetKind]domain.SummaryTable, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.DatasetKind]domain.SummaryTable, len(s.summaries))
	for k, v := range s.summaries {
		out[k] = v
	}
	return s.selection, out, s.computedAt
}

// Summary returns the table for kind. An empty sex uses the current selection;
// any other sex is computed on demand without changing the selection.
func (s *DashboardService) Summary(ctx context.Context, kind domain.DatasetKind, sex domain.Sex) (api.SummaryResponse, error) {
	s.mu.RLock()
	ready := s.phase == events.PhaseReady
	p, ok := s.pipelines[kind]
	sel := s.selection
	cached := s.summaries[kind]
	at := s.computedAt
	s.mu.RUnlock()

	if !ready {
		return api.SummaryResponse{}, ErrNotReady
	}
	if !ok {
		return api.SummaryResponse{}, fmt.Errorf("%w: %s", domain.ErrDatasetNotFound, kind)
	}

	table := cached
	if sex != "" && sex != sel.Sex {
		query := domain.Selection{Sex: sex, MaxYear: sel.MaxYear}
		if err := validateSelection(query); err != nil {
			return api.SummaryResponse{}, err
		}
		start := time.Now()
		var err error
		table, err = p.Summarize(query)
		s.metrics.RecordCompute(ctx, string(kind), string(sex), len(table), time.Since(start), err)
		if err != nil {
			return api.SummaryResponse{}, err
		}
		sel = query
		at = time.Now().UTC()
	}

	return api.SummaryResponse{
		Dataset:   kind,
		Sex:       sel.Sex,
		MaxYear:   sel.MaxYear,
		Rows:      len(table),
		Table:     table,
		Generated: at,
	}, nil
}

// Dashboard assembles the page view model for the current selection
func (s *DashboardService) Dashboard(ctx context.Context) (api.DashboardResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.phase != events.PhaseReady {
		return api.DashboardResponse{}, ErrNotReady
	}

	resp := api.DashboardResponse{
		Selection: s.selection,
		Charts:    make([]api.ChartView, 0, len(s.pipelines)),
		Stats:     make(map[domain.DatasetKind]api.DatasetStats, len(s.pipelines)),
	}
	for _, kind := range domain.DatasetKinds() {
		p, ok := s.pipelines[kind]
		if !ok {
			continue
		}
		resp.Charts = append(resp.Charts, api.ChartView{
			Spec:     p.Chart,
			Table:    s.summaries[kind],
			ImageURL: ChartURL(kind, "svg", s.selection),
		})
		resp.Stats[kind] = api.DatasetStats{
			Source:  p.Stats.Source,
			Rows:    p.Stats.Rows,
			Loaded:  p.Stats.Loaded,
			Skipped: p.Stats.Skipped,
		}
	}
	return resp, nil
}

// Snapshots lists recent recomputations, newest first
func (s *DashboardService) Snapshots(ctx context.Context, limit int) ([]api.Snapshot, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	snaps, err := s.store.ListSnapshots(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snaps, nil
}

// StoreHealth pings the selection store. A disabled store is healthy.
func (s *DashboardService) StoreHealth(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Ping(ctx); err != nil {
		return errors.Join(errors.New("selection store unavailable"), err)
	}
	return nil
}

// ChartURL builds the image URL for kind. The selection is part of the query
// so browsers refetch the image when it changes.
func ChartURL(kind domain.DatasetKind, format string, sel domain.Selection) string {
	q := url.Values{}
	q.Set("sex", string(sel.Sex))
	if sel.MaxYear > 0 {
		q.Set("max_year", strconv.Itoa(sel.MaxYear))
	}
	return fmt.Sprintf("/api/charts/%s.%s?%s", kind, format, q.Encode())
}
