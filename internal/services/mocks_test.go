package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"

	"bmidash/internal/dataprocessing"
	"bmidash/internal/shared/testutil"
	api "bmidash/pkg/contracts/api/v1"
	"bmidash/pkg/contracts/domain"
	"bmidash/pkg/contracts/events"
)

type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) Broadcast(ctx context.Context, msgType events.MessageType, data interface{}) error {
	args := m.Called(ctx, msgType, data)
	return args.Error(0)
}

// phases returns the system:status phases broadcast so far, in order
func (m *MockBroadcaster) phases() []string {
	var out []string
	for _, call := range m.Calls {
		if call.Arguments.Get(1) == events.MessageTypeSystemStatus {
			out = append(out, call.Arguments.Get(2).(events.SystemStatus).Phase)
		}
	}
	return out
}

type MockSelectionStore struct {
	mock.Mock
}

func (m *MockSelectionStore) SaveSelection(ctx context.Context, sel domain.Selection) error {
	return m.Called(ctx, sel).Error(0)
}

func (m *MockSelectionStore) LoadSelection(ctx context.Context) (domain.Selection, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Selection), args.Bool(1), args.Error(2)
}

func (m *MockSelectionStore) AppendSnapshots(ctx context.Context, snapshots []api.Snapshot) error {
	return m.Called(ctx, snapshots).Error(0)
}

func (m *MockSelectionStore) ListSnapshots(ctx context.Context, limit int) ([]api.Snapshot, error) {
	args := m.Called(ctx, limit)
	snaps, _ := args.Get(0).([]api.Snapshot)
	return snaps, args.Error(1)
}

func (m *MockSelectionStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishSelectionChanged(ctx context.Context, evt events.SelectionChanged) error {
	return m.Called(ctx, evt).Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sampleSources writes the sample records once per dataset kind
func sampleSources(t *testing.T) []dataprocessing.Source {
	t.Helper()
	sources := make([]dataprocessing.Source, 0, 3)
	for _, kind := range domain.DatasetKinds() {
		sources = append(sources, dataprocessing.Source{
			Kind: kind,
			Path: testutil.WriteDatasetCSV(t, testutil.SampleRecords()),
		})
	}
	return sources
}

func newBroadcaster() *MockBroadcaster {
	b := new(MockBroadcaster)
	b.On("Broadcast", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return b
}
