package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"bmidash/pkg/contracts"
	"bmidash/pkg/contracts/events"
)

type MockStatusReporter struct {
	mock.Mock
}

func (m *MockStatusReporter) Status() events.SystemStatus {
	return m.Called().Get(0).(events.SystemStatus)
}

func (m *MockStatusReporter) StoreHealth(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockClientCounter struct {
	mock.Mock
}

func (m *MockClientCounter) ClientCount() int {
	return m.Called().Int(0)
}

func TestHealthService_HealthCheck(t *testing.T) {
	hs := NewHealthService(nil, nil, discardLogger())
	status := hs.HealthCheck(context.Background())
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, contracts.Version, status.Version)
}

func TestHealthService_ReadinessCheck(t *testing.T) {
	tests := []struct {
		name      string
		status    events.SystemStatus
		storeErr  error
		wantReady bool
		notReady  string
	}{
		{
			name:      "ready",
			status:    events.SystemStatus{Phase: events.PhaseReady, Ready: true},
			wantReady: true,
		},
		{
			name:     "still loading",
			status:   events.SystemStatus{Phase: events.PhaseLoading},
			notReady: "dashboard",
		},
		{
			name:     "store down",
			status:   events.SystemStatus{Phase: events.PhaseReady, Ready: true},
			storeErr: errors.New("database is closed"),
			notReady: "storage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reporter := new(MockStatusReporter)
			reporter.On("Status").Return(tt.status)
			reporter.On("StoreHealth", mock.Anything).Return(tt.storeErr)
			hub := new(MockClientCounter)
			hub.On("ClientCount").Return(2)

			hs := NewHealthService(reporter, hub, discardLogger())
			status := hs.ReadinessCheck(context.Background())

			assert.Equal(t, tt.wantReady, status.Ready())
			assert.Equal(t, "clients: 2", status.Services["websocket"].Message)
			if tt.notReady != "" {
				assert.Equal(t, "not_ready", status.Services[tt.notReady].Status)
			}
		})
	}
}

func TestHealthService_ReadinessWithoutDashboard(t *testing.T) {
	hs := NewHealthService(nil, nil, discardLogger())
	status := hs.ReadinessCheck(context.Background())
	assert.False(t, status.Ready())
	assert.Equal(t, "dashboard not initialized", status.Services["dashboard"].Message)
}

func TestHealthService_LivenessAndVersion(t *testing.T) {
	hs := NewHealthService(nil, nil, discardLogger())

	live := hs.LivenessCheck(context.Background())
	assert.Equal(t, "alive", live.Status)
	assert.Contains(t, live.Runtime, "goroutines")

	version := hs.Version()
	assert.Equal(t, contracts.Version, version["version"])
	assert.Equal(t, contracts.APIVersion, version["api_version"])
}
