package services

import (
	"context"
	"log/slog"
	"runtime"
	"strconv"
	"time"

	"bmidash/pkg/contracts"
	"bmidash/pkg/contracts/events"
)

// StatusReporter exposes the dashboard bootstrap phase
type StatusReporter interface {
	Status() events.SystemStatus
	StoreHealth(ctx context.Context) error
}

// ClientCounter reports connected websocket clients
type ClientCounter interface {
	ClientCount() int
}

// HealthService provides health check functionality
type HealthService struct {
	dashboard StatusReporter
	hub       ClientCounter
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// Ready reports whether every checked service is ready
func (s HealthStatus) Ready() bool {
	return s.Status == "ready"
}

// NewHealthService creates a health service. hub may be nil.
func NewHealthService(dashboard StatusReporter, hub ClientCounter, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		dashboard: dashboard,
		hub:       hub,
		startTime: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   contracts.Version,
	}
	hs.logger.DebugContext(ctx, "health check", slog.String("status", status.Status))
	return status
}

// ReadinessCheck returns readiness status
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Services: map[string]ServiceHealth{
			"dashboard": hs.checkDashboardHealth(),
			"storage":   hs.checkStorageHealth(ctx),
			"websocket": hs.checkWebSocketHealth(),
		},
	}

	for name, service := range status.Services {
		if service.Status != "ready" {
			status.Status = "not_ready"
			hs.logger.WarnContext(ctx, "service not ready",
				slog.String("service", name),
				slog.String("message", service.Message))
		}
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	info := contracts.GetVersionInfo()
	return map[string]interface{}{
		"version":             info.Version,
		"data_format_version": info.DataFormat,
		"api_version":         info.APIVersion,
		"build_time":          info.BuildTime,
		"git_commit":          info.GitCommit,
		"go_version":          info.GoVersion,
		"os":                  info.OS,
		"arch":                info.Architecture,
		"uptime":              time.Since(hs.startTime).Seconds(),
		"start_time":          hs.startTime.Format(time.RFC3339),
	}
}

func (hs *HealthService) checkDashboardHealth() ServiceHealth {
	if hs.dashboard == nil {
		return ServiceHealth{Status: "not_ready", Message: "dashboard not initialized"}
	}
	st := hs.dashboard.Status()
	if !st.Ready {
		msg := "phase: " + st.Phase
		if st.Message != "" {
			msg += ": " + st.Message
		}
		return ServiceHealth{Status: "not_ready", Message: msg}
	}
	return ServiceHealth{Status: "ready", Message: "summaries computed"}
}

func (hs *HealthService) checkStorageHealth(ctx context.Context) ServiceHealth {
	if hs.dashboard == nil {
		return ServiceHealth{Status: "ready", Message: "storage disabled"}
	}
	if err := hs.dashboard.StoreHealth(ctx); err != nil {
		return ServiceHealth{Status: "not_ready", Message: err.Error()}
	}
	return ServiceHealth{Status: "ready"}
}

func (hs *HealthService) checkWebSocketHealth() ServiceHealth {
	if hs.hub == nil {
		return ServiceHealth{Status: "ready", Message: "websocket disabled"}
	}
	return ServiceHealth{
		Status:  "ready",
		Message: "clients: " + strconv.Itoa(hs.hub.ClientCount()),
		Uptime:  time.Since(hs.startTime).Round(time.Second).String(),
	}
}
