package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"bmidash/internal/config"
	"bmidash/internal/dataprocessing"
	apierrors "bmidash/internal/errors"
	"bmidash/internal/infrastructure"
	"bmidash/internal/messaging"
	customMiddleware "bmidash/internal/middleware"
	"bmidash/internal/services"
	"bmidash/internal/storage"
	handlers "bmidash/internal/transport/http"
	"bmidash/internal/validation"
	ws "bmidash/internal/websocket"
	"bmidash/pkg/contracts"
	"bmidash/pkg/contracts/domain"
)

const AppName = "BMI Dashboard"

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.BusinessMetrics
	WebSocketHub  *ws.Hub
	Dashboard     *services.DashboardService
	HealthService *services.HealthService
	Store         *storage.SQLiteStore
	Messaging     *messaging.Client

	errorHandler *apierrors.ErrorHandler
	stopOnce     sync.Once
}

// DatasetSources resolves the three dataset files from cfg in dashboard order
func DatasetSources(cfg *config.Config) []dataprocessing.Source {
	kinds := domain.DatasetKinds()
	sources := make([]dataprocessing.Source, 0, len(kinds))
	for _, kind := range kinds {
		sources = append(sources, dataprocessing.Source{Kind: kind, Path: cfg.DatasetPath(kind)})
	}
	return sources
}

// NewApplication wires every component from cfg. A nil logger falls back to
// the process-wide logger built from cfg.Logging.
func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		var err error
		logger, err = infrastructure.InitializeLogger(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
	}

	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", contracts.Version),
		slog.String("data_dir", cfg.Data.Dir))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry, contracts.Version), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	a := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		errorHandler:  apierrors.NewErrorHandler(logger, cfg.Logging.Development),
	}

	if err := a.initializeServices(); err != nil {
		a.closeResources(context.Background())
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := a.setupRouter(); err != nil {
		a.closeResources(context.Background())
		return nil, fmt.Errorf("failed to set up router: %w", err)
	}
	a.createServer()

	return a, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices() error {
	metrics, err := infrastructure.CreateBusinessMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create business metrics: %w", err)
	}
	a.Metrics = metrics

	wsMetrics, err := ws.NewOTelMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create websocket metrics: %w", err)
	}
	a.WebSocketHub = ws.NewHub(a.Logger, wsMetrics)
	a.WebSocketHub.Start()

	deps := services.DashboardDeps{
		Loader:      dataprocessing.NewLoader(a.Logger, dataprocessing.ParseOptions{ValueColumn: a.Config.Data.ValueColumn}),
		Sources:     DatasetSources(a.Config),
		Broadcaster: a.WebSocketHub,
		Metrics:     metrics,
		Logger:      a.Logger,
	}

	paths := a.Config.Paths()
	if err := paths.EnsureDirectories(); err != nil {
		return err
	}
	paths.LogPathResolution(a.Logger)

	if a.Config.Storage.Enabled {
		store, err := storage.Open(a.Config.Storage.Path, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to open selection store: %w", err)
		}
		a.Store = store
		deps.Store = store
	}

	if a.Config.Messaging.Enabled {
		client, err := messaging.Dial(a.Config.Messaging, a.Logger)
		if err != nil {
			// The dashboard works without the broker; events are dropped
			a.Logger.Warn("AMQP unavailable, selection events disabled",
				slog.String("error", err.Error()))
		} else {
			a.Messaging = client
			deps.Publisher = client
		}
	}

	a.Dashboard = services.NewDashboardService(deps)
	a.HealthService = services.NewHealthService(a.Dashboard, a.WebSocketHub, a.Logger)
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() error {
	r := chi.NewRouter()

	// Minimal middleware that does not wrap the ResponseWriter, so /ws can hijack
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	r.NotFound(a.errorHandler.NotFound)
	r.MethodNotAllowed(a.errorHandler.MethodNotAllowed)

	wsHandler := handlers.NewWebSocketHandler(a.WebSocketHub, a.Config.Security.AllowedOrigins, a.Logger)
	r.With(customMiddleware.WebSocketTraceMiddleware(a.Logger)).Handle("/ws", wsHandler)

	pageHandler, err := handlers.NewPageHandler(a.Dashboard, a.Logger, a.errorHandler)
	if err != nil {
		return fmt.Errorf("failed to parse page templates: %w", err)
	}

	otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders, a.Metrics)
	if err != nil {
		return fmt.Errorf("failed to create OpenTelemetry middleware: %w", err)
	}

	r.Group(func(r chi.Router) {
		// RequestID → RealIP → OTel → Logger → Recoverer → Timeout
		r.Use(otelMiddleware.Handler)
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.Compress(5))

		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(a.corsConfig()))
		}
		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r)
		r.Get("/", pageHandler.ServeDashboard)
	})

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
	return nil
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(customMiddleware.Timeout(a.Config.Server.ReadTimeout, a.Logger))
		r.Use(customMiddleware.NewValidationMiddleware(a.Logger, a.errorHandler).ValidateRequest)

		healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/health/ready", healthHandler.ReadinessCheck)
		r.Get("/health/live", healthHandler.LivenessCheck)
		r.Get("/version", healthHandler.Version)

		r.With(customMiddleware.ContentTypeValidator(a.errorHandler, "application/json")).
			Post("/client-log", handlers.NewClientLogHandler(a.Logger, a.errorHandler).Handle)

		handlers.NewDashboardHandler(a.Dashboard, a.Logger, a.errorHandler).RegisterRoutes(r)
	})
}

func (a *Application) corsConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins:   a.Config.Security.AllowedOrigins,
		AllowedMethods:   []string{"GET", "PUT", "POST", "OPTIONS"},
		AllowCredentials: false,
		Logger:           a.Logger,
	}
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Bootstrap loads the datasets and computes the first summaries. Until it
// returns the dashboard answers 503 and readiness reports the current phase.
func (a *Application) Bootstrap(ctx context.Context) error {
	start := time.Now()
	if err := validation.NewFileValidator(a.Logger).ValidateSources(DatasetSources(a.Config)); err != nil {
		a.Logger.WarnContext(ctx, "Dataset preflight failed", slog.String("error", err.Error()))
	}
	if err := a.Dashboard.Init(ctx); err != nil {
		a.Logger.ErrorContext(ctx, "Dashboard bootstrap failed", slog.String("error", err.Error()))
		return err
	}
	a.Logger.InfoContext(ctx, "Dashboard ready",
		slog.String("sex", string(a.Dashboard.Selection().Sex)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Start binds the listener, serves in the background and bootstraps the
// dashboard. cancel is called when the server stops unexpectedly.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}

	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", AppName),
		slog.String("version", contracts.Version),
		slog.String("address", ln.Addr().String()),
		slog.Bool("storage", a.Store != nil),
		slog.Bool("messaging", a.Messaging != nil))

	go func() {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	go func() {
		_ = a.Bootstrap(ctx)
	}()

	return nil
}

// Stop gracefully stops the application. Later calls are no-ops.
func (a *Application) Stop(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		shutdownErr = a.stop(ctx)
	})
	return shutdownErr
}

func (a *Application) stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		shutdownErr = fmt.Errorf("server shutdown error: %w", err)
	}

	a.closeResources(shutdownCtx)

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return shutdownErr
}

func (a *Application) closeResources(ctx context.Context) {
	if a.WebSocketHub != nil {
		a.WebSocketHub.Stop()
	}
	if a.Messaging != nil {
		if err := a.Messaging.Close(); err != nil {
			a.Logger.ErrorContext(ctx, "Error closing AMQP client", slog.String("error", err.Error()))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.ErrorContext(ctx, "Error closing selection store", slog.String("error", err.Error()))
		}
	}
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(ctx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}
}

// Run runs the application until interrupted
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.Start(runCtx, cancel); err != nil {
		return err
	}

	<-runCtx.Done()
	a.Logger.Info("Received shutdown signal")

	return a.Stop(context.Background())
}
