package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/antidetect/dashboard_service/internal/api/middleware"
	"github.com/antidetect/dashboard_service/internal/api/routes"
	"github.com/antidetect/dashboard_service/internal/domain/services/audit"
	"github.com/antidetect/dashboard_service/internal/infrastructure/cache"
	"github.com/antidetect/dashboard_service/internal/infrastructure/config"
	"github.com/antidetect/dashboard_service/internal/infrastructure/database"
	"github.com/antidetect/dashboard_service/internal/infrastructure/di"
	"github.com/antidetect/dashboard_service/internal/workers/fee_refresh"
	"github.com/antidetect/dashboard_service/pkg/logger"
	"github.com/antidetect/dashboard_service/pkg/tracing"
)

const (
	shutdownTimeout   = 30 * time.Second
	poolStatsInterval = 30 * time.Second
	loginIdleTTL      = 10 * time.Minute
)

// Application represents the main application
type Application struct {
	cfg       *config.Config
	log       *logger.Logger
	server    *http.Server
	container *di.Container

	db          *sqlx.DB
	redis       *redis.Client
	scheduler   *fee_refresh.Scheduler
	loginLimits *middleware.AuthRateLimiter

	// Cancels background loops started in Start
	stop context.CancelFunc

	tracingShutdown func(context.Context) error
}

// NewApplication creates a new application instance
func NewApplication() *Application {
	return &Application{}
}

// Initialize initializes the application
func (app *Application) Initialize() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.cfg = cfg

	app.log = logger.New(cfg.LogLevel, cfg.Environment)

	if err := app.initializeTracing(); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	ctx := context.Background()

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db

	if err := database.Migrate(db, app.log.Zap()); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.redis = redisClient

	container, err := di.NewContainer(ctx, cfg, db, redisClient, app.log)
	if err != nil {
		return fmt.Errorf("failed to create DI container: %w", err)
	}
	app.container = container

	if err := app.initializeServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	if err := app.initializeWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}

	return nil
}

// initializeTracing initializes OpenTelemetry tracing
func (app *Application) initializeTracing() error {
	tracingConfig := tracing.Config{
		Enabled:      app.cfg.Tracing.Enabled && app.cfg.Environment != "test",
		CollectorURL: app.cfg.Tracing.CollectorURL,
		Environment:  app.cfg.Environment,
		SampleRate:   getSampleRate(app.cfg.Environment),
	}

	shutdown, err := tracing.InitTracer(context.Background(), tracingConfig, app.log.Zap())
	if err != nil {
		return err
	}
	app.tracingShutdown = shutdown
	if tracingConfig.Enabled {
		app.log.Info("OpenTelemetry tracing initialized", "collector_url", tracingConfig.CollectorURL)
	}
	return nil
}

// initializeWorkers registers the fee refresh and maintenance jobs
func (app *Application) initializeWorkers() error {
	schedulerConfig := fee_refresh.DefaultConfig()
	if app.cfg.Fees.RefreshSpec != "" {
		schedulerConfig.Spec = app.cfg.Fees.RefreshSpec
	}

	scheduler, err := fee_refresh.NewScheduler(schedulerConfig, app.container.FeeService, app.log)
	if err != nil {
		return err
	}

	if err := scheduler.AddJob("purge_pending_2fa", "@every 1m", func(context.Context) {
		if n := app.container.SettingsService.PurgeExpired(); n > 0 {
			app.log.Debug("Purged expired two-factor setups", "count", n)
		}
	}); err != nil {
		return err
	}

	if err := scheduler.AddJob("prune_login_limiter", "@every 5m", func(context.Context) {
		if n := app.loginLimits.Cleanup(loginIdleTTL); n > 0 {
			app.log.Debug("Pruned idle login rate limit entries", "count", n)
		}
	}); err != nil {
		return err
	}

	if app.cfg.Audit.HashChain {
		if err := scheduler.AddJob("verify_audit_chain", "@daily", func(ctx context.Context) {
			end := time.Now().UTC()
			result, err := app.container.AuditService.VerifyIntegrity(ctx, end.Add(-24*time.Hour), end)
			if err != nil {
				app.log.Warn("Audit chain verification failed", "error", err)
				return
			}
			if result.IntegrityStatus != audit.IntegrityVerified {
				app.log.Error("Audit chain integrity check failed",
					"status", result.IntegrityStatus,
					"tampered", len(result.TamperedLogs),
					"broken_links", len(result.BrokenLinks),
				)
			}
		}); err != nil {
			return err
		}
	}

	app.scheduler = scheduler
	return nil
}

// initializeServer initializes the HTTP server
func (app *Application) initializeServer() error {
	if app.cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router, loginLimits := routes.SetupRoutes(app.container)
	app.loginLimits = loginLimits

	app.server = &http.Server{
		Addr:           fmt.Sprintf(":%d", app.cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(app.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(app.cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
	return nil
}

// Start starts the application
func (app *Application) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	app.stop = cancel

	go func() {
		app.log.Info("Starting server",
			"port", app.cfg.Server.Port,
			"environment", app.cfg.Environment,
			"read_timeout", app.cfg.Server.ReadTimeout,
			"write_timeout", app.cfg.Server.WriteTimeout,
		)

		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.log.Fatal("Failed to start server", "error", err)
		}
	}()

	if err := app.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	go database.ReportPoolStats(ctx, app.db, poolStatsInterval)

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.log.Info("Shutting down server...")

	if app.stop != nil {
		app.stop()
	}

	if app.scheduler != nil {
		if err := app.scheduler.Shutdown(shutdownTimeout); err != nil {
			app.log.Warn("Error stopping scheduler", "error", err)
		}
	}

	// Close sessions and websockets first so hijacked connections do not hold up Shutdown
	app.container.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := app.server.Shutdown(ctx); err != nil {
		shutdownErr = fmt.Errorf("server forced to shutdown: %w", err)
	}

	if err := app.redis.Close(); err != nil {
		app.log.Warn("Error closing redis", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.log.Warn("Error closing database", "error", err)
	}

	if app.tracingShutdown != nil {
		if err := app.tracingShutdown(ctx); err != nil {
			app.log.Warn("Error flushing traces", "error", err)
		}
	}

	app.log.Info("Server exited")
	_ = app.log.Sync()
	return shutdownErr
}

// WaitForShutdown waits for interrupt signal
func (app *Application) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}

// getSampleRate returns appropriate sampling rate based on environment
func getSampleRate(env string) float64 {
	switch env {
	case "production":
		return 0.1
	case "staging":
		return 0.5
	default:
		return 1.0
	}
}
