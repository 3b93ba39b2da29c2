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
	"github.com/robfig/cron/v3"

	"github.com/optionpay/payout-service/internal/api/routes"
	"github.com/optionpay/payout-service/internal/infrastructure/config"
	"github.com/optionpay/payout-service/internal/infrastructure/database"
	"github.com/optionpay/payout-service/internal/infrastructure/di"
	"github.com/optionpay/payout-service/pkg/logger"
	"github.com/optionpay/payout-service/pkg/metrics"
	"github.com/optionpay/payout-service/pkg/tracing"
)

// Application owns process lifecycle: config, wiring, HTTP server and
// the reconciliation cron.
type Application struct {
	cfg       *config.Config
	log       *logger.Logger
	server    *http.Server
	container *di.Container
	cron      *cron.Cron

	tracingShutdown tracing.ShutdownFunc
	metricsStop     chan struct{}
}

// NewApplication creates a new application instance
func NewApplication() *Application {
	return &Application{metricsStop: make(chan struct{})}
}

// Initialize loads configuration and wires every dependency.
func (app *Application) Initialize() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.cfg = cfg

	log := logger.New(cfg.LogLevel, cfg.Environment)
	app.log = log

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.RunMigrations(cfg.Database); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := app.initializeTracing(); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	container, err := di.NewContainer(cfg, db, log)
	if err != nil {
		return fmt.Errorf("failed to create DI container: %w", err)
	}
	app.container = container

	if err := app.initializeReconcileCron(); err != nil {
		return fmt.Errorf("failed to initialize reconciliation cron: %w", err)
	}

	app.initializeServer()
	return nil
}

func (app *Application) initializeTracing() error {
	tracingConfig := tracing.Config{
		Enabled:      app.cfg.Tracing.Enabled,
		ServiceName:  "payout-service",
		CollectorURL: app.cfg.Tracing.CollectorURL,
		Environment:  app.cfg.Environment,
		SampleRate:   sampleRate(app.cfg.Environment),
	}

	shutdown, err := tracing.InitTracer(context.Background(), tracingConfig, app.log.Zap())
	if err != nil {
		return err
	}
	app.tracingShutdown = shutdown
	return nil
}

// initializeReconcileCron schedules the sweep that recovers withdrawal
// requests stranded by partial card-rail failures.
func (app *Application) initializeReconcileCron() error {
	if !app.cfg.Reconcile.Enabled {
		app.log.Info("Reconciliation sweep disabled")
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(app.cfg.Reconcile.CronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := app.container.ReconcileService.SweepPartialFailures(ctx); err != nil {
			app.log.Error("Reconciliation sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", app.cfg.Reconcile.CronSpec, err)
	}

	app.cron = c
	return nil
}

func (app *Application) initializeServer() {
	if app.cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	routes.Register(
		router,
		routes.Handlers{
			Withdrawal: app.container.WithdrawalHandlers,
			Admin:      app.container.AdminHandlers,
			Webhooks:   app.container.WebhookHandlers,
		},
		app.container.JWTService,
		time.Duration(app.cfg.Server.WriteTimeout)*time.Second,
		app.log,
	)

	app.server = &http.Server{
		Addr:           fmt.Sprintf(":%d", app.cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(app.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(app.cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}

// Start launches the HTTP server and background loops.
func (app *Application) Start() error {
	go func() {
		app.log.Info("Starting server",
			"port", app.cfg.Server.Port,
			"environment", app.cfg.Environment,
		)
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.log.Fatal("Failed to start server", "error", err)
		}
	}()

	if app.cron != nil {
		app.cron.Start()
		app.log.Info("Reconciliation cron started", "spec", app.cfg.Reconcile.CronSpec)
	}

	go app.collectDatabaseMetrics()
	return nil
}

func (app *Application) collectDatabaseMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.metricsStop:
			return
		case <-ticker.C:
			stats := app.container.DB.Stats()
			metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
			metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
			metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
		}
	}
}

// Shutdown drains the server and stops background loops.
func (app *Application) Shutdown() error {
	app.log.Info("Shutting down server...")

	if app.cron != nil {
		cronCtx := app.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-time.After(time.Minute):
			app.log.Warn("Reconciliation cron did not stop in time")
		}
	}
	close(app.metricsStop)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	if app.tracingShutdown != nil {
		if err := app.tracingShutdown(context.Background()); err != nil {
			app.log.Warn("Error shutting down tracing", "error", err)
		}
	}

	if err := app.container.Close(); err != nil {
		app.log.Warn("Error closing container", "error", err)
	}

	app.log.Info("Server exited gracefully")
	return app.log.Sync()
}

// WaitForShutdown blocks until SIGINT or SIGTERM.
func (app *Application) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}

func sampleRate(env string) float64 {
	switch env {
	case "production":
		return 0.1
	case "staging":
		return 0.5
	default:
		return 1.0
	}
}
