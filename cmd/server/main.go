package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/casilisto/sync/internal/config"
	"github.com/casilisto/sync/internal/handlers"
	"github.com/casilisto/sync/internal/middleware"
	"github.com/casilisto/sync/internal/observability"
	"github.com/casilisto/sync/internal/repository"
	"github.com/casilisto/sync/internal/services"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		observability.Errorf("server exited: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()

	telemetry, err := observability.Initialize(ctx, observability.NewConfig("casilisto-sync", version))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			observability.Warnf("telemetry shutdown: %v", err)
		}
	}()

	var db *sql.DB
	var driver string
	if cfg.UsePostgres() {
		driver = repository.DriverPostgres
		db, err = repository.NewPostgresDB(cfg.DatabaseURL)
	} else {
		driver = repository.DriverSQLite
		db, err = repository.NewSQLiteDB(cfg.DatabasePath)
	}
	if err != nil {
		return err
	}
	defer db.Close()
	observability.Infof("database ready (driver=%s)", driver)

	accountRepo := repository.NewAccountRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)
	stateRepo := repository.NewSyncStateRepository(db, driver)

	syncMetrics, err := observability.NewSyncMetrics()
	if err != nil {
		observability.Warnf("sync metrics unavailable: %v", err)
	}
	httpMetrics, err := observability.NewHTTPMetrics()
	if err != nil {
		observability.Warnf("http metrics unavailable: %v", err)
	}

	accountService := services.NewAccountService(accountRepo, deviceRepo, stateRepo, syncMetrics)
	syncService := services.NewSyncService(accountRepo, deviceRepo, stateRepo, syncMetrics)
	deviceService := services.NewDeviceService(accountRepo, deviceRepo, syncMetrics,
		cfg.DeviceSweepInterval(), cfg.DeviceMaxAge())

	deviceService.StartSweeper()
	defer deviceService.StopSweeper()

	limiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow())
	defer limiter.Stop()

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestSize(cfg.MaxBodyBytes))
	r.Use(observability.Middleware(httpMetrics))
	r.Use(limiter.Middleware)
	r.Mount("/", handlers.Routes(accountService, syncService, deviceService))

	server := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		observability.Infof("listening on %s", cfg.ServerAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		observability.Infof("received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
