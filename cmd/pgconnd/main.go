package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/crtsh/mod-pgconn/internal/api"
	"github.com/crtsh/mod-pgconn/internal/backend"
	"github.com/crtsh/mod-pgconn/internal/config"
	"github.com/crtsh/mod-pgconn/internal/metrics"
	"github.com/crtsh/mod-pgconn/internal/registry"
	"github.com/crtsh/mod-pgconn/pkg/logging"
)

func main() {
	// Load .env file if present (ignore error if file doesn't exist)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector()

	logger.Info("Starting pgconnd", "pools", len(cfg.Pools))

	pg := backend.NewPostgres()

	reg := registry.New(registry.Options{
		Backend:         pg,
		CatalogProvider: backend.ProcCatalogProvider,
		SweepInterval:   cfg.Sweep.Interval,
		Logger:          logger,
		Metrics:         metricsCollector,
	})
	defer reg.CloseAll()

	// Register every configured pool. A pool that cannot come up is a
	// startup failure, matching the fail-fast behavior of configuration
	// errors.
	ctx := context.Background()
	for _, pc := range cfg.Pools {
		if _, err := reg.Register(ctx, pc.ToDomain()); err != nil {
			logger.Fatal("Failed to register pool", "pool", pc.Name, "error", err)
		}
	}

	// Start metrics gauge updater
	gaugeCtx, cancelGauge := context.WithCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Recovered from panic in metrics updater",
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gaugeCtx.Done():
				return
			case <-ticker.C:
				for _, stats := range reg.Stats() {
					metricsCollector.PoolIdle.WithLabelValues(stats.Name).Set(float64(stats.Idle))
					metricsCollector.PoolCheckedOut.WithLabelValues(stats.Name).Set(float64(stats.CheckedOut))
					metricsCollector.PoolLive.WithLabelValues(stats.Name).Set(float64(stats.Live))
					metricsCollector.PoolHardMax.WithLabelValues(stats.Name).Set(float64(stats.HardMax))
					metricsCollector.PoolAvailability.WithLabelValues(stats.Name).Set(float64(stats.Availability()))
				}
			}
		}
	}()
	defer cancelGauge()

	// Create API handler
	handler := api.NewHandler(reg, metricsCollector, cfg.API.Key, logger)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Channel to receive server errors from goroutine
	serverErrCh := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("Server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			serverErrCh <- err
		}
	}()

	// Wait for interrupt signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received signal, shutting down", "signal", sig)
	case err := <-serverErrCh:
		logger.Error("Server failed, initiating shutdown", "error", err)
	}

	logger.Info("Shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}
