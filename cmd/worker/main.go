// Package main is the entry point for the salesflow background worker.
// It reconciles stock with the item ledger and expires idempotency keys.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"salesflow/internal/config"
	"salesflow/internal/core/features"
	"salesflow/internal/domain/catalogs/item"
	"salesflow/internal/domain/registers/itemledger"
	"salesflow/internal/infrastructure/metrics"
	"salesflow/internal/infrastructure/numerator"
	"salesflow/internal/infrastructure/storage/postgres"
	"salesflow/internal/infrastructure/storage/postgres/catalog_repo"
	"salesflow/internal/infrastructure/storage/postgres/register_repo"
	"salesflow/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.Development(),
		Service:     cfg.App.Name + "-worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("starting salesflow worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.AppName = cfg.App.Name + "-worker"
	poolCfg.MaxConns = 4
	poolCfg.MinConns = 1

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool).WithStatementTimeout(cfg.Database.StatementTimeout)

	itemService := item.NewService(catalog_repo.NewItemRepo(txManager), numerator.New(txManager), txManager)
	ledger := itemledger.NewService(register_repo.NewItemLedgerRepo(txManager), itemService, features.NewInMemoryFlags())

	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewPoolCollector(pool.Pool))

	worker := NewWorker(WorkerDeps{
		TxManager:   txManager,
		Ledger:      ledger,
		Idempotency: postgres.NewIdempotencyStore(txManager, cfg.Worker.IdempotencyTTL),
		Metrics:     metrics.New(registry),
		Log:         log,
	}, cfg.Worker)

	var metricsServer *http.Server
	if cfg.Worker.MetricsPort != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: ":" + cfg.Worker.MetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("metrics server failed", "error", err)
			}
		}()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()
	wg.Wait()

	if metricsServer != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		stop()
	}
	log.Info("worker stopped")
}
