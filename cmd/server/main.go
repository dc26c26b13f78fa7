// Package main is the entry point for the salesflow API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"salesflow/internal/config"
	corefeatures "salesflow/internal/core/features"
	corenumerator "salesflow/internal/core/numerator"
	"salesflow/internal/domain/auth"
	"salesflow/internal/domain/catalogs/customer"
	"salesflow/internal/domain/catalogs/item"
	"salesflow/internal/domain/credit"
	"salesflow/internal/domain/registers/itemledger"
	"salesflow/internal/domain/registers/payment"
	"salesflow/internal/domain/sales"
	"salesflow/internal/infrastructure/cache"
	v1 "salesflow/internal/infrastructure/http/v1"
	"salesflow/internal/infrastructure/metrics"
	"salesflow/internal/infrastructure/numerator"
	"salesflow/internal/infrastructure/storage/postgres"
	"salesflow/internal/infrastructure/storage/postgres/catalog_repo"
	"salesflow/internal/infrastructure/storage/postgres/document_repo"
	"salesflow/internal/infrastructure/storage/postgres/register_repo"
	"salesflow/pkg/logger"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.Development(),
		Service:     cfg.App.Name,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	log.Infow("starting salesflow server", "version", version, "env", cfg.App.Env)

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.AppName = cfg.App.Name
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool).WithStatementTimeout(cfg.Database.StatementTimeout)

	// --- Feature flags ---
	fallback := configFlags(cfg.Sales)
	flags := cache.NewFlagCache(pool.Pool, fallback)
	if err := flags.Start(ctx); err != nil {
		log.Warnw("feature flag table unavailable, using configuration", "error", err)
	}
	defer flags.Stop()

	// --- Metrics ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewPoolCollector(pool.Pool),
	)
	appMetrics := metrics.New(registry)

	// --- Domain services ---
	numeratorService := numerator.New(txManager)

	itemService := item.NewService(catalog_repo.NewItemRepo(txManager), numeratorService, txManager)
	customerService := customer.NewService(catalog_repo.NewCustomerRepo(txManager), numeratorService)

	ledgerService := itemledger.NewService(register_repo.NewItemLedgerRepo(txManager), itemService, flags)
	paymentService := payment.NewService(register_repo.NewPaymentRepo(txManager))

	salesRepo := document_repo.NewSalesRepo(txManager)
	creditService := credit.NewService(customerService, salesRepo, flags)

	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to create audit service", "error", err)
	}

	infra, err := newInfrastructure(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to initialize infrastructure", "error", err)
	}
	defer infra.Close()

	salesCfg := sales.Config{
		ProofRequired:     sales.ParseStatuses(cfg.Sales.ProofRequiredStatuses),
		NumeratorStrategy: numeratorStrategy(cfg.Sales.NumeratorStrategy),
	}
	opts := []sales.Option{
		sales.WithNotifier(infra.notifier),
		sales.WithAuditor(auditService),
		sales.WithCreditChecker(creditService),
		sales.WithMetrics(appMetrics),
	}
	if infra.files != nil {
		opts = append(opts, sales.WithFileStore(infra.files))
	}
	if infra.locker != nil {
		opts = append(opts, sales.WithLocker(infra.locker))
	}
	salesService := sales.NewService(salesRepo, ledgerService, paymentService, numeratorService, txManager, salesCfg, opts...)

	// --- JWT ---
	jwtConfig := auth.DefaultJWTConfig(cfg.JWT.Secret)
	if cfg.JWT.Issuer != "" {
		jwtConfig.Issuer = cfg.JWT.Issuer
	}
	jwtService := auth.NewJWTService(jwtConfig)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:               pool.Pool,
		Logger:             log,
		Metrics:            appMetrics,
		Gatherer:           registry,
		JWTValidator:       jwtService,
		IdempotencyStore:   postgres.NewIdempotencyStore(txManager, cfg.Worker.IdempotencyTTL),
		IdempotencyEnabled: cfg.HTTP.IdempotencyEnabled,
		MaxProofSize:       cfg.HTTP.MaxProofSize,
		Sales:              salesService,
		Audit:              auditService,
		Items:              itemService,
		Customers:          customerService,
		Stock:              ledgerService,
		HealthChecks:       infra.healthChecks,
		Version:            version,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Infow("server starting", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// configFlags builds the configured flag values used when the flag table has
// no row for a key.
func configFlags(c config.SalesConfig) *corefeatures.InMemoryFlags {
	return corefeatures.NewInMemoryFlags().
		SetFlag(corefeatures.FlagRestrictSellAboveMRP, c.RestrictSellAboveMRP).
		SetFlag(corefeatures.FlagRestrictSellBelowMSP, c.RestrictSellBelowMSP).
		SetFlag(corefeatures.FlagCreditLimitCheck, c.CreditLimitCheck)
}

func numeratorStrategy(s string) corenumerator.Strategy {
	if s == "cached" {
		return corenumerator.StrategyCached
	}
	return corenumerator.StrategyStrict
}
