package main

import (
	"context"
	"time"

	"salesflow/internal/config"
	appctx "salesflow/internal/core/context"
	"salesflow/internal/domain/registers/itemledger"
	"salesflow/pkg/logger"
)

// Reconciler rebuilds drifted stock rows.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]itemledger.StockDrift, error)
}

// IdempotencyCleaner removes expired idempotency keys.
type IdempotencyCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// TxRunner runs fn in a transaction.
type TxRunner interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// DriftObserver counts corrected stock rows.
type DriftObserver interface {
	StockDriftCorrected(n int)
}

// WorkerDeps are the collaborators of Worker.
type WorkerDeps struct {
	TxManager   TxRunner
	Ledger      Reconciler
	Idempotency IdempotencyCleaner
	Metrics     DriftObserver
	Log         *logger.Logger
}

// Worker runs periodic maintenance jobs.
type Worker struct {
	deps                WorkerDeps
	log                 *logger.Logger
	reconcileInterval   time.Duration
	idempotencyInterval time.Duration
}

func NewWorker(deps WorkerDeps, cfg config.WorkerConfig) *Worker {
	return &Worker{
		deps:                deps,
		log:                 deps.Log.WithComponent("worker"),
		reconcileInterval:   cfg.ReconcileInterval,
		idempotencyInterval: cfg.IdempotencyInterval,
	}
}

// Run blocks until ctx is cancelled. Stock is reconciled once at start.
func (w *Worker) Run(ctx context.Context) {
	reconcileTicker := time.NewTicker(w.reconcileInterval)
	defer reconcileTicker.Stop()

	cleanupTicker := time.NewTicker(w.idempotencyInterval)
	defer cleanupTicker.Stop()

	w.reconcileStock(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-reconcileTicker.C:
			w.reconcileStock(ctx)
		case <-cleanupTicker.C:
			w.cleanupIdempotency(ctx)
		}
	}
}

func (w *Worker) reconcileStock(ctx context.Context) {
	ctx = appctx.StartJob(ctx, "reconcile_stock")
	log := w.log.WithContext(ctx)

	var drift []itemledger.StockDrift
	err := w.deps.TxManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		drift, err = w.deps.Ledger.Reconcile(ctx)
		return err
	})
	if err != nil {
		log.Errorw("stock reconciliation failed", "error", err)
		return
	}

	if len(drift) > 0 {
		w.deps.Metrics.StockDriftCorrected(len(drift))
		log.Warnw("corrected stock drift", "rows", len(drift))
	}
}

func (w *Worker) cleanupIdempotency(ctx context.Context) {
	ctx = appctx.StartJob(ctx, "cleanup_idempotency")
	log := w.log.WithContext(ctx)

	n, err := w.deps.Idempotency.CleanupExpired(ctx)
	if err != nil {
		log.Errorw("idempotency cleanup failed", "error", err)
		return
	}
	if n > 0 {
		log.Infow("cleaned up idempotency keys", "count", n)
	}
}
