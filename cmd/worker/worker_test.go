package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"salesflow/internal/config"
	"salesflow/internal/core/id"
	"salesflow/internal/domain/registers/itemledger"
	"salesflow/pkg/logger"
)

type directTx struct{ calls int }

func (t *directTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type fakeReconciler struct {
	drift []itemledger.StockDrift
	err   error
}

func (f fakeReconciler) Reconcile(context.Context) ([]itemledger.StockDrift, error) {
	return f.drift, f.err
}

type fakeCleaner struct{ calls int }

func (f *fakeCleaner) CleanupExpired(context.Context) (int64, error) {
	f.calls++
	return 3, nil
}

type driftCounter struct{ total int }

func (d *driftCounter) StockDriftCorrected(n int) { d.total += n }

func newTestWorker(r Reconciler, c IdempotencyCleaner, m DriftObserver, tx TxRunner) *Worker {
	return NewWorker(WorkerDeps{
		TxManager:   tx,
		Ledger:      r,
		Idempotency: c,
		Metrics:     m,
		Log:         logger.NewNop(),
	}, config.WorkerConfig{ReconcileInterval: time.Hour, IdempotencyInterval: time.Hour})
}

func TestWorker_ReconcileStock(t *testing.T) {
	drift := []itemledger.StockDrift{
		{ItemID: id.New(), WarehouseID: id.New()},
		{ItemID: id.New(), WarehouseID: id.New()},
	}

	tests := []struct {
		name      string
		reconcile fakeReconciler
		want      int
	}{
		{"drift corrected", fakeReconciler{drift: drift}, 2},
		{"no drift", fakeReconciler{}, 0},
		{"failure records nothing", fakeReconciler{drift: drift, err: errors.New("db down")}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &directTx{}
			counter := &driftCounter{}
			w := newTestWorker(tt.reconcile, &fakeCleaner{}, counter, tx)

			w.reconcileStock(context.Background())

			assert.Equal(t, 1, tx.calls)
			assert.Equal(t, tt.want, counter.total)
		})
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	tx := &directTx{}
	w := newTestWorker(fakeReconciler{}, &fakeCleaner{}, &driftCounter{}, tx)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_CleanupIdempotency(t *testing.T) {
	cleaner := &fakeCleaner{}
	w := newTestWorker(fakeReconciler{}, cleaner, &driftCounter{}, &directTx{})

	w.cleanupIdempotency(context.Background())

	assert.Equal(t, 1, cleaner.calls)
}
