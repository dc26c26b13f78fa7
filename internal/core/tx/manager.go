// Package tx provides transaction management abstractions.
// Domain services depend on these interfaces; the pgx implementation
// lives in infrastructure/storage/postgres.
package tx

import (
	"context"
)

// Manager runs a unit of work atomically.
//
// A document mutation (header, ledger lines, payments, status history)
// is always executed inside a single RunInTransaction call.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with read-only transaction support.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}

// NoopManager runs fn directly. Useful for unit tests of domain services.
type NoopManager struct{}

// RunInTransaction implements Manager.
func (NoopManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var _ Manager = NoopManager{}
