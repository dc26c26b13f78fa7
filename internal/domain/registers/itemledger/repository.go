package itemledger

import (
	"context"
)

// Repository defines operations for the item-transaction register.
// All methods run on the transaction found in ctx, if any.
type Repository interface {
	// Line operations

	// InsertLines stores lines together with their batch and serial rows
	InsertLines(ctx context.Context, lines []Transaction) error

	// GetLines returns a document's lines ordered by line number, sub-ledgers loaded
	GetLines(ctx context.Context, owner Owner) ([]Transaction, error)

	// DeleteLines removes every line of a document (sub-ledgers cascade)
	// and returns the stock keys the removed lines touched
	DeleteLines(ctx context.Context, owner Owner) ([]StockKey, error)

	// FlipUniqueCode rewrites from -> to on a document's lines, batch rows and serial rows.
	// Returns the number of lines changed; a repeated call changes nothing.
	FlipUniqueCode(ctx context.Context, owner Owner, from, to UniqueCode) (int64, error)

	// StockKeys returns the distinct (item, warehouse) pairs of a document's lines
	StockKeys(ctx context.Context, owner Owner) ([]StockKey, error)

	// Stock operations

	// RecalculateStock rebuilds the given stock rows by summing signed ledger rows
	RecalculateStock(ctx context.Context, keys []StockKey) error

	// GetStock returns the stored stock row (zero quantity when absent)
	GetStock(ctx context.Context, key StockKey) (Stock, error)

	// Maintenance

	// FindDrift lists stock rows whose stored quantity differs from the ledger sum
	FindDrift(ctx context.Context) ([]StockDrift, error)
}
