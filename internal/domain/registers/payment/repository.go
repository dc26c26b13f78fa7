package payment

import (
	"context"

	"salesflow/internal/core/types"
)

// Repository defines operations for the payment register.
type Repository interface {
	// Insert stores payment rows
	Insert(ctx context.Context, rows []Transaction) error

	// ListByOwner returns a document's payments ordered by date
	ListByOwner(ctx context.Context, owner Owner) ([]Transaction, error)

	// DeleteByOwner removes every payment of a document
	DeleteByOwner(ctx context.Context, owner Owner) (int64, error)

	// SumByOwner returns the total of a document's payments (zero when none)
	SumByOwner(ctx context.Context, owner Owner) (types.Money, error)

	// Reparent moves every payment of from onto to and returns the row count
	Reparent(ctx context.Context, from, to Owner) (int64, error)
}
