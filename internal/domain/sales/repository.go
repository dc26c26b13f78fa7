package sales

import (
	"context"
	"time"

	"salesflow/internal/core/entity"
	"salesflow/internal/core/id"
	"salesflow/internal/core/types"
	"salesflow/internal/domain"
)

// ListFilter narrows document listings.
type ListFilter struct {
	domain.ListFilter

	Type       *entity.DocumentType
	CustomerID *id.ID
	Status     *Status
	FromDate   *time.Time
	ToDate     *time.Time
}

// Repository defines persistence for sales documents and their status history.
// All methods run on the transaction found in ctx, if any.
type Repository interface {
	// Create inserts a document header. A second sale for the same source
	// fails with ALREADY_CONVERTED.
	Create(ctx context.Context, doc *Document) error

	// Update writes the header with optimistic locking (version check).
	Update(ctx context.Context, doc *Document) error

	// GetByID loads a header without lines or payments.
	GetByID(ctx context.Context, docID id.ID) (*Document, error)

	// GetForUpdate loads a header and row-locks it until the transaction ends.
	GetForUpdate(ctx context.Context, docID id.ID) (*Document, error)

	// FindConvertedSale returns the sale created from sourceID, or NotFound.
	FindConvertedSale(ctx context.Context, sourceID id.ID) (*Document, error)

	// List returns headers matching filter.
	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Document], error)

	// OutstandingBalance sums grand_total - paid_amount over a customer's
	// live sales that are neither cancelled nor returned.
	OutstandingBalance(ctx context.Context, customerID id.ID) (types.Money, error)

	// AppendHistory stores one status transition record.
	AppendHistory(ctx context.Context, h *StatusHistory) error

	// ListHistory returns a document's transitions, oldest first.
	ListHistory(ctx context.Context, docID id.ID) ([]StatusHistory, error)
}
