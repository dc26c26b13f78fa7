// Package payment provides the payment-transaction register. Every payment
// row belongs to exactly one document; the document's paid amount is always
// the sum of its rows.
package payment

import (
	"time"

	"salesflow/internal/core/entity"
	"salesflow/internal/core/id"
	"salesflow/internal/core/types"
)

// Owner identifies the document a payment belongs to.
type Owner = entity.DocumentRef

// Transaction is a single payment received against a document.
type Transaction struct {
	ID              id.ID               `db:"id" json:"id"`
	OwnerType       entity.DocumentType `db:"owner_type" json:"ownerType"`
	OwnerID         id.ID               `db:"owner_id" json:"ownerId"`
	Amount          types.Money         `db:"amount" json:"amount"`
	PaymentTypeID   *id.ID              `db:"payment_type_id" json:"paymentTypeId,omitempty"`
	TransactionDate time.Time           `db:"transaction_date" json:"transactionDate"`
	ReferenceNo     string              `db:"reference_no" json:"referenceNo,omitempty"`
	Note            string              `db:"note" json:"note,omitempty"`
	CreatedAt       time.Time           `db:"created_at" json:"createdAt"`
}

// Owner returns the owning document reference.
func (t *Transaction) Owner() Owner {
	return Owner{Type: t.OwnerType, ID: t.OwnerID}
}

// Input is the caller-supplied description of a payment.
type Input struct {
	Amount        types.Money
	PaymentTypeID *id.ID
	Date          time.Time
	ReferenceNo   string
	Note          string
}
