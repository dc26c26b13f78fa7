package entity

import (
	"context"
	"fmt"
	"time"

	"salesflow/internal/core/apperror"
	"salesflow/internal/core/id"
)

// DocumentType identifies the kind of commercial document.
// The same value is used as the owner tag of ledger rows.
type DocumentType string

const (
	DocumentTypeQuotation DocumentType = "quotation"
	DocumentTypeSaleOrder DocumentType = "sale_order"
	DocumentTypeSale      DocumentType = "sale"
)

// Valid reports whether t is a known document type.
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentTypeQuotation, DocumentTypeSaleOrder, DocumentTypeSale:
		return true
	}
	return false
}

// HasFulfillment reports whether documents of this type go through the status lifecycle.
func (t DocumentType) HasFulfillment() bool {
	return t == DocumentTypeSaleOrder || t == DocumentTypeSale
}

// ParseDocumentType converts an external value into a DocumentType.
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(s)
	if !t.Valid() {
		return "", apperror.NewValidation(fmt.Sprintf("unknown document type %q", s)).
			WithDetail("field", "type")
	}
	return t, nil
}

// DocumentRef identifies a document across types. Ledger rows carry it as
// their owner (owner_type, owner_id).
type DocumentRef struct {
	Type DocumentType
	ID   id.ID
}

func (r DocumentRef) String() string {
	return string(r.Type) + ":" + r.ID.String()
}

// Document is the base type for commercial documents.
type Document struct {
	BaseDocument

	// Number is the document code (auto-generated, unique within type)
	Number string `db:"number" json:"number"`

	// Date is the business date of the document
	Date time.Time `db:"date" json:"date"`

	// Comment is an optional user note
	Comment string `db:"comment" json:"comment,omitempty"`
}

// NewDocument creates a new Document with generated ID dated now.
func NewDocument() Document {
	return Document{
		BaseDocument: NewBaseDocument(),
		Date:         time.Now().UTC(),
	}
}

// Validate implements Validatable interface.
func (d *Document) Validate(ctx context.Context) error {
	if d.Date.IsZero() {
		return apperror.NewValidation("date is required").
			WithDetail("field", "date")
	}
	return nil
}

// CanModify checks if document can be modified.
func (d *Document) CanModify() error {
	if d.DeletionMark {
		return apperror.NewBusinessRule(
			apperror.CodeBusinessRule,
			"Cannot modify a document marked for deletion",
		).WithDetail("document_id", d.ID.String())
	}
	return nil
}
