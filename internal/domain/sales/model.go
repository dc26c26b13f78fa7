// Package sales provides the commercial documents (quotation, sale order,
// sale) and the fulfillment engine that keeps their inventory, payment and
// status-history ledgers consistent.
package sales

import (
	"context"
	"time"

	"salesflow/internal/core/apperror"
	"salesflow/internal/core/entity"
	"salesflow/internal/core/id"
	"salesflow/internal/core/types"
	"salesflow/internal/domain/registers/itemledger"
	"salesflow/internal/domain/registers/payment"
)

// InventoryStatus tracks whether a document's goods left the warehouse.
type InventoryStatus string

const (
	InventoryPending           InventoryStatus = "pending"
	InventoryDeducted          InventoryStatus = "deducted"
	InventoryDeductedDelivered InventoryStatus = "deducted_delivered"
)

// Deducted reports whether on-hand stock already reflects this document.
func (s InventoryStatus) Deducted() bool {
	return s == InventoryDeducted || s == InventoryDeductedDelivered
}

// Valid reports whether s is a known inventory status.
func (s InventoryStatus) Valid() bool {
	switch s {
	case InventoryPending, InventoryDeducted, InventoryDeductedDelivered:
		return true
	}
	return false
}

// Document is a quotation, sale order or sale.
type Document struct {
	entity.Document

	Type entity.DocumentType `db:"doc_type" json:"type"`

	CustomerID   id.ID       `db:"customer_id" json:"customerId"`
	CarrierID    *id.ID      `db:"carrier_id" json:"carrierId,omitempty"`
	CurrencyCode string      `db:"currency_code" json:"currencyCode"`
	ExchangeRate types.Money `db:"exchange_rate" json:"exchangeRate"`

	// Totals
	OtherCharges types.Money `db:"other_charges" json:"otherCharges"`
	RoundOff     types.Money `db:"round_off" json:"roundOff"`
	GrandTotal   types.Money `db:"grand_total" json:"grandTotal"`
	// PaidAmount caches the sum of the document's payment rows
	PaidAmount types.Money `db:"paid_amount" json:"paidAmount"`

	// Fulfillment
	Status               Status          `db:"status" json:"status"`
	InventoryStatus      InventoryStatus `db:"inventory_status" json:"inventoryStatus"`
	InventoryDeductedAt  *time.Time      `db:"inventory_deducted_at" json:"inventoryDeductedAt,omitempty"`
	PostDeliveryAction   *Status         `db:"post_delivery_action" json:"postDeliveryAction,omitempty"`
	PostDeliveryActionAt *time.Time      `db:"post_delivery_action_at" json:"postDeliveryActionAt,omitempty"`

	// Conversion origin (sales created from a quotation or sale order)
	SourceID   *id.ID               `db:"source_id" json:"sourceId,omitempty"`
	SourceType *entity.DocumentType `db:"source_type" json:"sourceType,omitempty"`

	// Table parts, stored in the ledgers
	Lines    []itemledger.Transaction `db:"-" json:"lines"`
	Payments []payment.Transaction    `db:"-" json:"payments"`
}

// NewDocument creates a pending document of the given type.
func NewDocument(docType entity.DocumentType, customerID id.ID) *Document {
	return &Document{
		Document:        entity.NewDocument(),
		Type:            docType,
		CustomerID:      customerID,
		CurrencyCode:    "USD",
		ExchangeRate:    types.MustMoney("1"),
		OtherCharges:    types.Zero(),
		RoundOff:        types.Zero(),
		GrandTotal:      types.Zero(),
		PaidAmount:      types.Zero(),
		Status:          StatusPending,
		InventoryStatus: InventoryPending,
	}
}

// Ref returns the ledger owner reference of the document.
func (d *Document) Ref() entity.DocumentRef {
	return entity.DocumentRef{Type: d.Type, ID: d.ID}
}

// SetLines attaches lines and recalculates the grand total.
func (d *Document) SetLines(lines []itemledger.Transaction) {
	d.Lines = lines
	d.RecalculateTotals()
}

// RecalculateTotals sets GrandTotal = sum(line totals) + other charges + round off.
func (d *Document) RecalculateTotals() {
	total := types.Zero()
	for _, l := range d.Lines {
		total = total.Add(l.Total)
	}
	d.GrandTotal = types.RoundMoney(total.Add(d.OtherCharges).Add(d.RoundOff))
}

// BalanceDue returns the unpaid part of the grand total.
func (d *Document) BalanceDue() types.Money {
	return d.GrandTotal.Sub(d.PaidAmount)
}

// IsConverted reports whether this sale was produced from another document.
func (d *Document) IsConverted() bool {
	return d.SourceID != nil
}

// Validate implements entity.Validatable.
func (d *Document) Validate(ctx context.Context) error {
	if err := d.Document.Validate(ctx); err != nil {
		return err
	}

	if !d.Type.Valid() {
		return apperror.NewValidation("invalid document type").
			WithDetail("field", "type").
			WithDetail("value", string(d.Type))
	}

	if id.IsNil(d.CustomerID) {
		return apperror.NewValidation("customer is required").
			WithDetail("field", "customerId")
	}

	if len(d.CurrencyCode) != 3 {
		return apperror.NewValidation("currency code must have 3 letters").
			WithDetail("field", "currencyCode")
	}

	if !d.ExchangeRate.IsPositive() {
		return apperror.NewValidation("exchange rate must be positive").
			WithDetail("field", "exchangeRate")
	}

	if d.OtherCharges.IsNegative() {
		return apperror.NewValidation("other charges cannot be negative").
			WithDetail("field", "otherCharges")
	}

	if !d.InventoryStatus.Valid() {
		return apperror.NewValidation("invalid inventory status").
			WithDetail("field", "inventoryStatus")
	}

	if d.Type != entity.DocumentTypeSale && d.InventoryStatus != InventoryPending {
		return apperror.NewValidation("only a sale can be entered with deducted inventory").
			WithDetail("field", "inventoryStatus")
	}

	return nil
}

// ValidateInvariants checks the ledger invariants that must hold before commit:
// 0 <= paid <= grand total, a non-negative grand total and positive line quantities.
func (d *Document) ValidateInvariants() error {
	if d.GrandTotal.IsNegative() {
		return apperror.NewInvariantViolation(apperror.CodeInvariantViolation, "Grand total cannot be negative").
			WithDetail("grandTotal", d.GrandTotal.String())
	}
	if err := payment.CheckPaid(d.PaidAmount, d.GrandTotal); err != nil {
		return err
	}
	for _, l := range d.Lines {
		if !l.Quantity.IsPositive() {
			return apperror.NewInvariantViolation(apperror.CodeInvariantViolation, "Line quantity must be positive").
				WithDetail("lineNo", l.LineNo)
		}
	}
	return nil
}

// StatusHistory is an append-only record of an accepted status transition.
type StatusHistory struct {
	ID             id.ID               `db:"id" json:"id"`
	DocumentType   entity.DocumentType `db:"document_type" json:"documentType"`
	DocumentID     id.ID               `db:"document_id" json:"documentId"`
	PreviousStatus Status              `db:"previous_status" json:"previousStatus"`
	NewStatus      Status              `db:"new_status" json:"newStatus"`
	Notes          string              `db:"notes" json:"notes,omitempty"`
	ProofImage     *string             `db:"proof_image" json:"proofImage,omitempty"`
	ChangedBy      string              `db:"changed_by" json:"changedBy"`
	ChangedAt      time.Time           `db:"changed_at" json:"changedAt"`
}
