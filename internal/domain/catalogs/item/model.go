// Package item provides the Item catalog: sellable goods with their
// tracking mode and retail price limits.
package item

import (
	"context"

	"salesflow/internal/core/apperror"
	"salesflow/internal/core/entity"
	"salesflow/internal/core/types"
)

// TrackingType defines how individual units of an item are traced.
type TrackingType string

const (
	TrackingRegular TrackingType = "regular"
	TrackingBatch   TrackingType = "batch"
	TrackingSerial  TrackingType = "serial"
)

// Valid reports whether t is a known tracking type.
func (t TrackingType) Valid() bool {
	switch t {
	case TrackingRegular, TrackingBatch, TrackingSerial:
		return true
	}
	return false
}

// Item represents a product that can appear on sales documents.
type Item struct {
	entity.Catalog

	// TrackingType defines whether batch or serial sub-ledger rows are required
	TrackingType TrackingType `db:"tracking_type" json:"trackingType"`

	// Unit is the display unit of measure ("pcs", "kg")
	Unit string `db:"unit" json:"unit"`

	// MRP is the maximum retail price (nullable)
	MRP *types.Money `db:"mrp" json:"mrp,omitempty"`

	// MSP is the minimum selling price (nullable)
	MSP *types.Money `db:"msp" json:"msp,omitempty"`
}

// NewItem creates a new regular item.
func NewItem(code, name string) *Item {
	return &Item{
		Catalog:      entity.NewCatalog(code, name),
		TrackingType: TrackingRegular,
		Unit:         "pcs",
	}
}

// Validate implements entity.Validatable interface.
func (i *Item) Validate(ctx context.Context) error {
	if err := i.Catalog.Validate(ctx); err != nil {
		return err
	}

	if !i.TrackingType.Valid() {
		return apperror.NewValidation("invalid tracking type").
			WithDetail("field", "trackingType").
			WithDetail("value", string(i.TrackingType))
	}

	if i.MRP != nil && i.MRP.IsNegative() {
		return apperror.NewValidation("mrp cannot be negative").
			WithDetail("field", "mrp")
	}
	if i.MSP != nil && i.MSP.IsNegative() {
		return apperror.NewValidation("msp cannot be negative").
			WithDetail("field", "msp")
	}
	if i.MRP != nil && i.MSP != nil && i.MSP.GreaterThan(*i.MRP) {
		return apperror.NewValidation("msp cannot exceed mrp").
			WithDetail("field", "msp")
	}

	return nil
}

// AboveMRP reports whether price exceeds the configured maximum retail price.
func (i *Item) AboveMRP(price types.Money) bool {
	return i.MRP != nil && price.GreaterThan(*i.MRP)
}

// BelowMSP reports whether price is under the configured minimum selling price.
func (i *Item) BelowMSP(price types.Money) bool {
	return i.MSP != nil && price.LessThan(*i.MSP)
}
