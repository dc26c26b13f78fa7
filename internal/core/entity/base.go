package entity

import (
	"context"
	"time"

	"salesflow/internal/core/id"
)

// Validatable is implemented by entities that check their own invariants
// without touching storage.
type Validatable interface {
	Validate(ctx context.Context) error
}

// BaseEntity holds the identity shared by catalogs and documents.
// Version starts at 1 and is bumped by the repository on every update.
type BaseEntity struct {
	ID           id.ID `db:"id" json:"id"`
	DeletionMark bool  `db:"deletion_mark" json:"deletionMark"`
	Version      int   `db:"version" json:"version"`
}

func newBaseEntity() BaseEntity {
	return BaseEntity{ID: id.New(), Version: 1}
}

// BaseDocument adds who and when to BaseEntity.
type BaseDocument struct {
	BaseEntity

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
	UpdatedBy string    `db:"updated_by" json:"updatedBy,omitempty"`
}

// NewBaseDocument returns a fresh identity stamped with the current time.
func NewBaseDocument() BaseDocument {
	now := time.Now().UTC()
	return BaseDocument{
		BaseEntity: newBaseEntity(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// BaseCatalog carries no audit columns.
type BaseCatalog struct {
	BaseEntity
}

// NewBaseCatalog returns a fresh catalog identity.
func NewBaseCatalog() BaseCatalog {
	return BaseCatalog{BaseEntity: newBaseEntity()}
}
