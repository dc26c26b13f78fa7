package item

import (
	"context"

	"salesflow/internal/core/id"
	"salesflow/internal/domain"
)

// Repository defines the interface for Item persistence.
type Repository interface {
	domain.CatalogRepository[*Item]

	// GetByIDs loads several items at once, keyed by ID. Missing IDs are absent from the map.
	GetByIDs(ctx context.Context, ids []id.ID) (map[id.ID]*Item, error)
}
