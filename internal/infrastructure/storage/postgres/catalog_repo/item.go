package catalog_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"salesflow/internal/core/id"
	"salesflow/internal/domain/catalogs/item"
	"salesflow/internal/infrastructure/storage/postgres"
)

const itemTable = "cat_items"

// ItemRepo implements item.Repository.
type ItemRepo struct {
	*BaseCatalogRepo[*item.Item]
}

// NewItemRepo creates a new item repository.
func NewItemRepo(txManager *postgres.TxManager) *ItemRepo {
	return &ItemRepo{
		BaseCatalogRepo: NewBaseCatalogRepo[*item.Item](
			txManager,
			itemTable,
			postgres.ExtractDBColumns[item.Item](),
			func() *item.Item { return &item.Item{} },
		),
	}
}

// GetByIDs loads items keyed by ID, deletion-marked ones included.
func (r *ItemRepo) GetByIDs(ctx context.Context, ids []id.ID) (map[id.ID]*item.Item, error) {
	out := make(map[id.ID]*item.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	items, err := r.findMany(ctx, r.baseSelect().Where(squirrel.Eq{"id": ids}))
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}
