package payment

import (
	"context"
	"sort"
	"sync"

	"salesflow/internal/core/types"
)

// MemoryRepository is an in-memory Repository for unit tests.
type MemoryRepository struct {
	mu   sync.Mutex
	rows []Transaction
}

// NewMemoryRepository creates an empty in-memory register.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Insert(ctx context.Context, rows []Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, rows...)
	return nil
}

func (r *MemoryRepository) ListByOwner(ctx context.Context, owner Owner) ([]Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Transaction
	for _, row := range r.rows {
		if row.Owner() == owner {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TransactionDate.Before(out[j].TransactionDate) })
	return out, nil
}

func (r *MemoryRepository) DeleteByOwner(ctx context.Context, owner Owner) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	kept := r.rows[:0]
	for _, row := range r.rows {
		if row.Owner() == owner {
			n++
			continue
		}
		kept = append(kept, row)
	}
	r.rows = kept
	return n, nil
}

func (r *MemoryRepository) SumByOwner(ctx context.Context, owner Owner) (types.Money, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := types.Zero()
	for _, row := range r.rows {
		if row.Owner() == owner {
			sum = sum.Add(row.Amount)
		}
	}
	return sum, nil
}

func (r *MemoryRepository) Reparent(ctx context.Context, from, to Owner) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.rows {
		if r.rows[i].Owner() == from {
			r.rows[i].OwnerType = to.Type
			r.rows[i].OwnerID = to.ID
			n++
		}
	}
	return n, nil
}

// Count returns the number of stored rows.
func (r *MemoryRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

var _ Repository = (*MemoryRepository)(nil)
