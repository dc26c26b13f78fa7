package itemledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"salesflow/internal/core/types"
)

// MemoryRepository is an in-memory Repository for unit tests.
type MemoryRepository struct {
	mu    sync.Mutex
	lines []Transaction
	stock map[StockKey]Stock
}

// NewMemoryRepository creates an empty in-memory register.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{stock: make(map[StockKey]Stock)}
}

func (r *MemoryRepository) InsertLines(ctx context.Context, lines []Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range lines {
		r.lines = append(r.lines, cloneLine(l))
	}
	return nil
}

func (r *MemoryRepository) GetLines(ctx context.Context, owner Owner) ([]Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Transaction
	for _, l := range r.lines {
		if l.Owner() == owner {
			out = append(out, cloneLine(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineNo < out[j].LineNo })
	return out, nil
}

func (r *MemoryRepository) DeleteLines(ctx context.Context, owner Owner) ([]StockKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []StockKey
	kept := r.lines[:0]
	for _, l := range r.lines {
		if l.Owner() == owner {
			keys = append(keys, l.StockKey())
			continue
		}
		kept = append(kept, l)
	}
	r.lines = kept
	return mergeKeys(nil, keys), nil
}

func (r *MemoryRepository) FlipUniqueCode(ctx context.Context, owner Owner, from, to UniqueCode) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.lines {
		l := &r.lines[i]
		if l.Owner() != owner || l.UniqueCode != from {
			continue
		}
		l.UniqueCode = to
		if l.Batch != nil {
			l.Batch.UniqueCode = to
		}
		for j := range l.Serials {
			l.Serials[j].UniqueCode = to
		}
		n++
	}
	return n, nil
}

func (r *MemoryRepository) StockKeys(ctx context.Context, owner Owner) ([]StockKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []StockKey
	for _, l := range r.lines {
		if l.Owner() == owner {
			keys = append(keys, l.StockKey())
		}
	}
	return mergeKeys(nil, keys), nil
}

func (r *MemoryRepository) RecalculateStock(ctx context.Context, keys []StockKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, k := range keys {
		r.stock[k] = Stock{ItemID: k.ItemID, WarehouseID: k.WarehouseID, Quantity: r.ledgerSum(k), UpdatedAt: now}
	}
	return nil
}

func (r *MemoryRepository) GetStock(ctx context.Context, key StockKey) (Stock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stock[key]; ok {
		return s, nil
	}
	return Stock{ItemID: key.ItemID, WarehouseID: key.WarehouseID}, nil
}

func (r *MemoryRepository) FindDrift(ctx context.Context) ([]StockDrift, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]StockKey, 0, len(r.stock))
	for k := range r.stock {
		keys = append(keys, k)
	}
	for _, l := range r.lines {
		keys = append(keys, l.StockKey())
	}
	var drift []StockDrift
	for _, k := range mergeKeys(nil, keys) {
		ledger := r.ledgerSum(k)
		if stored := r.stock[k].Quantity; stored != ledger {
			drift = append(drift, StockDrift{ItemID: k.ItemID, WarehouseID: k.WarehouseID, Stored: stored, Ledger: ledger})
		}
	}
	return drift, nil
}

// SetStock overwrites a stock row, bypassing the ledger.
func (r *MemoryRepository) SetStock(key StockKey, qty types.Quantity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stock[key] = Stock{ItemID: key.ItemID, WarehouseID: key.WarehouseID, Quantity: qty}
}

// All returns a copy of every stored line.
func (r *MemoryRepository) All() []Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transaction, len(r.lines))
	for i, l := range r.lines {
		out[i] = cloneLine(l)
	}
	return out
}

func (r *MemoryRepository) ledgerSum(k StockKey) types.Quantity {
	var sum types.Quantity
	for i := range r.lines {
		if r.lines[i].StockKey() == k {
			sum += r.lines[i].SignedQuantity()
		}
	}
	return sum
}

func cloneLine(l Transaction) Transaction {
	if l.Batch != nil {
		b := *l.Batch
		l.Batch = &b
	}
	if l.Serials != nil {
		l.Serials = append([]SerialTransaction(nil), l.Serials...)
	}
	return l
}

var _ Repository = (*MemoryRepository)(nil)
