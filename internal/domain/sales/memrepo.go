package sales

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"salesflow/internal/core/apperror"
	"salesflow/internal/core/entity"
	"salesflow/internal/core/id"
	"salesflow/internal/core/tx"
	"salesflow/internal/core/types"
	"salesflow/internal/domain"
)

// MemoryRepository is an in-memory Repository for unit tests.
type MemoryRepository struct {
	mu      sync.Mutex
	docs    map[id.ID]Document
	rows    map[id.ID]*sync.Mutex
	history []StatusHistory

	// FailUpdate, when set, is returned by the next Update call.
	FailUpdate error
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		docs: make(map[id.ID]Document),
		rows: make(map[id.ID]*sync.Mutex),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, doc *Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; ok {
		return apperror.NewDuplicate("document", "id", doc.ID.String())
	}
	if doc.SourceID != nil {
		if sale, ok := r.saleBySource(*doc.SourceID); ok {
			return apperror.NewAlreadyConverted(doc.SourceID.String(), sale.ID.String())
		}
	}
	r.docs[doc.ID] = header(doc)
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, doc *Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.FailUpdate; err != nil {
		r.FailUpdate = nil
		return err
	}
	stored, ok := r.docs[doc.ID]
	if !ok || stored.Version != doc.Version {
		return apperror.NewConcurrentModification("sales_documents", doc.ID)
	}
	doc.Version++
	doc.UpdatedAt = time.Now().UTC()
	r.docs[doc.ID] = header(doc)
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, docID id.ID) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[docID]
	if !ok {
		return nil, apperror.NewNotFound("document", docID)
	}
	return &d, nil
}

// GetForUpdate locks the document until the surrounding TxManager
// transaction ends. Outside such a transaction it is a plain read.
func (r *MemoryRepository) GetForUpdate(ctx context.Context, docID id.ID) (*Document, error) {
	if held, ok := ctx.Value(rowLocksKey{}).(*rowLocks); ok {
		held.acquire(r.rowLock(docID))
	}
	return r.GetByID(ctx, docID)
}

// TxManager returns a tx.Manager whose transactions hold the row locks taken
// by GetForUpdate until fn returns. Writes are not rolled back.
func (r *MemoryRepository) TxManager() tx.Manager {
	return memoryTxManager{}
}

func (r *MemoryRepository) rowLock(docID id.ID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[docID]
	if !ok {
		m = &sync.Mutex{}
		r.rows[docID] = m
	}
	return m
}

type rowLocksKey struct{}

type rowLocks struct {
	held []*sync.Mutex
}

func (l *rowLocks) acquire(m *sync.Mutex) {
	for _, h := range l.held {
		if h == m {
			return
		}
	}
	m.Lock()
	l.held = append(l.held, m)
}

func (l *rowLocks) release() {
	for i := len(l.held) - 1; i >= 0; i-- {
		l.held[i].Unlock()
	}
	l.held = nil
}

type memoryTxManager struct{}

func (memoryTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(rowLocksKey{}).(*rowLocks); ok {
		return fn(ctx)
	}
	held := &rowLocks{}
	defer held.release()
	return fn(context.WithValue(ctx, rowLocksKey{}, held))
}

func (r *MemoryRepository) FindConvertedSale(ctx context.Context, sourceID id.ID) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.saleBySource(sourceID); ok {
		return &d, nil
	}
	return nil, apperror.NewNotFound("sale", sourceID)
}

func (r *MemoryRepository) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Document], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var items []*Document
	for _, d := range r.docs {
		if !matches(&d, filter) {
			continue
		}
		d := d
		items = append(items, &d)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Number < items[j].Number })

	total := int64(len(items))
	start := min(filter.Offset, len(items))
	end := len(items)
	if filter.Limit > 0 {
		end = min(start+filter.Limit, len(items))
	}

	return domain.ListResult[*Document]{
		Items:      items[start:end],
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

func (r *MemoryRepository) OutstandingBalance(ctx context.Context, customerID id.ID) (types.Money, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := types.Zero()
	for _, d := range r.docs {
		if d.Type != entity.DocumentTypeSale || d.CustomerID != customerID ||
			d.DeletionMark || d.Status.IsReversal() {
			continue
		}
		total = total.Add(d.BalanceDue())
	}
	return total, nil
}

func (r *MemoryRepository) AppendHistory(ctx context.Context, h *StatusHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, *h)
	return nil
}

func (r *MemoryRepository) ListHistory(ctx context.Context, docID id.ID) ([]StatusHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StatusHistory
	for _, h := range r.history {
		if h.DocumentID == docID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *MemoryRepository) saleBySource(sourceID id.ID) (Document, bool) {
	for _, d := range r.docs {
		if d.Type == entity.DocumentTypeSale && d.SourceID != nil && *d.SourceID == sourceID {
			return d, true
		}
	}
	return Document{}, false
}

func matches(d *Document, f ListFilter) bool {
	switch {
	case d.DeletionMark && !f.IncludeDeleted:
		return false
	case f.Type != nil && d.Type != *f.Type:
		return false
	case f.CustomerID != nil && d.CustomerID != *f.CustomerID:
		return false
	case f.Status != nil && d.Status != *f.Status:
		return false
	case f.FromDate != nil && d.Date.Before(*f.FromDate):
		return false
	case f.ToDate != nil && d.Date.After(*f.ToDate):
		return false
	case f.Search != "" && !strings.Contains(strings.ToLower(d.Number), strings.ToLower(f.Search)):
		return false
	}
	return true
}

// header strips table parts; they live in the ledgers.
func header(doc *Document) Document {
	d := *doc
	d.Lines = nil
	d.Payments = nil
	return d
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ tx.Manager = memoryTxManager{}
)
