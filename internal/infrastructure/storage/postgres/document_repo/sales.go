package document_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"salesflow/internal/core/apperror"
	"salesflow/internal/core/entity"
	"salesflow/internal/core/id"
	"salesflow/internal/core/types"
	"salesflow/internal/domain"
	"salesflow/internal/domain/sales"
	"salesflow/internal/infrastructure/storage/postgres"
)

const (
	salesTable   = "sales_documents"
	historyTable = "sales_status_history"

	// one sale per conversion source
	sourceUniqueIndex = "sales_documents_source_id_key"
)

var historyCols = postgres.ExtractDBColumns[sales.StatusHistory]()

// SalesRepo implements sales.Repository.
type SalesRepo struct {
	*BaseDocumentRepo[*sales.Document]
}

// NewSalesRepo creates a new sales document repository.
func NewSalesRepo(txManager *postgres.TxManager) *SalesRepo {
	return &SalesRepo{
		BaseDocumentRepo: NewBaseDocumentRepo[*sales.Document](
			txManager,
			salesTable,
			postgres.ExtractDBColumns[sales.Document](),
			func() *sales.Document { return &sales.Document{} },
		),
	}
}

// Create inserts a document header.
func (r *SalesRepo) Create(ctx context.Context, doc *sales.Document) error {
	err := r.insert(ctx, doc)
	switch {
	case err == nil:
		return nil
	case postgres.IsUniqueViolation(err, sourceUniqueIndex) && doc.SourceID != nil:
		saleID := ""
		if existing, findErr := r.FindConvertedSale(ctx, *doc.SourceID); findErr == nil {
			saleID = existing.ID.String()
		}
		return apperror.NewAlreadyConverted(doc.SourceID.String(), saleID).WithCause(err)
	case postgres.IsUniqueViolation(err, ""):
		return apperror.NewDuplicate("document", "number", doc.Number).WithCause(err)
	case postgres.IsForeignKeyViolation(err):
		return apperror.NewValidation("document references an unknown customer or carrier").
			WithDetail("customerId", doc.CustomerID.String()).
			WithCause(err)
	default:
		return err
	}
}

// Update writes the header with optimistic locking and refreshes doc's
// version and updated_at.
func (r *SalesRepo) Update(ctx context.Context, doc *sales.Document) error {
	sql, args, err := r.updateStmt(doc)
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	err = r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&doc.Version, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NewConcurrentModification(salesTable, doc.ID)
		}
		if constraint := postgres.CheckConstraint(err); constraint != "" {
			return apperror.NewInvariantViolation(apperror.CodeInvariantViolation, "document violates "+constraint).
				WithCause(err)
		}
		return fmt.Errorf("update %s: %w", salesTable, err)
	}
	return nil
}

// FindConvertedSale returns the sale created from sourceID.
func (r *SalesRepo) FindConvertedSale(ctx context.Context, sourceID id.ID) (*sales.Document, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"doc_type": entity.DocumentTypeSale}).
		Where(squirrel.Eq{"source_id": sourceID}).
		Limit(1)
	return r.findOne(ctx, q, sourceID.String())
}

// List returns headers matching filter.
func (r *SalesRepo) List(ctx context.Context, filter sales.ListFilter) (domain.ListResult[*sales.Document], error) {
	result := domain.ListResult[*sales.Document]{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	q := r.listQuery(filter)

	total, err := r.count(ctx, q)
	if err != nil {
		return result, err
	}
	result.TotalCount = total

	q, err = r.page(q, filter.ListFilter)
	if err != nil {
		return result, err
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("list: %w", err)
	}
	return result, nil
}

func (r *SalesRepo) listQuery(filter sales.ListFilter) squirrel.SelectBuilder {
	q := r.baseSelect()

	if !filter.IncludeDeleted {
		q = q.Where(squirrel.Eq{"deletion_mark": false})
	}
	if filter.Search != "" {
		q = q.Where(squirrel.ILike{"number": "%" + filter.Search + "%"})
	}
	if len(filter.IDs) > 0 {
		q = q.Where(squirrel.Eq{"id": filter.IDs})
	}
	if filter.Type != nil {
		q = q.Where(squirrel.Eq{"doc_type": *filter.Type})
	}
	if filter.CustomerID != nil {
		q = q.Where(squirrel.Eq{"customer_id": *filter.CustomerID})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"date": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"date": *filter.ToDate})
	}
	return q
}

func (r *SalesRepo) page(q squirrel.SelectBuilder, filter domain.ListFilter) (squirrel.SelectBuilder, error) {
	orderBy, err := r.parseOrderBy(filter.OrderBy)
	if err != nil {
		return q, err
	}
	q = q.OrderBy(orderBy)

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q, nil
}

// outstandingQuery sums the unpaid part of a customer's live sales.
func (r *SalesRepo) outstandingQuery(customerID id.ID) squirrel.SelectBuilder {
	return r.Builder().
		Select("COALESCE(SUM(grand_total - paid_amount), 0)").
		From(salesTable).
		Where(squirrel.Eq{
			"doc_type":      entity.DocumentTypeSale,
			"customer_id":   customerID,
			"deletion_mark": false,
		}).
		Where(squirrel.NotEq{"status": []sales.Status{sales.StatusCancelled, sales.StatusReturned}})
}

// OutstandingBalance returns the customer's open sales balance.
func (r *SalesRepo) OutstandingBalance(ctx context.Context, customerID id.ID) (types.Money, error) {
	sql, args, err := r.outstandingQuery(customerID).ToSql()
	if err != nil {
		return types.Zero(), fmt.Errorf("build outstanding query: %w", err)
	}

	var total types.Money
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return types.Zero(), fmt.Errorf("outstanding balance: %w", err)
	}
	return total, nil
}

// AppendHistory stores one status transition record.
func (r *SalesRepo) AppendHistory(ctx context.Context, h *sales.StatusHistory) error {
	data := postgres.StructToMap(h)

	sql, args, err := r.Builder().
		Insert(historyTable).
		SetMap(data).
		ToSql()
	if err != nil {
		return fmt.Errorf("build history insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", historyTable, err)
	}
	return nil
}

// ListHistory returns a document's transitions, oldest first.
func (r *SalesRepo) ListHistory(ctx context.Context, docID id.ID) ([]sales.StatusHistory, error) {
	sql, args, err := r.Builder().
		Select(historyCols...).
		From(historyTable).
		Where(squirrel.Eq{"document_id": docID}).
		OrderBy("changed_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	var history []sales.StatusHistory
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &history, sql, args...); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return history, nil
}

var _ sales.Repository = (*SalesRepo)(nil)
