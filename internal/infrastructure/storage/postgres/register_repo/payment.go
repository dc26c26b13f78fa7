package register_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"salesflow/internal/core/types"
	"salesflow/internal/domain/registers/payment"
	"salesflow/internal/infrastructure/storage/postgres"
)

const paymentTransactionsTable = "payment_transactions"

var paymentCols = postgres.ExtractDBColumns[payment.Transaction]()

// PaymentRepo implements payment.Repository.
type PaymentRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewPaymentRepo creates a new payment register repository.
func NewPaymentRepo(txManager *postgres.TxManager) *PaymentRepo {
	return &PaymentRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Insert stores payment rows in one statement.
func (r *PaymentRepo) Insert(ctx context.Context, rows []payment.Transaction) error {
	if len(rows) == 0 {
		return nil
	}

	q := r.builder.Insert(paymentTransactionsTable).Columns(paymentCols...)
	for _, p := range rows {
		q = q.Values(p.ID, p.OwnerType, p.OwnerID, p.Amount, p.PaymentTypeID,
			p.TransactionDate, p.ReferenceNo, p.Note, p.CreatedAt)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert payments: %w", err)
	}
	return nil
}

// ListByOwner returns a document's payments ordered by date.
func (r *PaymentRepo) ListByOwner(ctx context.Context, owner payment.Owner) ([]payment.Transaction, error) {
	sql, args, err := r.builder.Select(paymentCols...).
		From(paymentTransactionsTable).
		Where(squirrel.Eq{"owner_type": owner.Type, "owner_id": owner.ID}).
		OrderBy("transaction_date", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []payment.Transaction
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	return rows, nil
}

// DeleteByOwner removes every payment of a document.
func (r *PaymentRepo) DeleteByOwner(ctx context.Context, owner payment.Owner) (int64, error) {
	sql, args, err := r.builder.Delete(paymentTransactionsTable).
		Where(squirrel.Eq{"owner_type": owner.Type, "owner_id": owner.ID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete payments: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SumByOwner returns the total of a document's payments.
func (r *PaymentRepo) SumByOwner(ctx context.Context, owner payment.Owner) (types.Money, error) {
	var total types.Money
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payment_transactions
		WHERE owner_type = $1 AND owner_id = $2
	`, owner.Type, owner.ID).Scan(&total)
	if err != nil {
		return types.Zero(), fmt.Errorf("sum payments: %w", err)
	}
	return total, nil
}

// Reparent moves every payment of from onto to.
func (r *PaymentRepo) Reparent(ctx context.Context, from, to payment.Owner) (int64, error) {
	sql, args, err := reparentQuery(r.builder, from, to).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build reparent: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("reparent payments: %w", err)
	}
	return tag.RowsAffected(), nil
}

func reparentQuery(b squirrel.StatementBuilderType, from, to payment.Owner) squirrel.UpdateBuilder {
	return b.Update(paymentTransactionsTable).
		Set("owner_type", to.Type).
		Set("owner_id", to.ID).
		Where(squirrel.Eq{"owner_type": from.Type, "owner_id": from.ID})
}

var _ payment.Repository = (*PaymentRepo)(nil)
