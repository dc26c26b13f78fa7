// Package register_repo provides PostgreSQL implementations for register repositories.
package register_repo

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"salesflow/internal/core/id"
	"salesflow/internal/domain/registers/itemledger"
	"salesflow/internal/infrastructure/storage/postgres"
)

const (
	itemTransactionsTable   = "item_transactions"
	batchTransactionsTable  = "batch_transactions"
	serialTransactionsTable = "serial_transactions"
	itemStockTable          = "item_stock"
)

var (
	lineCols   = postgres.ExtractDBColumns[itemledger.Transaction]()
	batchCols  = postgres.ExtractDBColumns[itemledger.BatchTransaction]()
	serialCols = postgres.ExtractDBColumns[itemledger.SerialTransaction]()
)

// ItemLedgerRepo implements itemledger.Repository.
type ItemLedgerRepo struct {
	txManager *postgres.TxManager
	batch     *postgres.BatchWriter
	builder   squirrel.StatementBuilderType
}

// NewItemLedgerRepo creates a new item ledger repository.
func NewItemLedgerRepo(txManager *postgres.TxManager) *ItemLedgerRepo {
	return &ItemLedgerRepo{
		txManager: txManager,
		batch:     postgres.NewBatchWriter(txManager),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// InsertLines stores lines with their batch and serial rows.
func (r *ItemLedgerRepo) InsertLines(ctx context.Context, lines []itemledger.Transaction) error {
	if len(lines) == 0 {
		return nil
	}

	q := r.builder.Insert(itemTransactionsTable).Columns(lineCols...)
	var (
		batches [][]any
		serials [][]any
	)
	for i := range lines {
		l := &lines[i]
		q = q.Values(l.ID, l.OwnerType, l.OwnerID, l.LineNo,
			l.ItemID, l.WarehouseID, l.Quantity, l.TrackingType,
			l.UnitPrice, l.DiscountType, l.Discount, l.DiscountAmount,
			l.TaxRate, l.TaxAmount, l.ChargeAmount, l.Total,
			l.UniqueCode, l.TransactionDate, l.CreatedAt)

		if b := l.Batch; b != nil {
			batches = append(batches, []any{b.ID, b.ItemTransactionID, b.BatchNo, b.MfgDate, b.ExpDate, b.Quantity, b.UniqueCode})
		}
		for _, s := range l.Serials {
			serials = append(serials, []any{s.ID, s.ItemTransactionID, s.SerialCode, s.UniqueCode})
		}
	}

	if err := r.exec(ctx, q, "insert lines"); err != nil {
		return err
	}

	if len(batches) > 0 {
		bq := r.builder.Insert(batchTransactionsTable).Columns(batchCols...)
		for _, row := range batches {
			bq = bq.Values(row...)
		}
		if err := r.exec(ctx, bq, "insert batches"); err != nil {
			return err
		}
	}

	if _, err := r.batch.CopyRows(ctx, serialTransactionsTable, serialCols, serials); err != nil {
		return fmt.Errorf("insert serials: %w", err)
	}
	return nil
}

// GetLines returns a document's lines ordered by line number.
func (r *ItemLedgerRepo) GetLines(ctx context.Context, owner itemledger.Owner) ([]itemledger.Transaction, error) {
	q := r.builder.Select(lineCols...).
		From(itemTransactionsTable).
		Where(ownerEq(owner)).
		OrderBy("line_no")

	var lines []itemledger.Transaction
	if err := r.selectInto(ctx, &lines, q); err != nil {
		return nil, fmt.Errorf("select lines: %w", err)
	}
	if len(lines) == 0 {
		return lines, nil
	}

	lineIDs := make([]id.ID, len(lines))
	byID := make(map[id.ID]*itemledger.Transaction, len(lines))
	for i := range lines {
		lineIDs[i] = lines[i].ID
		byID[lines[i].ID] = &lines[i]
	}

	var batches []itemledger.BatchTransaction
	bq := r.builder.Select(batchCols...).
		From(batchTransactionsTable).
		Where(squirrel.Eq{"item_transaction_id": lineIDs})
	if err := r.selectInto(ctx, &batches, bq); err != nil {
		return nil, fmt.Errorf("select batches: %w", err)
	}
	for i := range batches {
		if l, ok := byID[batches[i].ItemTransactionID]; ok {
			l.Batch = &batches[i]
		}
	}

	var serials []itemledger.SerialTransaction
	sq := r.builder.Select(serialCols...).
		From(serialTransactionsTable).
		Where(squirrel.Eq{"item_transaction_id": lineIDs}).
		OrderBy("serial_code")
	if err := r.selectInto(ctx, &serials, sq); err != nil {
		return nil, fmt.Errorf("select serials: %w", err)
	}
	for _, s := range serials {
		if l, ok := byID[s.ItemTransactionID]; ok {
			l.Serials = append(l.Serials, s)
		}
	}

	return lines, nil
}

// DeleteLines removes a document's lines; batch and serial rows cascade.
func (r *ItemLedgerRepo) DeleteLines(ctx context.Context, owner itemledger.Owner) ([]itemledger.StockKey, error) {
	const sql = `
		WITH deleted AS (
			DELETE FROM item_transactions
			WHERE owner_type = $1 AND owner_id = $2
			RETURNING item_id, warehouse_id
		)
		SELECT DISTINCT item_id, warehouse_id FROM deleted
		ORDER BY item_id, warehouse_id
	`

	var keys []itemledger.StockKey
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &keys, sql, owner.Type, owner.ID); err != nil {
		return nil, fmt.Errorf("delete lines: %w", err)
	}
	return keys, nil
}

// FlipUniqueCode rewrites from -> to on lines and sub-ledger rows in one round trip.
func (r *ItemLedgerRepo) FlipUniqueCode(ctx context.Context, owner itemledger.Owner, from, to itemledger.UniqueCode) (int64, error) {
	affected, err := r.batch.Exec(ctx, flipQueries(owner, from, to))
	if err != nil {
		return 0, fmt.Errorf("flip unique code: %w", err)
	}
	return affected[0], nil
}

func flipQueries(owner itemledger.Owner, from, to itemledger.UniqueCode) []postgres.BatchQuery {
	const ownedLines = `SELECT id FROM item_transactions WHERE owner_type = $3 AND owner_id = $4`
	return []postgres.BatchQuery{
		{
			SQL:  `UPDATE item_transactions SET unique_code = $1 WHERE unique_code = $2 AND owner_type = $3 AND owner_id = $4`,
			Args: []any{to, from, owner.Type, owner.ID},
		},
		{
			SQL:  `UPDATE batch_transactions SET unique_code = $1 WHERE unique_code = $2 AND item_transaction_id IN (` + ownedLines + `)`,
			Args: []any{to, from, owner.Type, owner.ID},
		},
		{
			SQL:  `UPDATE serial_transactions SET unique_code = $1 WHERE unique_code = $2 AND item_transaction_id IN (` + ownedLines + `)`,
			Args: []any{to, from, owner.Type, owner.ID},
		},
	}
}

// StockKeys returns the distinct (item, warehouse) pairs of a document's lines.
func (r *ItemLedgerRepo) StockKeys(ctx context.Context, owner itemledger.Owner) ([]itemledger.StockKey, error) {
	q := r.builder.Select("item_id", "warehouse_id").
		Distinct().
		From(itemTransactionsTable).
		Where(ownerEq(owner)).
		OrderBy("item_id", "warehouse_id")

	var keys []itemledger.StockKey
	if err := r.selectInto(ctx, &keys, q); err != nil {
		return nil, fmt.Errorf("select stock keys: %w", err)
	}
	return keys, nil
}

// RecalculateStock rebuilds stock rows from the ledger. Each key is guarded
// by a transaction-scoped advisory lock taken in a fixed order.
func (r *ItemLedgerRepo) RecalculateStock(ctx context.Context, keys []itemledger.StockKey) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := r.batch.Exec(ctx, recalcQueries(keys)); err != nil {
		return fmt.Errorf("recalculate stock: %w", err)
	}
	return nil
}

func recalcQueries(keys []itemledger.StockKey) []postgres.BatchQuery {
	sorted := slices.Clone(keys)
	slices.SortFunc(sorted, func(a, b itemledger.StockKey) int {
		if c := strings.Compare(a.ItemID.String(), b.ItemID.String()); c != 0 {
			return c
		}
		return strings.Compare(a.WarehouseID.String(), b.WarehouseID.String())
	})
	sorted = slices.Compact(sorted)

	receipts := codeStrings(itemledger.ReceiptCodes())
	expenses := codeStrings(itemledger.ExpenseCodes())

	queries := make([]postgres.BatchQuery, 0, len(sorted)*2)
	for _, k := range sorted {
		queries = append(queries,
			postgres.BatchQuery{
				SQL:  `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
				Args: []any{stockLockKey(k)},
			},
			postgres.BatchQuery{
				SQL: `
					INSERT INTO item_stock (item_id, warehouse_id, quantity, updated_at)
					SELECT $1::uuid, $2::uuid, COALESCE(SUM(
						CASE
							WHEN unique_code = ANY($3) THEN quantity
							WHEN unique_code = ANY($4) THEN -quantity
							ELSE 0
						END), 0), NOW()
					FROM item_transactions
					WHERE item_id = $1 AND warehouse_id = $2
					ON CONFLICT (item_id, warehouse_id) DO UPDATE
					SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`,
				Args: []any{k.ItemID, k.WarehouseID, receipts, expenses},
			},
		)
	}
	return queries
}

func stockLockKey(k itemledger.StockKey) string {
	return "stock:" + k.ItemID.String() + ":" + k.WarehouseID.String()
}

func codeStrings(codes []itemledger.UniqueCode) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}

// GetStock returns the stored stock row, zero when absent.
func (r *ItemLedgerRepo) GetStock(ctx context.Context, key itemledger.StockKey) (itemledger.Stock, error) {
	q := r.builder.Select("item_id", "warehouse_id", "quantity", "updated_at").
		From(itemStockTable).
		Where(squirrel.Eq{"item_id": key.ItemID, "warehouse_id": key.WarehouseID})

	sql, args, err := q.ToSql()
	if err != nil {
		return itemledger.Stock{}, fmt.Errorf("build query: %w", err)
	}

	var s itemledger.Stock
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &s, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return itemledger.Stock{ItemID: key.ItemID, WarehouseID: key.WarehouseID}, nil
		}
		return itemledger.Stock{}, fmt.Errorf("get stock: %w", err)
	}
	return s, nil
}

// FindDrift lists stock rows that disagree with the ledger sum.
func (r *ItemLedgerRepo) FindDrift(ctx context.Context) ([]itemledger.StockDrift, error) {
	const sql = `
		WITH ledger AS (
			SELECT item_id, warehouse_id, SUM(
				CASE
					WHEN unique_code = ANY($1) THEN quantity
					WHEN unique_code = ANY($2) THEN -quantity
					ELSE 0
				END)::bigint AS quantity
			FROM item_transactions
			GROUP BY item_id, warehouse_id
		)
		SELECT COALESCE(s.item_id, l.item_id) AS item_id,
		       COALESCE(s.warehouse_id, l.warehouse_id) AS warehouse_id,
		       COALESCE(s.quantity, 0) AS stored,
		       COALESCE(l.quantity, 0) AS ledger
		FROM item_stock s
		FULL OUTER JOIN ledger l ON l.item_id = s.item_id AND l.warehouse_id = s.warehouse_id
		WHERE COALESCE(s.quantity, 0) <> COALESCE(l.quantity, 0)
		ORDER BY 1, 2
	`

	var drift []itemledger.StockDrift
	err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &drift, sql,
		codeStrings(itemledger.ReceiptCodes()), codeStrings(itemledger.ExpenseCodes()))
	if err != nil {
		return nil, fmt.Errorf("find stock drift: %w", err)
	}
	return drift, nil
}

func ownerEq(owner itemledger.Owner) squirrel.Eq {
	return squirrel.Eq{"owner_type": owner.Type, "owner_id": owner.ID}
}

func (r *ItemLedgerRepo) exec(ctx context.Context, q squirrel.Sqlizer, op string) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build %s: %w", op, err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *ItemLedgerRepo) selectInto(ctx context.Context, dst any, q squirrel.Sqlizer) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), dst, sql, args...)
}

var _ itemledger.Repository = (*ItemLedgerRepo)(nil)
