package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// BatchWriter sends many statements in one round trip and bulk-loads rows
// with COPY. It joins the transaction in ctx when there is one.
type BatchWriter struct {
	txManager *TxManager
}

// NewBatchWriter creates a batch writer.
func NewBatchWriter(txManager *TxManager) *BatchWriter {
	return &BatchWriter{txManager: txManager}
}

// BatchQuery is one statement of a batch.
type BatchQuery struct {
	SQL  string
	Args []any
}

// CopyRows inserts rows into table with the COPY protocol.
//
//	n, err := w.CopyRows(ctx, "serial_transactions", []string{"id", "serial_code"}, rows)
func (w *BatchWriter) CopyRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := w.txManager.GetQuerier(ctx).CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

// Exec runs queries in a single round trip and returns the rows affected by each.
func (w *BatchWriter) Exec(ctx context.Context, queries []BatchQuery) ([]int64, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, q := range queries {
		batch.Queue(q.SQL, q.Args...)
	}

	results := w.txManager.GetQuerier(ctx).SendBatch(ctx, batch)
	defer results.Close()

	affected := make([]int64, len(queries))
	for i := range queries {
		tag, err := results.Exec()
		if err != nil {
			return nil, fmt.Errorf("batch statement %d: %w", i+1, err)
		}
		affected[i] = tag.RowsAffected()
	}
	return affected, nil
}
