package document_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesflow/internal/core/apperror"
	"salesflow/internal/core/entity"
	"salesflow/internal/core/id"
	"salesflow/internal/core/types"
	"salesflow/internal/domain"
	"salesflow/internal/domain/sales"
)

func TestSalesRepo_Columns(t *testing.T) {
	repo := NewSalesRepo(nil)

	assert.Contains(t, repo.selectCols, "doc_type")
	assert.Contains(t, repo.selectCols, "inventory_status")
	assert.Contains(t, repo.selectCols, "source_id")
	assert.NotContains(t, repo.selectCols, "lines")
	assert.NotContains(t, repo.selectCols, "payments")
	assert.Contains(t, historyCols, "proof_image")
}

func TestSalesRepo_ListQuery(t *testing.T) {
	repo := NewSalesRepo(nil)
	customerID := id.New()
	docType := entity.DocumentTypeSale
	status := sales.StatusPOD
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	filter := sales.ListFilter{
		ListFilter: domain.ListFilter{Limit: 20, OrderBy: "-grand_total"},
		Type:       &docType,
		CustomerID: &customerID,
		Status:     &status,
		FromDate:   &from,
	}

	q, err := repo.page(repo.listQuery(filter), filter.ListFilter)
	require.NoError(t, err)

	sql, args, err := q.ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "FROM sales_documents WHERE deletion_mark = $1 AND doc_type = $2 AND customer_id = $3 AND status = $4 AND date >= $5")
	assert.Contains(t, sql, "ORDER BY grand_total DESC LIMIT 20")
	assert.Equal(t, []any{false, docType, customerID, status, from}, args)
}

func TestSalesRepo_OrderBy(t *testing.T) {
	repo := NewSalesRepo(nil)

	got, err := repo.parseOrderBy("")
	require.NoError(t, err)
	assert.Equal(t, "date DESC, number DESC", got)

	got, err = repo.parseOrderBy("number")
	require.NoError(t, err)
	assert.Equal(t, "number ASC", got)

	_, err = repo.parseOrderBy("-lines")
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}

func TestSalesRepo_OutstandingQuery(t *testing.T) {
	repo := NewSalesRepo(nil)
	customerID := id.New()

	sql, args, err := repo.outstandingQuery(customerID).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT COALESCE(SUM(grand_total - paid_amount), 0) FROM sales_documents "+
			"WHERE customer_id = $1 AND deletion_mark = $2 AND doc_type = $3 AND status NOT IN ($4,$5)",
		sql)
	assert.Equal(t, []any{customerID, false, entity.DocumentTypeSale, sales.StatusCancelled, sales.StatusReturned}, args)
}

func TestSalesRepo_UpdateStmt(t *testing.T) {
	repo := NewSalesRepo(nil)
	doc := sales.NewDocument(entity.DocumentTypeSale, id.New())
	doc.Version = 4
	doc.GrandTotal = types.MustMoney("10.00")

	sql, args, err := repo.updateStmt(doc)
	require.NoError(t, err)

	assert.Contains(t, sql, "UPDATE sales_documents SET")
	assert.Contains(t, sql, "version = version + 1")
	assert.Contains(t, sql, "updated_at = NOW()")
	assert.Contains(t, sql, "RETURNING version, updated_at")
	assert.NotContains(t, sql, "created_by =")
	assert.Equal(t, doc.ID, args[len(args)-2])
	assert.Equal(t, 4, args[len(args)-1])
}
