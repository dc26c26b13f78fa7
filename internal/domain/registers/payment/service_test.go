package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesflow/internal/core/apperror"
	"salesflow/internal/core/entity"
	"salesflow/internal/core/id"
	"salesflow/internal/core/types"
)

func cash() *id.ID {
	v := id.MustParse("0190a7a4-0000-7000-8000-000000000001")
	return &v
}

func pay(amount string) Input {
	return Input{Amount: types.MustMoney(amount), PaymentTypeID: cash(), Date: time.Now()}
}

func TestBuild_Validation(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	owner := Owner{Type: entity.DocumentTypeSale, ID: id.New()}

	_, err := svc.Build(owner, []Input{{Amount: types.MustMoney("10")}})
	assert.True(t, apperror.Is(err, apperror.CodeMissingPaymentType))

	_, err = svc.Build(owner, []Input{pay("-1")})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	rows, err := svc.Build(owner, []Input{{Amount: types.Zero()}, pay("12.345")})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "12.35", rows[0].Amount.StringFixed(2))
	assert.Equal(t, owner, rows[0].Owner())
}

func TestRecomputePaidAmount(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	svc := NewService(repo)
	owner := Owner{Type: entity.DocumentTypeSale, ID: id.New()}

	paid, err := svc.RecomputePaidAmount(ctx, owner, types.MustMoney("100"))
	require.NoError(t, err)
	assert.True(t, paid.IsZero())

	_, err = svc.RecordPayment(ctx, owner, pay("60"))
	require.NoError(t, err)
	_, err = svc.RecordPayment(ctx, owner, pay("40"))
	require.NoError(t, err)

	paid, err = svc.RecomputePaidAmount(ctx, owner, types.MustMoney("100"))
	require.NoError(t, err)
	assert.Equal(t, "100.00", paid.StringFixed(2))

	_, err = svc.RecomputePaidAmount(ctx, owner, types.MustMoney("99.99"))
	assert.True(t, apperror.Is(err, apperror.CodePaidExceedsTotal))
}

func TestCheckPaid(t *testing.T) {
	total := types.MustMoney("50")

	assert.NoError(t, CheckPaid(types.Zero(), total))
	assert.NoError(t, CheckPaid(total, total))
	assert.True(t, apperror.Is(CheckPaid(types.MustMoney("-0.01"), total), apperror.CodePaidAmountNegative))
	assert.True(t, apperror.Is(CheckPaid(types.MustMoney("50.01"), total), apperror.CodePaidExceedsTotal))
}

func TestReplacePayments(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	svc := NewService(repo)
	owner := Owner{Type: entity.DocumentTypeSaleOrder, ID: id.New()}
	other := Owner{Type: entity.DocumentTypeSaleOrder, ID: id.New()}

	_, err := svc.RecordPayment(ctx, owner, pay("10"))
	require.NoError(t, err)
	_, err = svc.RecordPayment(ctx, other, pay("5"))
	require.NoError(t, err)

	rows, err := svc.ReplacePayments(ctx, owner, []Input{pay("7"), pay("8")})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, "15.00", Sum(rows).StringFixed(2))

	listed, err := svc.List(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
	assert.Equal(t, 3, repo.Count())

	// a rejected replacement leaves stored rows alone
	_, err = svc.ReplacePayments(ctx, owner, []Input{{Amount: types.MustMoney("1")}})
	assert.True(t, apperror.Is(err, apperror.CodeMissingPaymentType))
	assert.Equal(t, 3, repo.Count())
}

func TestTransferPayments(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())
	order := Owner{Type: entity.DocumentTypeSaleOrder, ID: id.New()}
	sale := Owner{Type: entity.DocumentTypeSale, ID: id.New()}

	_, err := svc.RecordPayment(ctx, order, pay("30"))
	require.NoError(t, err)
	_, err = svc.RecordPayment(ctx, order, pay("20"))
	require.NoError(t, err)

	moved, paid, err := svc.TransferPayments(ctx, order, sale, types.MustMoney("100"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved)
	assert.Equal(t, "50.00", paid.StringFixed(2))

	sourcePaid, err := svc.RecomputePaidAmount(ctx, order, types.MustMoney("100"))
	require.NoError(t, err)
	assert.True(t, sourcePaid.IsZero())

	rows, err := svc.List(ctx, order)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// second transfer moves nothing
	moved, paid, err = svc.TransferPayments(ctx, order, sale, types.MustMoney("100"))
	require.NoError(t, err)
	assert.Zero(t, moved)
	assert.Equal(t, "50.00", paid.StringFixed(2))
}

func TestRecordPayment_ZeroAmount(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	_, err := svc.RecordPayment(context.Background(), Owner{Type: entity.DocumentTypeSale, ID: id.New()}, Input{Amount: types.Zero()})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}
