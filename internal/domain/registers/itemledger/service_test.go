package itemledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesflow/internal/core/apperror"
	"salesflow/internal/core/entity"
	"salesflow/internal/core/features"
	"salesflow/internal/core/id"
	"salesflow/internal/core/types"
	"salesflow/internal/domain/catalogs/item"
)

type fakeItems map[id.ID]*item.Item

func (f fakeItems) GetByIDs(ctx context.Context, ids []id.ID) (map[id.ID]*item.Item, error) {
	out := make(map[id.ID]*item.Item, len(ids))
	for _, itemID := range ids {
		if it, ok := f[itemID]; ok {
			out[itemID] = it
		}
	}
	return out, nil
}

type fixture struct {
	svc       *Service
	repo      *MemoryRepository
	flags     *features.InMemoryFlags
	regular   *item.Item
	batch     *item.Item
	serial    *item.Item
	warehouse id.ID
}

func newFixture() *fixture {
	regular := item.NewItem("IT-1", "Widget")
	mrp, msp := types.MustMoney("120"), types.MustMoney("80")
	regular.MRP, regular.MSP = &mrp, &msp

	batch := item.NewItem("IT-2", "Syrup")
	batch.TrackingType = item.TrackingBatch

	serial := item.NewItem("IT-3", "Phone")
	serial.TrackingType = item.TrackingSerial

	repo := NewMemoryRepository()
	flags := features.NewInMemoryFlags()
	items := fakeItems{regular.ID: regular, batch.ID: batch, serial.ID: serial}

	return &fixture{
		svc:       NewService(repo, items, flags),
		repo:      repo,
		flags:     flags,
		regular:   regular,
		batch:     batch,
		serial:    serial,
		warehouse: id.New(),
	}
}

func (f *fixture) line(it *item.Item, qty int64, price string) LineInput {
	return LineInput{
		ItemID:      it.ID,
		WarehouseID: f.warehouse,
		Quantity:    types.NewQuantityFromUnits(qty),
		UnitPrice:   types.MustMoney(price),
	}
}

func (f *fixture) seedOpening(t *testing.T, it *item.Item, qty int64) {
	t.Helper()
	opening := Transaction{
		ID:          id.New(),
		OwnerType:   entity.DocumentType("opening"),
		OwnerID:     id.New(),
		LineNo:      1,
		ItemID:      it.ID,
		WarehouseID: f.warehouse,
		Quantity:    types.NewQuantityFromUnits(qty),
		UniqueCode:  CodeItemOpening,
	}
	require.NoError(t, f.svc.SaveLines(context.Background(), []Transaction{opening}))
}

func (f *fixture) stock(t *testing.T, it *item.Item) types.Quantity {
	t.Helper()
	s, err := f.svc.GetStock(context.Background(), it.ID, f.warehouse)
	require.NoError(t, err)
	return s.Quantity
}

func newOwner(t entity.DocumentType) Owner {
	return Owner{Type: t, ID: id.New()}
}

func TestUniqueCode_StockSign(t *testing.T) {
	tests := []struct {
		code UniqueCode
		want int64
	}{
		{CodeItemOpening, 1},
		{CodePurchase, 1},
		{CodeSaleReturn, 1},
		{CodeSale, -1},
		{CodePurchaseReturn, -1},
		{CodeSaleOrder, 0},
		{CodeQuotation, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.StockSign())
		})
	}

	assert.Equal(t, []UniqueCode{CodeItemOpening, CodePurchase, CodeSaleReturn}, ReceiptCodes())
	assert.Equal(t, []UniqueCode{CodeSale, CodePurchaseReturn}, ExpenseCodes())
}

func TestCodeForDocument(t *testing.T) {
	assert.Equal(t, CodeQuotation, CodeForDocument(entity.DocumentTypeQuotation, false))
	assert.Equal(t, CodeSaleOrder, CodeForDocument(entity.DocumentTypeSaleOrder, false))
	assert.Equal(t, CodeSaleOrder, CodeForDocument(entity.DocumentTypeSale, false))
	assert.Equal(t, CodeSale, CodeForDocument(entity.DocumentTypeSale, true))
}

func TestComputeAmounts(t *testing.T) {
	tests := []struct {
		name     string
		in       LineInput
		discount string
		tax      string
		total    string
		wantErr  bool
	}{
		{
			name: "percentage discount with tax",
			in: LineInput{
				Quantity: types.NewQuantityFromUnits(2), UnitPrice: types.MustMoney("100"),
				DiscountType: DiscountPercentage, Discount: types.MustMoney("10"), TaxRate: types.MustMoney("18"),
			},
			discount: "20.00", tax: "32.40", total: "212.40",
		},
		{
			name: "fixed discount with charge",
			in: LineInput{
				Quantity: types.NewQuantityFromUnits(3), UnitPrice: types.MustMoney("9.99"),
				DiscountType: DiscountFixed, Discount: types.MustMoney("25"), ChargeAmount: types.MustMoney("1.5"),
			},
			discount: "25.00", tax: "0.00", total: "6.47",
		},
		{
			name: "fractional quantity",
			in: LineInput{
				Quantity: types.NewQuantityFromFloat64(1.5), UnitPrice: types.MustMoney("10"),
			},
			discount: "0.00", tax: "0.00", total: "15.00",
		},
		{
			name: "fixed discount above amount",
			in: LineInput{
				Quantity: types.NewQuantityFromUnits(1), UnitPrice: types.MustMoney("10"),
				DiscountType: DiscountFixed, Discount: types.MustMoney("11"),
			},
			wantErr: true,
		},
		{
			name: "percentage above 100",
			in: LineInput{
				Quantity: types.NewQuantityFromUnits(1), UnitPrice: types.MustMoney("10"),
				Discount: types.MustMoney("101"),
			},
			wantErr: true,
		},
		{
			name: "negative price",
			in: LineInput{
				Quantity: types.NewQuantityFromUnits(1), UnitPrice: types.MustMoney("-1"),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeAmounts(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperror.Is(err, apperror.CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.discount, got.DiscountAmount.StringFixed(2))
			assert.Equal(t, tt.tax, got.TaxAmount.StringFixed(2))
			assert.Equal(t, tt.total, got.Total.StringFixed(2))
		})
	}
}

func TestBuildLines_InvalidQuantity(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := newOwner(entity.DocumentTypeSaleOrder)

	zero := f.line(f.regular, 0, "100")
	_, err := f.svc.BuildLines(ctx, owner, CodeSaleOrder, time.Now(), []LineInput{f.line(f.regular, 1, "100"), zero})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidQuantity, appErr.Code)
	assert.Equal(t, "quantity must be greater than zero", appErr.Message)
	assert.Equal(t, 2, appErr.Details["lineNo"])

	negative := f.line(f.regular, -3, "100")
	_, err = f.svc.BuildLines(ctx, owner, CodeSaleOrder, time.Now(), []LineInput{negative})
	appErr, ok = apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidQuantity, appErr.Code)
	assert.Equal(t, "quantity cannot be negative", appErr.Message)

	_, err = f.svc.BuildLines(ctx, owner, CodeSaleOrder, time.Now(), nil)
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}

func TestBuildLines_BatchTracking(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := newOwner(entity.DocumentTypeSale)

	t.Run("three batch entries for one line", func(t *testing.T) {
		in := f.line(f.batch, 5, "10")
		in.Batches = []BatchInput{{BatchNo: "B1"}, {BatchNo: "B2"}, {BatchNo: "B3"}}
		_, err := f.svc.BuildLines(ctx, owner, CodeSaleOrder, time.Now(), []LineInput{in})
		assert.True(t, apperror.Is(err, apperror.CodeCountMismatch))
	})

	t.Run("missing batch", func(t *testing.T) {
		_, err := f.svc.BuildLines(ctx, owner, CodeSaleOrder, time.Now(), []LineInput{f.line(f.batch, 5, "10")})
		assert.True(t, apperror.Is(err, apperror.CodeCountMismatch))
	})

	t.Run("batch quantity differs from line", func(t *testing.T) {
		in := f.line(f.batch, 5, "10")
		in.Batches = []BatchInput{{BatchNo: "B1", Quantity: types.NewQuantityFromUnits(3)}}
		_, err := f.svc.BuildLines(ctx, owner, CodeSaleOrder, time.Now(), []LineInput{in})
		assert.True(t, apperror.Is(err, apperror.CodeCountMismatch))
	})

	t.Run("single batch inherits line quantity", func(t *testing.T) {
		in := f.line(f.batch, 5, "10")
		in.Batches = []BatchInput{{BatchNo: "B1"}}
		lines, err := f.svc.BuildLines(ctx, owner, CodeSaleOrder, time.Now(), []LineInput{in})
		require.NoError(t, err)
		require.Len(t, lines, 1)
		require.NotNil(t, lines[0].Batch)
		assert.Equal(t, types.NewQuantityFromUnits(5), lines[0].Batch.Quantity)
		assert.Equal(t, CodeSaleOrder, lines[0].Batch.UniqueCode)
		assert.Equal(t, lines[0].ID, lines[0].Batch.ItemTransactionID)
		assert.Equal(t, item.TrackingBatch, lines[0].TrackingType)
	})
}

func TestBuildLines_SerialTracking(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := newOwner(entity.DocumentTypeSale)

	in := f.line(f.serial, 3, "500")
	in.Serials = []string{"SN1", "SN2"}
	_, err := f.svc.BuildLines(ctx, owner, CodeSaleOrder, time.Now(), []LineInput{in})
	assert.True(t, apperror.Is(err, apperror.CodeCountMismatch))

	in.Serials = []string{"SN1", "SN2", "SN2"}
	_, err = f.svc.BuildLines(ctx, owner, CodeSaleOrder, time.Now(), []LineInput{in})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	in.Serials = []string{"SN1", "SN2", "SN3"}
	lines, err := f.svc.BuildLines(ctx, owner, CodeSaleOrder, time.Now(), []LineInput{in})
	require.NoError(t, err)
	require.Len(t, lines[0].Serials, 3)
	assert.Equal(t, "SN3", lines[0].Serials[2].SerialCode)

	plain := f.line(f.regular, 1, "100")
	plain.Serials = []string{"SN9"}
	_, err = f.svc.BuildLines(ctx, owner, CodeSaleOrder, time.Now(), []LineInput{plain})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}

func TestBuildLines_PriceRestrictions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := newOwner(entity.DocumentTypeSale)

	above := f.line(f.regular, 1, "150")
	below := f.line(f.regular, 1, "50")

	// flags off: limits are informational only
	_, err := f.svc.BuildLines(ctx, owner, CodeSaleOrder, time.Now(), []LineInput{above, below})
	require.NoError(t, err)

	f.flags.SetFlag(features.FlagRestrictSellAboveMRP, true)
	_, err = f.svc.BuildLines(ctx, owner, CodeSaleOrder, time.Now(), []LineInput{above})
	assert.True(t, apperror.Is(err, apperror.CodePriceRestriction))
	_, err = f.svc.BuildLines(ctx, owner, CodeSaleOrder, time.Now(), []LineInput{below})
	require.NoError(t, err)

	f.flags.SetFlag(features.FlagRestrictSellBelowMSP, true)
	_, err = f.svc.BuildLines(ctx, owner, CodeSaleOrder, time.Now(), []LineInput{below})
	assert.True(t, apperror.Is(err, apperror.CodePriceRestriction))
}

func TestBuildLines_UnknownItem(t *testing.T) {
	f := newFixture()
	in := f.line(f.regular, 1, "100")
	in.ItemID = id.New()

	_, err := f.svc.BuildLines(context.Background(), newOwner(entity.DocumentTypeSale), CodeSaleOrder, time.Now(), []LineInput{in})
	assert.True(t, apperror.IsNotFound(err))
}

func TestTransitionUniqueCode_DeductAndRestore(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedOpening(t, f.regular, 10)
	assert.Equal(t, types.NewQuantityFromUnits(10), f.stock(t, f.regular))

	owner := newOwner(entity.DocumentTypeSale)
	_, err := f.svc.RecordLines(ctx, owner, CodeSaleOrder, time.Now(), []LineInput{f.line(f.regular, 5, "100")})
	require.NoError(t, err)

	// a reservation does not move on-hand stock
	assert.Equal(t, types.NewQuantityFromUnits(10), f.stock(t, f.regular))

	n, err := f.svc.DeductLines(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, types.NewQuantityFromUnits(5), f.stock(t, f.regular))

	// second deduction flips nothing and leaves stock untouched
	n, err = f.svc.DeductLines(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, types.NewQuantityFromUnits(5), f.stock(t, f.regular))

	n, err = f.svc.RestoreLines(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, types.NewQuantityFromUnits(10), f.stock(t, f.regular))
}

func TestTransitionUniqueCode_FlipsSubLedgers(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := newOwner(entity.DocumentTypeSale)

	b := f.line(f.batch, 2, "10")
	b.Batches = []BatchInput{{BatchNo: "LOT-7"}}
	s := f.line(f.serial, 2, "300")
	s.Serials = []string{"A", "B"}

	_, err := f.svc.RecordLines(ctx, owner, CodeSaleOrder, time.Now(), []LineInput{b, s})
	require.NoError(t, err)

	_, err = f.svc.DeductLines(ctx, owner)
	require.NoError(t, err)

	lines, err := f.svc.GetLines(ctx, owner)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, CodeSale, lines[0].UniqueCode)
	assert.Equal(t, CodeSale, lines[0].Batch.UniqueCode)
	for _, sr := range lines[1].Serials {
		assert.Equal(t, CodeSale, sr.UniqueCode)
	}
}

func TestReplaceLines_RecomputesRemovedPairs(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedOpening(t, f.regular, 10)

	owner := newOwner(entity.DocumentTypeSale)
	_, err := f.svc.RecordLines(ctx, owner, CodeSale, time.Now(), []LineInput{f.line(f.regular, 4, "100")})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromUnits(6), f.stock(t, f.regular))

	otherWarehouse := f.line(f.regular, 1, "100")
	otherWarehouse.WarehouseID = id.New()
	lines, err := f.svc.BuildLines(ctx, owner, CodeSale, time.Now(), []LineInput{otherWarehouse})
	require.NoError(t, err)
	require.NoError(t, f.svc.ReplaceLines(ctx, owner, lines))

	assert.Equal(t, types.NewQuantityFromUnits(10), f.stock(t, f.regular))
	moved, err := f.svc.GetStock(ctx, f.regular.ID, otherWarehouse.WarehouseID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromUnits(-1), moved.Quantity)
}

func TestCopyLines(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	src := newOwner(entity.DocumentTypeSaleOrder)
	dst := newOwner(entity.DocumentTypeSale)

	in := f.line(f.serial, 2, "300")
	in.Serials = []string{"X1", "X2"}
	orig, err := f.svc.RecordLines(ctx, src, CodeSaleOrder, time.Now(), []LineInput{in})
	require.NoError(t, err)

	copied, err := f.svc.CopyLines(ctx, src, dst, CodeSaleOrder, time.Now())
	require.NoError(t, err)
	require.Len(t, copied, 1)
	assert.NotEqual(t, orig[0].ID, copied[0].ID)
	assert.Equal(t, dst.ID, copied[0].OwnerID)
	assert.Equal(t, orig[0].Quantity, copied[0].Quantity)
	assert.True(t, orig[0].Total.Equal(copied[0].Total))
	require.Len(t, copied[0].Serials, 2)
	assert.Equal(t, copied[0].ID, copied[0].Serials[0].ItemTransactionID)

	srcLines, err := f.svc.GetLines(ctx, src)
	require.NoError(t, err)
	assert.Len(t, srcLines, 1)
}

func TestReconcile(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedOpening(t, f.regular, 10)

	key := StockKey{ItemID: f.regular.ID, WarehouseID: f.warehouse}
	f.repo.SetStock(key, types.NewQuantityFromUnits(7))

	drift, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, types.NewQuantityFromUnits(7), drift[0].Stored)
	assert.Equal(t, types.NewQuantityFromUnits(10), drift[0].Ledger)
	assert.Equal(t, types.NewQuantityFromUnits(10), f.stock(t, f.regular))

	drift, err = f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, drift)
}
