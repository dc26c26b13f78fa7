package sales

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesflow/internal/core/apperror"
	"salesflow/internal/core/entity"
	"salesflow/internal/core/features"
	"salesflow/internal/core/id"
	"salesflow/internal/core/numerator"
	"salesflow/internal/core/types"
	"salesflow/internal/domain/catalogs/item"
	"salesflow/internal/domain/credit"
	"salesflow/internal/domain/registers/itemledger"
	"salesflow/internal/domain/registers/payment"
)

// --- fakes ---

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

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Type
	}
	return out
}

type memFiles struct {
	stored  map[string]string
	deleted []string
}

func (m *memFiles) Store(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	path := fmt.Sprintf("proofs/%d-%s", len(m.stored)+1, name)
	m.stored[path] = string(body)
	return path, nil
}

func (m *memFiles) Delete(ctx context.Context, path string) error {
	delete(m.stored, path)
	m.deleted = append(m.deleted, path)
	return nil
}

type fakeCredit struct {
	res   *credit.Result
	calls int
}

func (f *fakeCredit) Check(ctx context.Context, customerID id.ID) (*credit.Result, error) {
	f.calls++
	if f.res == nil {
		return &credit.Result{CustomerID: customerID}, nil
	}
	return f.res, nil
}

// --- fixture ---

type fixture struct {
	svc         *Service
	repo        *MemoryRepository
	ledger      *itemledger.Service
	ledgerRepo  *itemledger.MemoryRepository
	payRepo     *payment.MemoryRepository
	notifier    *recordingNotifier
	files       *memFiles
	credit      *fakeCredit
	item        *item.Item
	warehouse   id.ID
	customer    id.ID
	paymentType id.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	it := item.NewItem("IT-1", "Widget")
	ledgerRepo := itemledger.NewMemoryRepository()
	ledger := itemledger.NewService(ledgerRepo, fakeItems{it.ID: it}, features.NewInMemoryFlags())
	payRepo := payment.NewMemoryRepository()
	repo := NewMemoryRepository()

	f := &fixture{
		repo:        repo,
		ledger:      ledger,
		ledgerRepo:  ledgerRepo,
		payRepo:     payRepo,
		notifier:    &recordingNotifier{},
		files:       &memFiles{stored: map[string]string{}},
		credit:      &fakeCredit{},
		item:        it,
		warehouse:   id.New(),
		customer:    id.New(),
		paymentType: id.New(),
	}
	f.svc = NewService(repo, ledger, payment.NewService(payRepo), &numerator.MockGenerator{}, repo.TxManager(), DefaultConfig(),
		WithNotifier(f.notifier),
		WithFileStore(f.files),
		WithCreditChecker(f.credit),
	)

	opening := itemledger.Transaction{
		ID:          id.New(),
		OwnerType:   entity.DocumentType("opening"),
		OwnerID:     id.New(),
		LineNo:      1,
		ItemID:      it.ID,
		WarehouseID: f.warehouse,
		Quantity:    types.NewQuantityFromUnits(10),
		UniqueCode:  itemledger.CodeItemOpening,
	}
	require.NoError(t, ledger.SaveLines(context.Background(), []itemledger.Transaction{opening}))
	return f
}

func (f *fixture) create(t *testing.T, docType entity.DocumentType, qty int64, paid string, deducted bool) *Document {
	t.Helper()
	cmd := CreateCommand{
		Type: docType,
		Header: Header{
			CustomerID:   f.customer,
			OtherCharges: types.MustMoney("5"),
			RoundOff:     types.MustMoney("-0.5"),
		},
		InventoryDeducted: deducted,
		Lines: []itemledger.LineInput{{
			ItemID:      f.item.ID,
			WarehouseID: f.warehouse,
			Quantity:    types.NewQuantityFromUnits(qty),
			UnitPrice:   types.MustMoney("100"),
		}},
		Actor: "clerk@example.com",
	}
	if paid != "" {
		cmd.Payments = []payment.Input{{Amount: types.MustMoney(paid), PaymentTypeID: &f.paymentType}}
	}

	res, err := f.svc.CreateDocument(context.Background(), cmd)
	require.NoError(t, err)
	return res.Document
}

func (f *fixture) stock(t *testing.T) int64 {
	t.Helper()
	s, err := f.ledger.GetStock(context.Background(), f.item.ID, f.warehouse)
	require.NoError(t, err)
	return s.Quantity.Units()
}

func (f *fixture) codes(t *testing.T, doc *Document) []itemledger.UniqueCode {
	t.Helper()
	lines, err := f.ledger.GetLines(context.Background(), doc.Ref())
	require.NoError(t, err)
	out := make([]itemledger.UniqueCode, len(lines))
	for i, l := range lines {
		out[i] = l.UniqueCode
	}
	return out
}

func (f *fixture) move(t *testing.T, doc *Document, to Status) *StatusResult {
	t.Helper()
	res, err := f.svc.UpdateStatus(context.Background(), StatusCommand{
		DocumentID: doc.ID,
		Status:     to,
		Notes:      "signed by receiver",
		Actor:      "driver",
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) reload(t *testing.T, doc *Document) *Document {
	t.Helper()
	d, err := f.repo.GetByID(context.Background(), doc.ID)
	require.NoError(t, err)
	return d
}

// --- create ---

func TestCreateDocument_SaleOrder(t *testing.T) {
	f := newFixture(t)

	doc := f.create(t, entity.DocumentTypeSaleOrder, 2, "50", false)

	assert.True(t, strings.HasPrefix(doc.Number, "SO-"), doc.Number)
	assert.True(t, types.MustMoney("204.50").Equal(doc.GrandTotal), doc.GrandTotal.String())
	assert.True(t, types.MustMoney("50").Equal(doc.PaidAmount))
	assert.Equal(t, StatusPending, doc.Status)
	assert.Equal(t, InventoryPending, doc.InventoryStatus)
	assert.Equal(t, []itemledger.UniqueCode{itemledger.CodeSaleOrder}, f.codes(t, doc))
	assert.Equal(t, int64(10), f.stock(t), "reservation does not move stock")
	assert.Equal(t, []string{EventDocumentCreated}, f.notifier.types())
	assert.Zero(t, f.credit.calls, "credit is checked for sales only")
}

func TestCreateDocument_Quotation(t *testing.T) {
	f := newFixture(t)

	doc := f.create(t, entity.DocumentTypeQuotation, 3, "", false)

	assert.True(t, strings.HasPrefix(doc.Number, "QT-"))
	assert.Equal(t, []itemledger.UniqueCode{itemledger.CodeQuotation}, f.codes(t, doc))
	assert.Equal(t, int64(10), f.stock(t))
}

func TestCreateDocument_DeductedSale(t *testing.T) {
	f := newFixture(t)
	f.credit.res = &credit.Result{LimitConfigured: true, Exceeded: true}

	res, err := f.svc.CreateDocument(context.Background(), CreateCommand{
		Type:              entity.DocumentTypeSale,
		Header:            Header{CustomerID: f.customer},
		InventoryDeducted: true,
		Lines: []itemledger.LineInput{{
			ItemID: f.item.ID, WarehouseID: f.warehouse,
			Quantity: types.NewQuantityFromUnits(2), UnitPrice: types.MustMoney("10"),
		}},
	})
	require.NoError(t, err)

	doc := res.Document
	assert.True(t, strings.HasPrefix(doc.Number, "SI-"))
	assert.Equal(t, InventoryDeducted, doc.InventoryStatus)
	assert.NotNil(t, doc.InventoryDeductedAt)
	assert.Equal(t, []itemledger.UniqueCode{itemledger.CodeSale}, f.codes(t, doc))
	assert.Equal(t, int64(8), f.stock(t))

	require.NotNil(t, res.Credit)
	assert.True(t, res.Credit.Exceeded)
	assert.Equal(t, 1, f.credit.calls)
}

func TestCreateDocument_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture, cmd *CreateCommand)
		code   string
	}{
		{
			name: "paid exceeds total",
			mutate: func(f *fixture, cmd *CreateCommand) {
				cmd.Payments = []payment.Input{{Amount: types.MustMoney("1000"), PaymentTypeID: &f.paymentType}}
			},
			code: apperror.CodePaidExceedsTotal,
		},
		{
			name: "payment without type",
			mutate: func(f *fixture, cmd *CreateCommand) {
				cmd.Payments = []payment.Input{{Amount: types.MustMoney("10")}}
			},
			code: apperror.CodeMissingPaymentType,
		},
		{
			name: "zero quantity",
			mutate: func(f *fixture, cmd *CreateCommand) {
				cmd.Lines[0].Quantity = 0
			},
			code: apperror.CodeInvalidQuantity,
		},
		{
			name: "deducted quotation",
			mutate: func(f *fixture, cmd *CreateCommand) {
				cmd.Type = entity.DocumentTypeQuotation
				cmd.InventoryDeducted = true
			},
			code: apperror.CodeValidation,
		},
		{
			name: "missing customer",
			mutate: func(f *fixture, cmd *CreateCommand) {
				cmd.CustomerID = id.Nil()
			},
			code: apperror.CodeValidation,
		},
		{
			name: "unknown type",
			mutate: func(f *fixture, cmd *CreateCommand) {
				cmd.Type = entity.DocumentType("invoice")
			},
			code: apperror.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			cmd := CreateCommand{
				Type:   entity.DocumentTypeSaleOrder,
				Header: Header{CustomerID: f.customer},
				Lines: []itemledger.LineInput{{
					ItemID: f.item.ID, WarehouseID: f.warehouse,
					Quantity: types.NewQuantityFromUnits(1), UnitPrice: types.MustMoney("100"),
				}},
			}
			tt.mutate(f, &cmd)

			_, err := f.svc.CreateDocument(context.Background(), cmd)
			require.Error(t, err)
			assert.True(t, apperror.Is(err, tt.code), "got %v", err)

			assert.Len(t, f.ledgerRepo.All(), 1, "only the opening balance is stored")
			assert.Zero(t, f.payRepo.Count())
			assert.Empty(t, f.notifier.types())
		})
	}
}

// --- status ---

func TestUpdateStatus_DeliveryAndReturn(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, entity.DocumentTypeSaleOrder, 2, "", false)

	res := f.move(t, doc, StatusProcessing)
	assert.False(t, res.InventoryUpdated)
	assert.Equal(t, int64(10), f.stock(t))

	res = f.move(t, doc, StatusPOD)
	assert.True(t, res.Success)
	assert.True(t, res.InventoryUpdated)
	assert.Equal(t, InventoryDeducted, res.InventoryStatus)
	assert.Equal(t, int64(8), f.stock(t))
	assert.Equal(t, []itemledger.UniqueCode{itemledger.CodeSale}, f.codes(t, doc))
	assert.NotNil(t, f.reload(t, doc).InventoryDeductedAt)

	res = f.move(t, doc, StatusReturned)
	assert.False(t, res.InventoryUpdated)
	assert.Equal(t, InventoryDeductedDelivered, res.InventoryStatus)
	assert.Equal(t, int64(8), f.stock(t), "delivered goods stay deducted")

	stored := f.reload(t, doc)
	require.NotNil(t, stored.PostDeliveryAction)
	assert.Equal(t, StatusReturned, *stored.PostDeliveryAction)
	assert.NotNil(t, stored.PostDeliveryActionAt)

	history, err := f.svc.GetStatusHistory(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, StatusPending, history[0].PreviousStatus)
	assert.Equal(t, StatusProcessing, history[0].NewStatus)
	assert.Equal(t, StatusPOD, history[2].PreviousStatus)
	assert.Equal(t, StatusReturned, history[2].NewStatus)
	assert.Equal(t, "driver", history[2].ChangedBy)

	_, err = f.svc.UpdateStatus(context.Background(), StatusCommand{DocumentID: doc.ID, Status: StatusPending})
	assert.True(t, apperror.Is(err, apperror.CodeInvalidTransition))
}

func TestUpdateStatus_PODTwice(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, entity.DocumentTypeSale, 2, "", false)
	f.move(t, doc, StatusPOD)

	_, err := f.svc.UpdateStatus(context.Background(), StatusCommand{DocumentID: doc.ID, Status: StatusPOD, Notes: "again"})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeAlreadyDeducted))

	history, err := f.svc.GetStatusHistory(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, int64(8), f.stock(t))
}

func TestUpdateStatus_ConcurrentPOD(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, entity.DocumentTypeSaleOrder, 2, "", false)

	const callers = 2
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make([]*StatusResult, callers)
		errs    = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = f.svc.UpdateStatus(context.Background(), StatusCommand{
				DocumentID: doc.ID,
				Status:     StatusPOD,
				Notes:      "signed by receiver",
				Actor:      fmt.Sprintf("driver-%d", i),
			})
		}(i)
	}
	close(start)
	wg.Wait()

	deducted, rejected := 0, 0
	for i, err := range errs {
		switch {
		case err == nil:
			require.NotNil(t, results[i])
			if results[i].InventoryUpdated {
				deducted++
			}
		case apperror.Is(err, apperror.CodeAlreadyDeducted):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, deducted)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, int64(8), f.stock(t))

	history, err := f.svc.GetStatusHistory(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestUpdateStatus_CancelRestoresDeductedSale(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, entity.DocumentTypeSale, 2, "", true)
	require.Equal(t, int64(8), f.stock(t))

	res := f.move(t, doc, StatusCancelled)

	assert.True(t, res.InventoryUpdated)
	assert.Equal(t, InventoryPending, res.InventoryStatus)
	assert.Equal(t, int64(10), f.stock(t))
	assert.Equal(t, []itemledger.UniqueCode{itemledger.CodeSaleOrder}, f.codes(t, doc))

	stored := f.reload(t, doc)
	assert.Nil(t, stored.InventoryDeductedAt)
	assert.Nil(t, stored.PostDeliveryAction)
}

func TestUpdateStatus_CancelReservedOrder(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, entity.DocumentTypeSaleOrder, 2, "", false)

	res := f.move(t, doc, StatusCancelled)

	assert.False(t, res.InventoryUpdated)
	assert.Equal(t, InventoryPending, res.InventoryStatus)
	assert.Equal(t, int64(10), f.stock(t))
}

func TestUpdateStatus_DeliverAlreadyDeducted(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, entity.DocumentTypeSale, 2, "", true)

	res := f.move(t, doc, StatusPOD)

	assert.True(t, res.Success)
	assert.False(t, res.InventoryUpdated)
	assert.Contains(t, res.Message, "inventory already deducted")
	assert.Equal(t, StatusPOD, res.Status)
	assert.Equal(t, int64(8), f.stock(t))
}

func TestUpdateStatus_Validation(t *testing.T) {
	f := newFixture(t)
	order := f.create(t, entity.DocumentTypeSaleOrder, 1, "", false)
	quote := f.create(t, entity.DocumentTypeQuotation, 1, "", false)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, StatusCommand{DocumentID: order.ID, Status: StatusPOD, Notes: "   "})
	assert.True(t, apperror.Is(err, apperror.CodeMissingProof))

	_, err = f.svc.UpdateStatus(ctx, StatusCommand{DocumentID: quote.ID, Status: StatusProcessing})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	_, err = f.svc.UpdateStatus(ctx, StatusCommand{DocumentID: id.New(), Status: StatusProcessing})
	assert.True(t, apperror.IsNotFound(err))

	f.move(t, order, StatusDelivery)
	_, err = f.svc.UpdateStatus(ctx, StatusCommand{DocumentID: order.ID, Status: StatusCompleted})
	assert.True(t, apperror.Is(err, apperror.CodeInvalidTransition))
}

func TestUpdateStatus_ProofImage(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, entity.DocumentTypeSaleOrder, 1, "", false)

	_, err := f.svc.UpdateStatus(context.Background(), StatusCommand{
		DocumentID: doc.ID,
		Status:     StatusPOD,
		Notes:      "left at door",
		Proof:      &ProofImage{Filename: "pod.jpg", ContentType: "image/jpeg", Body: strings.NewReader("jpeg")},
	})
	require.NoError(t, err)

	history, err := f.svc.GetStatusHistory(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].ProofImage)
	assert.Equal(t, "jpeg", f.files.stored[*history[0].ProofImage])
	assert.Equal(t, "left at door", history[0].Notes)
}

func TestUpdateStatus_FailedTransitionDiscardsProof(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, entity.DocumentTypeSaleOrder, 1, "", false)
	f.repo.FailUpdate = errors.New("connection reset")

	_, err := f.svc.UpdateStatus(context.Background(), StatusCommand{
		DocumentID: doc.ID,
		Status:     StatusCancelled,
		Notes:      "customer request",
		Proof:      &ProofImage{Filename: "note.png", Body: strings.NewReader("png")},
	})
	require.Error(t, err)

	assert.Len(t, f.files.deleted, 1)
	assert.Empty(t, f.files.stored)
	history, err := f.svc.GetStatusHistory(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestUpdateStatus_NotificationFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, entity.DocumentTypeSaleOrder, 1, "", false)
	f.notifier.err = errors.New("broker down")

	res := f.move(t, doc, StatusProcessing)

	assert.True(t, res.Success)
	assert.Equal(t, []string{EventDocumentCreated, EventStatusChanged}, f.notifier.types())
}

// --- conversion ---

func TestConvert_SaleOrder(t *testing.T) {
	f := newFixture(t)
	order := f.create(t, entity.DocumentTypeSaleOrder, 2, "50", false)
	f.move(t, order, StatusProcessing)

	res, err := f.svc.Convert(context.Background(), ConvertCommand{
		SourceID:   order.ID,
		SourceType: entity.DocumentTypeSaleOrder,
		Actor:      "clerk",
	})
	require.NoError(t, err)

	sale := res.Document
	assert.Equal(t, entity.DocumentTypeSale, sale.Type)
	assert.True(t, strings.HasPrefix(sale.Number, "SI-"))
	assert.Equal(t, StatusPending, sale.Status)
	assert.Equal(t, InventoryPending, sale.InventoryStatus)
	require.NotNil(t, sale.SourceID)
	assert.Equal(t, order.ID, *sale.SourceID)
	assert.Equal(t, entity.DocumentTypeSaleOrder, *sale.SourceType)
	assert.True(t, order.GrandTotal.Equal(sale.GrandTotal))
	assert.True(t, types.MustMoney("50").Equal(sale.PaidAmount))
	assert.Len(t, sale.Payments, 1)
	assert.Equal(t, []itemledger.UniqueCode{itemledger.CodeSaleOrder}, f.codes(t, sale))
	assert.Equal(t, int64(10), f.stock(t))

	src := f.reload(t, order)
	assert.True(t, src.PaidAmount.IsZero())
	assert.Equal(t, StatusProcessing, src.Status, "source keeps its status")
	srcPayments, err := payment.NewService(f.payRepo).List(context.Background(), order.Ref())
	require.NoError(t, err)
	assert.Empty(t, srcPayments)

	assert.Contains(t, f.notifier.types(), EventDocumentConverted)

	_, err = f.svc.Convert(context.Background(), ConvertCommand{SourceID: order.ID, SourceType: entity.DocumentTypeSaleOrder})
	assert.True(t, apperror.Is(err, apperror.CodeAlreadyConverted))
}

func TestConvert_TransfersEveryPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateDocument(ctx, CreateCommand{
		Type:   entity.DocumentTypeSaleOrder,
		Header: Header{CustomerID: f.customer},
		Lines: []itemledger.LineInput{{
			ItemID: f.item.ID, WarehouseID: f.warehouse,
			Quantity: types.NewQuantityFromUnits(1), UnitPrice: types.MustMoney("50"),
		}},
		Payments: []payment.Input{
			{Amount: types.MustMoney("30"), PaymentTypeID: &f.paymentType},
			{Amount: types.MustMoney("20"), PaymentTypeID: &f.paymentType},
		},
	})
	require.NoError(t, err)
	order := created.Document
	require.True(t, types.MustMoney("50").Equal(order.GrandTotal), order.GrandTotal.String())

	res, err := f.svc.Convert(ctx, ConvertCommand{SourceID: order.ID, SourceType: entity.DocumentTypeSaleOrder})
	require.NoError(t, err)

	sale := res.Document
	assert.True(t, types.MustMoney("50").Equal(sale.PaidAmount), sale.PaidAmount.String())
	assert.True(t, sale.PaidAmount.Equal(sale.GrandTotal))
	assert.Len(t, sale.Payments, 2)
	assert.True(t, types.MustMoney("50").Equal(f.reload(t, sale).PaidAmount))

	assert.True(t, f.reload(t, order).PaidAmount.IsZero())
	srcPayments, err := payment.NewService(f.payRepo).List(ctx, order.Ref())
	require.NoError(t, err)
	assert.Empty(t, srcPayments)
	assert.Equal(t, 2, f.payRepo.Count())
}

func TestConvert_DeliveredOrderKeepsSingleDeduction(t *testing.T) {
	f := newFixture(t)
	order := f.create(t, entity.DocumentTypeSaleOrder, 2, "", false)
	f.move(t, order, StatusPOD)
	require.Equal(t, int64(8), f.stock(t))

	res, err := f.svc.Convert(context.Background(), ConvertCommand{SourceID: order.ID, SourceType: entity.DocumentTypeSaleOrder})
	require.NoError(t, err)

	sale := res.Document
	assert.Equal(t, InventoryDeducted, sale.InventoryStatus)
	assert.NotNil(t, sale.InventoryDeductedAt)
	assert.Equal(t, []itemledger.UniqueCode{itemledger.CodeSale}, f.codes(t, sale))
	assert.Equal(t, []itemledger.UniqueCode{itemledger.CodeSaleOrder}, f.codes(t, order))
	assert.Equal(t, int64(8), f.stock(t), "the deduction moves to the sale")

	src := f.reload(t, order)
	assert.Equal(t, StatusPOD, src.Status)
	assert.Equal(t, InventoryPending, src.InventoryStatus)

	delivered := f.move(t, sale, StatusPOD)
	assert.False(t, delivered.InventoryUpdated)
	assert.Equal(t, int64(8), f.stock(t))

	f.move(t, sale, StatusReturned)
	assert.Equal(t, int64(8), f.stock(t))
}

func TestConvert_SourceIsFrozen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.create(t, entity.DocumentTypeSaleOrder, 2, "", false)

	res, err := f.svc.Convert(ctx, ConvertCommand{SourceID: order.ID, SourceType: entity.DocumentTypeSaleOrder})
	require.NoError(t, err)
	f.move(t, res.Document, StatusPOD)
	require.Equal(t, int64(8), f.stock(t))

	for _, to := range []Status{StatusPOD, StatusProcessing, StatusCancelled} {
		_, err = f.svc.UpdateStatus(ctx, StatusCommand{DocumentID: order.ID, Status: to, Notes: "late update"})
		assert.True(t, apperror.Is(err, apperror.CodeAlreadyConverted), "%s: got %v", to, err)
	}

	assert.Equal(t, int64(8), f.stock(t))
	assert.Equal(t, StatusPending, f.reload(t, order).Status)
	history, err := f.svc.GetStatusHistory(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestConvert_Quotation(t *testing.T) {
	f := newFixture(t)
	quote := f.create(t, entity.DocumentTypeQuotation, 3, "", false)

	res, err := f.svc.Convert(context.Background(), ConvertCommand{SourceID: quote.ID, SourceType: entity.DocumentTypeQuotation})
	require.NoError(t, err)

	assert.Equal(t, []itemledger.UniqueCode{itemledger.CodeSaleOrder}, f.codes(t, res.Document))
	assert.Equal(t, []itemledger.UniqueCode{itemledger.CodeQuotation}, f.codes(t, quote))

	f.move(t, res.Document, StatusPOD)
	assert.Equal(t, int64(7), f.stock(t))
}

func TestConvert_Rejected(t *testing.T) {
	f := newFixture(t)
	order := f.create(t, entity.DocumentTypeSaleOrder, 1, "", false)
	sale := f.create(t, entity.DocumentTypeSale, 1, "", false)
	cancelled := f.create(t, entity.DocumentTypeSaleOrder, 1, "", false)
	f.move(t, cancelled, StatusCancelled)
	ctx := context.Background()

	_, err := f.svc.Convert(ctx, ConvertCommand{SourceID: order.ID, SourceType: entity.DocumentTypeQuotation})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	_, err = f.svc.Convert(ctx, ConvertCommand{SourceID: sale.ID, SourceType: entity.DocumentTypeSale})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	_, err = f.svc.Convert(ctx, ConvertCommand{SourceID: cancelled.ID, SourceType: entity.DocumentTypeSaleOrder})
	assert.True(t, apperror.Is(err, apperror.CodeBusinessRule))
}

// --- update ---

func TestUpdateDocument(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, entity.DocumentTypeSale, 2, "", true)
	require.Equal(t, int64(8), f.stock(t))

	res, err := f.svc.UpdateDocument(context.Background(), UpdateCommand{
		DocumentID: doc.ID,
		Version:    doc.Version,
		Header:     Header{CustomerID: f.customer, Comment: "revised"},
		Lines: []itemledger.LineInput{{
			ItemID: f.item.ID, WarehouseID: f.warehouse,
			Quantity: types.NewQuantityFromUnits(3), UnitPrice: types.MustMoney("100"),
		}},
		Payments: []payment.Input{{Amount: types.MustMoney("300"), PaymentTypeID: &f.paymentType}},
		Actor:    "manager",
	})
	require.NoError(t, err)

	updated := res.Document
	assert.Equal(t, doc.Version+1, updated.Version)
	assert.True(t, types.MustMoney("300").Equal(updated.GrandTotal))
	assert.True(t, types.MustMoney("300").Equal(updated.PaidAmount))
	assert.Equal(t, "revised", updated.Comment)
	assert.Equal(t, []itemledger.UniqueCode{itemledger.CodeSale}, f.codes(t, updated))
	assert.Equal(t, int64(7), f.stock(t), "deducted sale stays deducted after edit")

	_, err = f.svc.UpdateDocument(context.Background(), UpdateCommand{
		DocumentID: doc.ID,
		Version:    doc.Version,
		Header:     Header{CustomerID: f.customer},
		Lines: []itemledger.LineInput{{
			ItemID: f.item.ID, WarehouseID: f.warehouse,
			Quantity: types.NewQuantityFromUnits(1), UnitPrice: types.MustMoney("1"),
		}},
	})
	assert.True(t, apperror.IsConcurrentModification(err))
}

func TestUpdateDocument_Rejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lines := []itemledger.LineInput{{
		ItemID: f.item.ID, WarehouseID: f.warehouse,
		Quantity: types.NewQuantityFromUnits(1), UnitPrice: types.MustMoney("10"),
	}}

	order := f.create(t, entity.DocumentTypeSaleOrder, 1, "", false)
	_, err := f.svc.Convert(ctx, ConvertCommand{SourceID: order.ID, SourceType: entity.DocumentTypeSaleOrder})
	require.NoError(t, err)
	_, err = f.svc.UpdateDocument(ctx, UpdateCommand{DocumentID: order.ID, Header: Header{CustomerID: f.customer}, Lines: lines})
	assert.True(t, apperror.Is(err, apperror.CodeAlreadyConverted))

	cancelled := f.create(t, entity.DocumentTypeSale, 1, "", false)
	f.move(t, cancelled, StatusCancelled)
	_, err = f.svc.UpdateDocument(ctx, UpdateCommand{DocumentID: cancelled.ID, Header: Header{CustomerID: f.customer}, Lines: lines})
	assert.True(t, apperror.Is(err, apperror.CodeBusinessRule))

	paid := f.create(t, entity.DocumentTypeSale, 1, "", false)
	_, err = f.svc.UpdateDocument(ctx, UpdateCommand{
		DocumentID: paid.ID,
		Header:     Header{CustomerID: f.customer},
		Lines:      lines,
		Payments:   []payment.Input{{Amount: types.MustMoney("50"), PaymentTypeID: &f.paymentType}},
	})
	assert.True(t, apperror.Is(err, apperror.CodePaidExceedsTotal))
}

// --- queries ---

func TestListDocuments(t *testing.T) {
	f := newFixture(t)
	f.create(t, entity.DocumentTypeSaleOrder, 1, "", false)
	f.create(t, entity.DocumentTypeSaleOrder, 1, "", false)
	f.create(t, entity.DocumentTypeSale, 1, "", false)

	orders := entity.DocumentTypeSaleOrder
	res, err := f.svc.ListDocuments(context.Background(), ListFilter{Type: &orders})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.TotalCount)
	assert.Equal(t, 50, res.Limit)
}

func TestGetDocument_LoadsTableParts(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, entity.DocumentTypeSaleOrder, 2, "20", false)

	got, err := f.svc.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Len(t, got.Lines, 1)
	assert.Len(t, got.Payments, 1)
	assert.Equal(t, doc.Number, got.Number)
}

func TestOutstandingBalance(t *testing.T) {
	f := newFixture(t)
	f.create(t, entity.DocumentTypeSale, 2, "50", false)
	f.create(t, entity.DocumentTypeSaleOrder, 1, "", false)
	cancelled := f.create(t, entity.DocumentTypeSale, 1, "", false)
	f.move(t, cancelled, StatusCancelled)

	due, err := f.repo.OutstandingBalance(context.Background(), f.customer)
	require.NoError(t, err)
	assert.True(t, types.MustMoney("154.50").Equal(due), due.String())
}
