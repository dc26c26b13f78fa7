// Package itemledger provides the item-transaction register: one row per
// document line, tagged with a unique code that decides whether the line
// affects on-hand stock.
package itemledger

import (
	"time"

	"salesflow/internal/core/entity"
	"salesflow/internal/core/id"
	"salesflow/internal/core/types"
	"salesflow/internal/domain/catalogs/item"
)

// UniqueCode tags a ledger row with its stock effect.
type UniqueCode string

const (
	CodeItemOpening    UniqueCode = "ITEM_OPENING"
	CodePurchase       UniqueCode = "PURCHASE"
	CodePurchaseReturn UniqueCode = "PURCHASE_RETURN"
	CodeSale           UniqueCode = "SALE"
	CodeSaleReturn     UniqueCode = "SALE_RETURN"
	CodeSaleOrder      UniqueCode = "SALE_ORDER"
	CodeQuotation      UniqueCode = "QUOTATION"
)

// stockSigns maps each code to its effect on on-hand quantity.
// Codes absent from the map (reservations, quotations) do not move stock.
var stockSigns = map[UniqueCode]int64{
	CodeItemOpening:    1,
	CodePurchase:       1,
	CodeSaleReturn:     1,
	CodeSale:           -1,
	CodePurchaseReturn: -1,
}

// StockSign returns +1, -1 or 0.
func (c UniqueCode) StockSign() int64 {
	return stockSigns[c]
}

// Valid reports whether c is a known code.
func (c UniqueCode) Valid() bool {
	switch c {
	case CodeItemOpening, CodePurchase, CodePurchaseReturn, CodeSale,
		CodeSaleReturn, CodeSaleOrder, CodeQuotation:
		return true
	}
	return false
}

// ReceiptCodes returns the codes that increase stock.
func ReceiptCodes() []UniqueCode {
	return codesWithSign(1)
}

// ExpenseCodes returns the codes that decrease stock.
func ExpenseCodes() []UniqueCode {
	return codesWithSign(-1)
}

func codesWithSign(sign int64) []UniqueCode {
	// fixed order keeps generated SQL stable
	all := []UniqueCode{CodeItemOpening, CodePurchase, CodeSaleReturn, CodeSale, CodePurchaseReturn}
	out := make([]UniqueCode, 0, len(all))
	for _, c := range all {
		if stockSigns[c] == sign {
			out = append(out, c)
		}
	}
	return out
}

// CodeForDocument returns the code new lines of a document must carry.
// A quotation never reserves; other documents reserve until deducted.
func CodeForDocument(docType entity.DocumentType, deducted bool) UniqueCode {
	switch {
	case docType == entity.DocumentTypeQuotation:
		return CodeQuotation
	case deducted:
		return CodeSale
	default:
		return CodeSaleOrder
	}
}

// DiscountType defines how Discount is interpreted.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Owner identifies the document a ledger row belongs to.
type Owner = entity.DocumentRef

// Transaction is one inventory line of a document.
type Transaction struct {
	ID        id.ID               `db:"id" json:"id"`
	OwnerType entity.DocumentType `db:"owner_type" json:"ownerType"`
	OwnerID   id.ID               `db:"owner_id" json:"ownerId"`
	LineNo    int                 `db:"line_no" json:"lineNo"`

	ItemID       id.ID             `db:"item_id" json:"itemId"`
	WarehouseID  id.ID             `db:"warehouse_id" json:"warehouseId"`
	Quantity     types.Quantity    `db:"quantity" json:"quantity"`
	TrackingType item.TrackingType `db:"tracking_type" json:"trackingType"`

	UnitPrice      types.Money  `db:"unit_price" json:"unitPrice"`
	DiscountType   DiscountType `db:"discount_type" json:"discountType"`
	Discount       types.Money  `db:"discount" json:"discount"`
	DiscountAmount types.Money  `db:"discount_amount" json:"discountAmount"`
	TaxRate        types.Money  `db:"tax_rate" json:"taxRate"`
	TaxAmount      types.Money  `db:"tax_amount" json:"taxAmount"`
	ChargeAmount   types.Money  `db:"charge_amount" json:"chargeAmount"`
	Total          types.Money  `db:"total" json:"total"`

	UniqueCode      UniqueCode `db:"unique_code" json:"uniqueCode"`
	TransactionDate time.Time  `db:"transaction_date" json:"transactionDate"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`

	// Sub-ledgers, stored in their own tables
	Batch   *BatchTransaction   `db:"-" json:"batch,omitempty"`
	Serials []SerialTransaction `db:"-" json:"serials,omitempty"`
}

// Owner returns the owning document reference.
func (t *Transaction) Owner() Owner {
	return Owner{Type: t.OwnerType, ID: t.OwnerID}
}

// StockKey returns the (item, warehouse) pair this line affects.
func (t *Transaction) StockKey() StockKey {
	return StockKey{ItemID: t.ItemID, WarehouseID: t.WarehouseID}
}

// SignedQuantity returns the quantity with the stock sign of its code applied.
func (t *Transaction) SignedQuantity() types.Quantity {
	return t.Quantity * types.Quantity(t.UniqueCode.StockSign())
}

// BatchTransaction records the batch a batch-tracked line was taken from.
type BatchTransaction struct {
	ID                id.ID          `db:"id" json:"id"`
	ItemTransactionID id.ID          `db:"item_transaction_id" json:"-"`
	BatchNo           string         `db:"batch_no" json:"batchNo"`
	MfgDate           *time.Time     `db:"mfg_date" json:"mfgDate,omitempty"`
	ExpDate           *time.Time     `db:"exp_date" json:"expDate,omitempty"`
	Quantity          types.Quantity `db:"quantity" json:"quantity"`
	UniqueCode        UniqueCode     `db:"unique_code" json:"uniqueCode"`
}

// SerialTransaction records one serial number of a serial-tracked line.
type SerialTransaction struct {
	ID                id.ID      `db:"id" json:"id"`
	ItemTransactionID id.ID      `db:"item_transaction_id" json:"-"`
	SerialCode        string     `db:"serial_code" json:"serialCode"`
	UniqueCode        UniqueCode `db:"unique_code" json:"uniqueCode"`
}

// LineInput is the caller-supplied description of a document line.
type LineInput struct {
	ItemID       id.ID
	WarehouseID  id.ID
	Quantity     types.Quantity
	UnitPrice    types.Money
	DiscountType DiscountType
	Discount     types.Money
	TaxRate      types.Money
	ChargeAmount types.Money

	// Batches must hold exactly one entry for batch-tracked items.
	Batches []BatchInput
	// Serials must hold one code per unit for serial-tracked items.
	Serials []string
}

// BatchInput describes the batch of a batch-tracked line.
type BatchInput struct {
	BatchNo  string
	MfgDate  *time.Time
	ExpDate  *time.Time
	Quantity types.Quantity
}

// StockKey identifies a stock row.
type StockKey struct {
	ItemID      id.ID `db:"item_id" json:"itemId"`
	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`
}

// Stock is the derived on-hand quantity of an item in a warehouse.
type Stock struct {
	ItemID      id.ID          `db:"item_id" json:"itemId"`
	WarehouseID id.ID          `db:"warehouse_id" json:"warehouseId"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updatedAt"`
}

// StockDrift is a stock row whose stored quantity differs from the ledger sum.
type StockDrift struct {
	ItemID      id.ID          `db:"item_id" json:"itemId"`
	WarehouseID id.ID          `db:"warehouse_id" json:"warehouseId"`
	Stored      types.Quantity `db:"stored" json:"stored"`
	Ledger      types.Quantity `db:"ledger" json:"ledger"`
}
