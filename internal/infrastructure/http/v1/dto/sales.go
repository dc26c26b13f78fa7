package dto

import (
	"time"

	"salesflow/internal/core/entity"
	"salesflow/internal/core/id"
	"salesflow/internal/core/types"
	"salesflow/internal/domain"
	"salesflow/internal/domain/registers/itemledger"
	"salesflow/internal/domain/registers/payment"
	"salesflow/internal/domain/sales"
)

// BatchRequest is one batch allocation of a line.
type BatchRequest struct {
	BatchNo  string         `json:"batchNo" binding:"required,max=100"`
	MfgDate  *time.Time     `json:"mfgDate"`
	ExpDate  *time.Time     `json:"expDate"`
	Quantity types.Quantity `json:"quantity"`
}

// LineRequest is one item line of a document.
type LineRequest struct {
	ItemID       id.ID                   `json:"itemId" binding:"required"`
	WarehouseID  id.ID                   `json:"warehouseId" binding:"required"`
	Quantity     types.Quantity          `json:"quantity"`
	UnitPrice    types.Money             `json:"unitPrice"`
	DiscountType itemledger.DiscountType `json:"discountType" binding:"omitempty,oneof=percentage fixed"`
	Discount     types.Money             `json:"discount"`
	TaxRate      types.Money             `json:"taxRate"`
	ChargeAmount types.Money             `json:"chargeAmount"`
	Batches      []BatchRequest          `json:"batches" binding:"dive"`
	Serials      []string                `json:"serials" binding:"dive,required,max=100"`
}

func (r LineRequest) toInput() itemledger.LineInput {
	in := itemledger.LineInput{
		ItemID:       r.ItemID,
		WarehouseID:  r.WarehouseID,
		Quantity:     r.Quantity,
		UnitPrice:    r.UnitPrice,
		DiscountType: r.DiscountType,
		Discount:     r.Discount,
		TaxRate:      r.TaxRate,
		ChargeAmount: r.ChargeAmount,
		Serials:      r.Serials,
	}
	for _, b := range r.Batches {
		in.Batches = append(in.Batches, itemledger.BatchInput{
			BatchNo:  b.BatchNo,
			MfgDate:  b.MfgDate,
			ExpDate:  b.ExpDate,
			Quantity: b.Quantity,
		})
	}
	return in
}

// PaymentRequest is one payment row.
type PaymentRequest struct {
	Amount        types.Money `json:"amount"`
	PaymentTypeID *id.ID      `json:"paymentTypeId"`
	Date          *time.Time  `json:"date"`
	ReferenceNo   string      `json:"referenceNo" binding:"max=100"`
	Note          string      `json:"note" binding:"max=500"`
}

func (r PaymentRequest) toInput() payment.Input {
	in := payment.Input{
		Amount:        r.Amount,
		PaymentTypeID: r.PaymentTypeID,
		ReferenceNo:   r.ReferenceNo,
		Note:          r.Note,
	}
	if r.Date != nil {
		in.Date = *r.Date
	}
	return in
}

// HeaderRequest carries the editable header fields.
type HeaderRequest struct {
	Date         *time.Time  `json:"date"`
	CustomerID   id.ID       `json:"customerId" binding:"required"`
	CarrierID    *id.ID      `json:"carrierId"`
	CurrencyCode string      `json:"currencyCode" binding:"omitempty,len=3"`
	ExchangeRate types.Money `json:"exchangeRate"`
	OtherCharges types.Money `json:"otherCharges"`
	RoundOff     types.Money `json:"roundOff"`
	Comment      string      `json:"comment" binding:"max=2000"`
}

func (r HeaderRequest) toHeader() sales.Header {
	h := sales.Header{
		CustomerID:   r.CustomerID,
		CarrierID:    r.CarrierID,
		CurrencyCode: r.CurrencyCode,
		ExchangeRate: r.ExchangeRate,
		OtherCharges: r.OtherCharges,
		RoundOff:     r.RoundOff,
		Comment:      r.Comment,
	}
	if r.Date != nil {
		h.Date = *r.Date
	}
	return h
}

// CreateDocumentRequest creates a quotation, sale order or sale.
type CreateDocumentRequest struct {
	HeaderRequest
	Type              entity.DocumentType `json:"type" binding:"required,oneof=quotation sale_order sale"`
	InventoryDeducted bool                `json:"inventoryDeducted"`
	Lines             []LineRequest       `json:"lines" binding:"dive"`
	Payments          []PaymentRequest    `json:"payments" binding:"dive"`
}

// ToCommand converts the request for the sales service.
func (r CreateDocumentRequest) ToCommand(actor string) sales.CreateCommand {
	return sales.CreateCommand{
		Type:              r.Type,
		Header:            r.toHeader(),
		InventoryDeducted: r.InventoryDeducted,
		Lines:             lineInputs(r.Lines),
		Payments:          paymentInputs(r.Payments),
		Actor:             actor,
	}
}

// UpdateDocumentRequest replaces header, lines and payments.
type UpdateDocumentRequest struct {
	HeaderRequest
	Version  int              `json:"version" binding:"min=0"`
	Lines    []LineRequest    `json:"lines" binding:"dive"`
	Payments []PaymentRequest `json:"payments" binding:"dive"`
}

// ToCommand converts the request for the sales service.
func (r UpdateDocumentRequest) ToCommand(docID id.ID, actor string) sales.UpdateCommand {
	return sales.UpdateCommand{
		DocumentID: docID,
		Version:    r.Version,
		Header:     r.toHeader(),
		Lines:      lineInputs(r.Lines),
		Payments:   paymentInputs(r.Payments),
		Actor:      actor,
	}
}

// UpdateStatusRequest is the form of a status change. The proof image, if
// any, arrives as the multipart file "proof".
type UpdateStatusRequest struct {
	Status sales.Status `form:"status" json:"status" binding:"required,oneof=Pending Processing Completed Delivery POD Cancelled Returned"`
	Notes  string       `form:"notes" json:"notes" binding:"max=2000"`
}

// ConvertRequest turns a quotation or sale order into a sale.
type ConvertRequest struct {
	Date *time.Time `json:"date"`
}

// ToCommand converts the request for the sales service.
func (r ConvertRequest) ToCommand(sourceID id.ID, sourceType entity.DocumentType, actor string) sales.ConvertCommand {
	cmd := sales.ConvertCommand{SourceID: sourceID, SourceType: sourceType, Actor: actor}
	if r.Date != nil {
		cmd.Date = *r.Date
	}
	return cmd
}

// DocumentListQuery filters document listings.
type DocumentListQuery struct {
	ListQuery
	Type       string     `form:"type" binding:"omitempty,oneof=quotation sale_order sale"`
	CustomerID string     `form:"customerId" binding:"omitempty,uuid"`
	Status     string     `form:"status" binding:"omitempty,oneof=Pending Processing Completed Delivery POD Cancelled Returned"`
	FromDate   *time.Time `form:"fromDate" time_format:"2006-01-02"`
	ToDate     *time.Time `form:"toDate" time_format:"2006-01-02"`
}

// ToFilter converts the query to a sales filter.
func (q DocumentListQuery) ToFilter() sales.ListFilter {
	f := sales.ListFilter{ListFilter: q.ListQuery.ToFilter(), FromDate: q.FromDate, ToDate: q.ToDate}
	if q.Type != "" {
		t := entity.DocumentType(q.Type)
		f.Type = &t
	}
	if q.CustomerID != "" {
		cid := id.MustParse(q.CustomerID)
		f.CustomerID = &cid
	}
	if q.Status != "" {
		s := sales.Status(q.Status)
		f.Status = &s
	}
	return f
}

// DocumentSummary is a list row.
type DocumentSummary struct {
	ID              string                `json:"id"`
	Type            entity.DocumentType   `json:"type"`
	Number          string                `json:"number"`
	Date            time.Time             `json:"date"`
	CustomerID      string                `json:"customerId"`
	GrandTotal      types.Money           `json:"grandTotal"`
	PaidAmount      types.Money           `json:"paidAmount"`
	BalanceDue      types.Money           `json:"balanceDue"`
	Status          sales.Status          `json:"status"`
	InventoryStatus sales.InventoryStatus `json:"inventoryStatus"`
	Version         int                   `json:"version"`
}

// FromDocument builds a list row.
func FromDocument(d *sales.Document) DocumentSummary {
	return DocumentSummary{
		ID:              d.ID.String(),
		Type:            d.Type,
		Number:          d.Number,
		Date:            d.Date,
		CustomerID:      d.CustomerID.String(),
		GrandTotal:      d.GrandTotal,
		PaidAmount:      d.PaidAmount,
		BalanceDue:      d.BalanceDue(),
		Status:          d.Status,
		InventoryStatus: d.InventoryStatus,
		Version:         d.Version,
	}
}

// DocumentList converts a page of documents.
func DocumentList(r domain.ListResult[*sales.Document]) ListResponse[DocumentSummary] {
	return FromListResult(r, FromDocument)
}

func lineInputs(reqs []LineRequest) []itemledger.LineInput {
	out := make([]itemledger.LineInput, len(reqs))
	for i, r := range reqs {
		out[i] = r.toInput()
	}
	return out
}

func paymentInputs(reqs []PaymentRequest) []payment.Input {
	out := make([]payment.Input, len(reqs))
	for i, r := range reqs {
		out[i] = r.toInput()
	}
	return out
}
