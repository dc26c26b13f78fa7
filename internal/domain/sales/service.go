package sales

import (
	"context"
	"fmt"
	"strings"
	"time"

	"salesflow/internal/core/apperror"
	"salesflow/internal/core/entity"
	"salesflow/internal/core/id"
	"salesflow/internal/core/numerator"
	"salesflow/internal/core/tx"
	"salesflow/internal/core/types"
	"salesflow/internal/domain"
	"salesflow/internal/domain/credit"
	"salesflow/internal/domain/registers/itemledger"
	"salesflow/internal/domain/registers/payment"
	"salesflow/pkg/logger"
)

// Header carries the editable header fields of a document.
type Header struct {
	Date         time.Time
	CustomerID   id.ID
	CarrierID    *id.ID
	CurrencyCode string
	ExchangeRate types.Money
	OtherCharges types.Money
	RoundOff     types.Money
	Comment      string
}

func (h Header) apply(d *Document) {
	if !h.Date.IsZero() {
		d.Date = h.Date
	}
	d.CustomerID = h.CustomerID
	d.CarrierID = h.CarrierID
	if h.CurrencyCode != "" {
		d.CurrencyCode = strings.ToUpper(h.CurrencyCode)
	}
	if !h.ExchangeRate.IsZero() {
		d.ExchangeRate = h.ExchangeRate
	}
	d.OtherCharges = types.RoundMoney(h.OtherCharges)
	d.RoundOff = types.RoundMoney(h.RoundOff)
	d.Comment = h.Comment
}

// CreateCommand creates a document with its lines and payments.
type CreateCommand struct {
	Type entity.DocumentType
	Header
	// InventoryDeducted enters a sale whose goods already left the warehouse.
	InventoryDeducted bool
	Lines             []itemledger.LineInput
	Payments          []payment.Input
	Actor             string
}

// UpdateCommand replaces the header, lines and payments of a document.
type UpdateCommand struct {
	DocumentID id.ID
	// Version is the version the caller read; 0 skips the check.
	Version int
	Header
	Lines    []itemledger.LineInput
	Payments []payment.Input
	Actor    string
}

// SaveResult is returned by create, update and convert.
type SaveResult struct {
	Document *Document     `json:"document"`
	Credit   *credit.Result `json:"credit,omitempty"`
}

// Service implements the sales document lifecycle.
type Service struct {
	repo      Repository
	ledger    *itemledger.Service
	payments  *payment.Service
	numerator numerator.Generator
	txm       tx.Manager
	cfg       Config

	notifier Notifier
	files    FileStore
	locker   DocumentLocker
	auditor  Auditor
	credit   CreditChecker
	metrics  Metrics
}

// NewService creates the sales service.
func NewService(
	repo Repository,
	ledger *itemledger.Service,
	payments *payment.Service,
	numerator numerator.Generator,
	txm tx.Manager,
	cfg Config,
	opts ...Option,
) *Service {
	s := &Service{
		repo:      repo,
		ledger:    ledger,
		payments:  payments,
		numerator: numerator,
		txm:       txm,
		cfg:       cfg,
		notifier:  nopNotifier{},
		locker:    nopLocker{},
		auditor:   nopAuditor{},
		metrics:   nopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDocument validates and stores a new document in one transaction.
func (s *Service) CreateDocument(ctx context.Context, cmd CreateCommand) (*SaveResult, error) {
	doc := NewDocument(cmd.Type, cmd.CustomerID)
	cmd.Header.apply(doc)
	if cmd.InventoryDeducted {
		doc.InventoryStatus = InventoryDeducted
		deductedAt := doc.CreatedAt
		doc.InventoryDeductedAt = &deductedAt
	}
	doc.CreatedBy = cmd.Actor
	doc.UpdatedBy = cmd.Actor

	if err := doc.Validate(ctx); err != nil {
		return nil, err
	}
	if err := s.buildTableParts(ctx, doc, cmd.Lines, cmd.Payments); err != nil {
		return nil, err
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		number, err := s.numerator.GetNextNumber(ctx, numeratorConfig(doc.Type), s.cfg.numeratorOptions(), doc.Date)
		if err != nil {
			return fmt.Errorf("generate number: %w", err)
		}
		doc.Number = number

		if err := s.repo.Create(ctx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		if err := s.ledger.SaveLines(ctx, doc.Lines); err != nil {
			return err
		}
		if err := s.payments.SavePayments(ctx, doc.Payments); err != nil {
			return err
		}
		if err := s.verifyPaid(ctx, doc); err != nil {
			return err
		}

		return s.auditor.LogChange(ctx, AuditEntity, doc.ID, "create", auditState(doc))
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "document created",
		"id", doc.ID,
		"type", doc.Type,
		"number", doc.Number,
		"grand_total", doc.GrandTotal.String(),
	)
	s.metrics.DocumentCreated(doc.Type)
	s.notify(ctx, newEvent(EventDocumentCreated, doc, cmd.Actor))

	return &SaveResult{Document: doc, Credit: s.checkCredit(ctx, doc)}, nil
}

// UpdateDocument replaces the header and table parts of an existing document.
// Lines keep the inventory state of the document: a deducted sale stays deducted.
func (s *Service) UpdateDocument(ctx context.Context, cmd UpdateCommand) (*SaveResult, error) {
	unlock, err := s.locker.Lock(ctx, lockKey(cmd.DocumentID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var doc *Document
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetForUpdate(ctx, cmd.DocumentID)
		if err != nil {
			return err
		}
		if err := s.checkEditable(ctx, current, cmd.Version); err != nil {
			return err
		}

		before := auditState(current)
		next := *current
		cmd.Header.apply(&next)
		next.UpdatedBy = cmd.Actor

		if err := next.Validate(ctx); err != nil {
			return err
		}
		if err := s.buildTableParts(ctx, &next, cmd.Lines, cmd.Payments); err != nil {
			return err
		}

		if err := s.ledger.ReplaceLines(ctx, next.Ref(), next.Lines); err != nil {
			return err
		}
		if err := s.payments.ReplaceRows(ctx, next.Ref(), next.Payments); err != nil {
			return err
		}
		if err := s.verifyPaid(ctx, &next); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, &next); err != nil {
			return err
		}

		if changes := changedFields(before, auditState(&next)); len(changes) > 0 {
			if err := s.auditor.LogChange(ctx, AuditEntity, next.ID, "update", changes); err != nil {
				return err
			}
		}
		doc = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "document updated",
		"id", doc.ID,
		"number", doc.Number,
		"version", doc.Version,
	)
	s.notify(ctx, newEvent(EventDocumentUpdated, doc, cmd.Actor))

	return &SaveResult{Document: doc, Credit: s.checkCredit(ctx, doc)}, nil
}

func (s *Service) checkEditable(ctx context.Context, doc *Document, version int) error {
	if err := doc.CanModify(); err != nil {
		return err
	}
	if version > 0 && version != doc.Version {
		return apperror.NewConcurrentModification("document", doc.ID)
	}
	if doc.Status.IsTerminal() {
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, "Cannot modify a cancelled or returned document").
			WithDetail("document_id", doc.ID.String()).
			WithDetail("status", string(doc.Status))
	}
	return s.checkNotConverted(ctx, doc)
}

// checkNotConverted rejects a quotation or sale order that already produced
// a sale. A converted source is read-only: its lines and payments belong to
// the sale.
func (s *Service) checkNotConverted(ctx context.Context, doc *Document) error {
	if doc.Type == entity.DocumentTypeSale {
		return nil
	}

	sale, err := s.repo.FindConvertedSale(ctx, doc.ID)
	switch {
	case err == nil:
		return apperror.NewAlreadyConverted(doc.ID.String(), sale.ID.String())
	case apperror.IsNotFound(err):
		return nil
	default:
		return err
	}
}

// buildTableParts validates line and payment inputs, attaches them to doc
// and checks the document invariants. Nothing is written.
func (s *Service) buildTableParts(ctx context.Context, doc *Document, lineInputs []itemledger.LineInput, paymentInputs []payment.Input) error {
	code := itemledger.CodeForDocument(doc.Type, doc.InventoryStatus.Deducted())
	lines, err := s.ledger.BuildLines(ctx, doc.Ref(), code, doc.Date, lineInputs)
	if err != nil {
		return err
	}
	doc.SetLines(lines)

	rows, err := s.payments.Build(doc.Ref(), paymentInputs)
	if err != nil {
		return err
	}
	doc.Payments = rows
	doc.PaidAmount = payment.Sum(rows)

	return doc.ValidateInvariants()
}

// verifyPaid recomputes paid_amount from stored payments; it must match the header.
func (s *Service) verifyPaid(ctx context.Context, doc *Document) error {
	paid, err := s.payments.RecomputePaidAmount(ctx, doc.Ref(), doc.GrandTotal)
	if err != nil {
		return err
	}
	if !paid.Equal(doc.PaidAmount) {
		return apperror.NewInvariantViolation(apperror.CodeInvariantViolation, "Paid amount does not match payments").
			WithDetail("paid", doc.PaidAmount.String()).
			WithDetail("payments", paid.String())
	}
	return nil
}

// GetDocument loads a document with its lines and payments.
func (s *Service) GetDocument(ctx context.Context, docID id.ID) (*Document, error) {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}

	lines, err := s.ledger.GetLines(ctx, doc.Ref())
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	payments, err := s.payments.List(ctx, doc.Ref())
	if err != nil {
		return nil, fmt.Errorf("get payments: %w", err)
	}

	doc.Lines = lines
	doc.Payments = payments
	return doc, nil
}

// ListDocuments returns document headers.
func (s *Service) ListDocuments(ctx context.Context, filter ListFilter) (domain.ListResult[*Document], error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

// GetStatusHistory returns the transitions of a document, oldest first.
func (s *Service) GetStatusHistory(ctx context.Context, docID id.ID) ([]StatusHistory, error) {
	if _, err := s.repo.GetByID(ctx, docID); err != nil {
		return nil, err
	}
	return s.repo.ListHistory(ctx, docID)
}

// CreditCheck runs the advisory credit check for a customer.
func (s *Service) CreditCheck(ctx context.Context, customerID id.ID) (*credit.Result, error) {
	if s.credit == nil {
		return nil, apperror.NewBusinessRule(apperror.CodeBusinessRule, "Credit check is not configured")
	}
	return s.credit.Check(ctx, customerID)
}

func (s *Service) checkCredit(ctx context.Context, doc *Document) *credit.Result {
	if s.credit == nil || doc.Type != entity.DocumentTypeSale {
		return nil
	}

	res, err := s.credit.Check(ctx, doc.CustomerID)
	if err != nil {
		logger.Warn(ctx, "credit check failed", "customer_id", doc.CustomerID, "error", err)
		return nil
	}
	if res != nil && res.Exceeded {
		s.metrics.CreditLimitExceeded()
	}
	return res
}

func (s *Service) notify(ctx context.Context, ev Event) {
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.metrics.NotificationFailed(ev.Type)
		logger.Warn(ctx, "notification failed",
			"event", ev.Type,
			"document_id", ev.DocumentID,
			"error", err,
		)
	}
}

func newEvent(eventType string, doc *Document, actor string) Event {
	return Event{
		Type:         eventType,
		DocumentID:   doc.ID,
		DocumentType: doc.Type,
		Number:       doc.Number,
		CustomerID:   doc.CustomerID,
		Status:       doc.Status,
		SourceID:     doc.SourceID,
		Actor:        actor,
		OccurredAt:   time.Now().UTC(),
	}
}

func lockKey(docID id.ID) string {
	return "sales:document:" + docID.String()
}

// AuditEntity is the entity type of sales documents in the audit trail.
const AuditEntity = "sales_document"

func auditState(d *Document) map[string]any {
	carrier := ""
	if d.CarrierID != nil {
		carrier = d.CarrierID.String()
	}
	return map[string]any{
		"date":         d.Date.Format(time.DateOnly),
		"customerId":   d.CustomerID.String(),
		"carrierId":    carrier,
		"currencyCode": d.CurrencyCode,
		"exchangeRate": d.ExchangeRate.String(),
		"otherCharges": d.OtherCharges.String(),
		"roundOff":     d.RoundOff.String(),
		"grandTotal":   d.GrandTotal.String(),
		"paidAmount":   d.PaidAmount.String(),
		"comment":      d.Comment,
	}
}

// changedFields returns {field: {old, new}} for differing keys.
func changedFields(before, after map[string]any) map[string]any {
	changes := make(map[string]any)
	for k, nv := range after {
		if ov := before[k]; ov != nv {
			changes[k] = map[string]any{"old": ov, "new": nv}
		}
	}
	return changes
}
