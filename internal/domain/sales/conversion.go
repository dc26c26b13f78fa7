package sales

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"salesflow/internal/core/apperror"
	"salesflow/internal/core/entity"
	"salesflow/internal/core/id"
	"salesflow/internal/domain/registers/itemledger"
	"salesflow/pkg/logger"
)

// ConvertCommand turns a quotation or sale order into a sale.
type ConvertCommand struct {
	SourceID   id.ID
	SourceType entity.DocumentType
	// Date of the new sale; defaults to now.
	Date  time.Time
	Actor string
}

// Convert creates a pending sale from a source document. Lines are copied as
// reservations, or as sold when the source was already deducted, and
// payments move to the sale. The source keeps its status, ends with a zero
// paid amount and becomes read-only. A source converts at most once.
func (s *Service) Convert(ctx context.Context, cmd ConvertCommand) (*SaveResult, error) {
	return traced(ctx, "sales.Convert", []attribute.KeyValue{
		attribute.String("document.source_id", cmd.SourceID.String()),
		attribute.String("document.source_type", string(cmd.SourceType)),
	}, func(ctx context.Context) (*SaveResult, error) {
		return s.convert(ctx, cmd)
	})
}

func (s *Service) convert(ctx context.Context, cmd ConvertCommand) (*SaveResult, error) {
	if cmd.SourceType != entity.DocumentTypeQuotation && cmd.SourceType != entity.DocumentTypeSaleOrder {
		return nil, apperror.NewValidation("only quotations and sale orders can be converted").
			WithDetail("field", "sourceType").
			WithDetail("value", string(cmd.SourceType))
	}

	unlock, err := s.locker.Lock(ctx, lockKey(cmd.SourceID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		sale  *Document
		moved int64
	)
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		src, err := s.repo.GetForUpdate(ctx, cmd.SourceID)
		if err != nil {
			return err
		}
		if err := s.checkConvertible(ctx, src, cmd.SourceType); err != nil {
			return err
		}

		sale = newSaleFrom(src, cmd)

		// A deducted source hands its deduction to the sale so the goods
		// leave stock once.
		lineCode := itemledger.CodeSaleOrder
		if src.InventoryStatus.Deducted() {
			if _, err := s.ledger.RestoreLines(ctx, src.Ref()); err != nil {
				return fmt.Errorf("release source deduction: %w", err)
			}
			lineCode = itemledger.CodeSale
			sale.InventoryStatus = InventoryDeducted
			sale.InventoryDeductedAt = src.InventoryDeductedAt
			src.InventoryStatus = InventoryPending
			src.InventoryDeductedAt = nil
		}

		paid, err := s.payments.RecomputePaidAmount(ctx, src.Ref(), src.GrandTotal)
		if err != nil {
			return err
		}
		sale.PaidAmount = paid

		number, err := s.numerator.GetNextNumber(ctx, numeratorConfig(sale.Type), s.cfg.numeratorOptions(), sale.Date)
		if err != nil {
			return fmt.Errorf("generate number: %w", err)
		}
		sale.Number = number

		if err := s.repo.Create(ctx, sale); err != nil {
			return fmt.Errorf("create sale: %w", err)
		}

		lines, err := s.ledger.CopyLines(ctx, src.Ref(), sale.Ref(), lineCode, sale.Date)
		if err != nil {
			return err
		}
		sale.SetLines(lines)
		if !sale.GrandTotal.Equal(src.GrandTotal) {
			return apperror.NewInvariantViolation(apperror.CodeInvariantViolation, "Copied lines do not match the source total").
				WithDetail("source", src.GrandTotal.String()).
				WithDetail("sale", sale.GrandTotal.String())
		}

		n, transferred, err := s.payments.TransferPayments(ctx, src.Ref(), sale.Ref(), sale.GrandTotal)
		if err != nil {
			return err
		}
		if !transferred.Equal(sale.PaidAmount) {
			return apperror.NewInvariantViolation(apperror.CodeInvariantViolation, "Transferred payments do not match the source paid amount").
				WithDetail("expected", sale.PaidAmount.String()).
				WithDetail("transferred", transferred.String())
		}
		moved = n

		if sale.Payments, err = s.payments.List(ctx, sale.Ref()); err != nil {
			return fmt.Errorf("list payments: %w", err)
		}

		srcPaid, err := s.payments.RecomputePaidAmount(ctx, src.Ref(), src.GrandTotal)
		if err != nil {
			return err
		}
		src.PaidAmount = srcPaid
		src.UpdatedBy = cmd.Actor
		if err := s.repo.Update(ctx, src); err != nil {
			return err
		}

		return s.auditor.LogChange(ctx, AuditEntity, sale.ID, "convert", map[string]any{
			"sourceId":   src.ID.String(),
			"sourceType": string(src.Type),
			"payments":   moved,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "document converted",
		"source_id", cmd.SourceID,
		"source_type", cmd.SourceType,
		"sale_id", sale.ID,
		"number", sale.Number,
		"payments_moved", moved,
	)
	s.metrics.DocumentConverted(cmd.SourceType)
	s.notify(ctx, newEvent(EventDocumentConverted, sale, cmd.Actor))

	return &SaveResult{Document: sale, Credit: s.checkCredit(ctx, sale)}, nil
}

func (s *Service) checkConvertible(ctx context.Context, src *Document, want entity.DocumentType) error {
	if src.Type != want {
		return apperror.NewValidation("source document type mismatch").
			WithDetail("expected", string(want)).
			WithDetail("actual", string(src.Type))
	}
	if err := src.CanModify(); err != nil {
		return err
	}
	if src.Status.IsTerminal() {
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, "Cannot convert a cancelled or returned document").
			WithDetail("document_id", src.ID.String()).
			WithDetail("status", string(src.Status))
	}

	return s.checkNotConverted(ctx, src)
}

func newSaleFrom(src *Document, cmd ConvertCommand) *Document {
	sale := NewDocument(entity.DocumentTypeSale, src.CustomerID)
	if !cmd.Date.IsZero() {
		sale.Date = cmd.Date
	}
	sale.CarrierID = src.CarrierID
	sale.CurrencyCode = src.CurrencyCode
	sale.ExchangeRate = src.ExchangeRate
	sale.OtherCharges = src.OtherCharges
	sale.RoundOff = src.RoundOff
	sale.GrandTotal = src.GrandTotal
	sale.Comment = src.Comment
	sale.CreatedBy = cmd.Actor
	sale.UpdatedBy = cmd.Actor

	sourceID, sourceType := src.ID, src.Type
	sale.SourceID = &sourceID
	sale.SourceType = &sourceType
	return sale
}
