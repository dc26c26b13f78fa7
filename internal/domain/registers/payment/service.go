package payment

import (
	"context"
	"fmt"
	"time"

	"salesflow/internal/core/apperror"
	"salesflow/internal/core/id"
	"salesflow/internal/core/types"
	"salesflow/pkg/logger"
)

// Service records payments and derives paid amounts from them.
// Transactions are managed by the caller.
type Service struct {
	repo Repository
}

// NewService creates a new payment register service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Build validates inputs and turns them into rows for owner.
// Zero-amount inputs are dropped.
func (s *Service) Build(owner Owner, inputs []Input) ([]Transaction, error) {
	now := time.Now().UTC()
	rows := make([]Transaction, 0, len(inputs))
	for i, in := range inputs {
		if in.Amount.IsNegative() {
			return nil, apperror.NewValidation("payment amount cannot be negative").
				WithDetail("field", "payments").
				WithDetail("lineNo", i+1)
		}
		if in.Amount.IsZero() {
			continue
		}
		if in.PaymentTypeID == nil || id.IsNil(*in.PaymentTypeID) {
			return nil, apperror.NewMissingPaymentType().WithDetail("lineNo", i+1)
		}

		date := in.Date
		if date.IsZero() {
			date = now
		}

		rows = append(rows, Transaction{
			ID:              id.New(),
			OwnerType:       owner.Type,
			OwnerID:         owner.ID,
			Amount:          types.RoundMoney(in.Amount),
			PaymentTypeID:   in.PaymentTypeID,
			TransactionDate: date,
			ReferenceNo:     in.ReferenceNo,
			Note:            in.Note,
			CreatedAt:       now,
		})
	}
	return rows, nil
}

// RecordPayment stores one payment against owner.
func (s *Service) RecordPayment(ctx context.Context, owner Owner, in Input) (*Transaction, error) {
	rows, err := s.Build(owner, []Input{in})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperror.NewValidation("payment amount must be greater than zero").
			WithDetail("field", "amount")
	}
	if err := s.repo.Insert(ctx, rows); err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	logger.Info(ctx, "payment recorded",
		"owner", owner.String(),
		"amount", rows[0].Amount.String(),
	)
	return &rows[0], nil
}

// ReplacePayments deletes every payment of owner and records inputs instead.
func (s *Service) ReplacePayments(ctx context.Context, owner Owner, inputs []Input) ([]Transaction, error) {
	rows, err := s.Build(owner, inputs)
	if err != nil {
		return nil, err
	}
	if err := s.ReplaceRows(ctx, owner, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ReplaceRows deletes every payment of owner and inserts prebuilt rows.
func (s *Service) ReplaceRows(ctx context.Context, owner Owner, rows []Transaction) error {
	if _, err := s.repo.DeleteByOwner(ctx, owner); err != nil {
		return fmt.Errorf("delete payments: %w", err)
	}
	return s.SavePayments(ctx, rows)
}

// SavePayments inserts prebuilt rows.
func (s *Service) SavePayments(ctx context.Context, rows []Transaction) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.repo.Insert(ctx, rows); err != nil {
		return fmt.Errorf("insert payments: %w", err)
	}
	return nil
}

// RecomputePaidAmount sums the payments of owner and checks the result
// against grandTotal. The caller stores the returned value on the document;
// an error must roll the enclosing transaction back.
func (s *Service) RecomputePaidAmount(ctx context.Context, owner Owner, grandTotal types.Money) (types.Money, error) {
	paid, err := s.repo.SumByOwner(ctx, owner)
	if err != nil {
		return types.Zero(), fmt.Errorf("sum payments: %w", err)
	}
	if err := CheckPaid(paid, grandTotal); err != nil {
		return types.Zero(), err
	}
	return paid, nil
}

// CheckPaid enforces 0 <= paid <= grandTotal.
func CheckPaid(paid, grandTotal types.Money) error {
	if paid.IsNegative() {
		return apperror.NewInvariantViolation(apperror.CodePaidAmountNegative, "Paid amount cannot be negative").
			WithDetail("paid", paid.String())
	}
	if paid.GreaterThan(grandTotal) {
		return apperror.NewInvariantViolation(apperror.CodePaidExceedsTotal, "Paid amount exceeds grand total").
			WithDetail("paid", paid.String()).
			WithDetail("grandTotal", grandTotal.String())
	}
	return nil
}

// TransferPayments re-parents every payment of source onto target.
// Returns the number of rows moved and the new paid amount of target;
// the source's paid amount is zero afterwards.
func (s *Service) TransferPayments(ctx context.Context, source, target Owner, targetGrandTotal types.Money) (int64, types.Money, error) {
	moved, err := s.repo.Reparent(ctx, source, target)
	if err != nil {
		return 0, types.Zero(), fmt.Errorf("reparent payments: %w", err)
	}

	paid, err := s.RecomputePaidAmount(ctx, target, targetGrandTotal)
	if err != nil {
		return 0, types.Zero(), err
	}

	logger.Info(ctx, "payments transferred",
		"source", source.String(),
		"target", target.String(),
		"count", moved,
		"paid", paid.String(),
	)
	return moved, paid, nil
}

// List returns the payments of owner.
func (s *Service) List(ctx context.Context, owner Owner) ([]Transaction, error) {
	return s.repo.ListByOwner(ctx, owner)
}

// Sum returns the total amount of rows.
func Sum(rows []Transaction) types.Money {
	total := types.Zero()
	for _, r := range rows {
		total = total.Add(r.Amount)
	}
	return total
}
