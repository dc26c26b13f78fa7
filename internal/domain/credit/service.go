// Package credit evaluates customer credit limits against outstanding sales.
// The check is advisory: it never blocks a sale.
package credit

import (
	"context"
	"fmt"

	"salesflow/internal/core/features"
	"salesflow/internal/core/id"
	"salesflow/internal/core/types"
	"salesflow/internal/domain/catalogs/customer"
	"salesflow/pkg/logger"
)

// Result is the outcome of a credit check.
type Result struct {
	CustomerID      id.ID       `json:"customerId"`
	LimitConfigured bool        `json:"limitConfigured"`
	Limit           types.Money `json:"limit"`
	Outstanding     types.Money `json:"outstanding"`
	Exceeded        bool        `json:"exceeded"`
}

// CustomerReader loads customers.
type CustomerReader interface {
	GetByID(ctx context.Context, customerID id.ID) (*customer.Customer, error)
}

// BalanceReader sums what a customer still owes.
type BalanceReader interface {
	OutstandingBalance(ctx context.Context, customerID id.ID) (types.Money, error)
}

// Service runs credit checks.
type Service struct {
	customers CustomerReader
	balances  BalanceReader
	flags     features.Provider
}

// NewService creates a credit check service.
func NewService(customers CustomerReader, balances BalanceReader, flags features.Provider) *Service {
	return &Service{customers: customers, balances: balances, flags: flags}
}

// Check compares the customer's outstanding balance with its limit.
// Without an enabled limit the result has LimitConfigured=false and the
// balance is still reported.
func (s *Service) Check(ctx context.Context, customerID id.ID) (*Result, error) {
	res := &Result{
		CustomerID:  customerID,
		Limit:       types.Zero(),
		Outstanding: types.Zero(),
	}

	cust, err := s.customers.GetByID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}

	outstanding, err := s.balances.OutstandingBalance(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("outstanding balance: %w", err)
	}
	res.Outstanding = outstanding

	if !s.flags.IsEnabled(ctx, features.FlagCreditLimitCheck) || !cust.HasCreditLimit() {
		return res, nil
	}

	res.LimitConfigured = true
	res.Limit = *cust.CreditLimit
	res.Exceeded = outstanding.GreaterThan(res.Limit)

	if res.Exceeded {
		logger.Warn(ctx, "credit limit exceeded",
			"customer_id", customerID,
			"limit", res.Limit.String(),
			"outstanding", outstanding.String(),
		)
	}
	return res, nil
}
