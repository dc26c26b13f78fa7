package credit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesflow/internal/core/apperror"
	"salesflow/internal/core/features"
	"salesflow/internal/core/id"
	"salesflow/internal/core/types"
	"salesflow/internal/domain/catalogs/customer"
)

type fakeCustomers map[id.ID]*customer.Customer

func (f fakeCustomers) GetByID(ctx context.Context, customerID id.ID) (*customer.Customer, error) {
	if c, ok := f[customerID]; ok {
		return c, nil
	}
	return nil, apperror.NewNotFound("customer", customerID)
}

type fakeBalances struct {
	amount types.Money
	err    error
}

func (f fakeBalances) OutstandingBalance(ctx context.Context, customerID id.ID) (types.Money, error) {
	return f.amount, f.err
}

func newCustomer(limit string, enabled bool) *customer.Customer {
	c := customer.NewCustomer("CU-1", "Acme")
	if limit != "" {
		l := types.MustMoney(limit)
		c.CreditLimit = &l
	}
	c.CreditLimitEnabled = enabled
	return c
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name        string
		customer    *customer.Customer
		flag        bool
		outstanding string
		configured  bool
		exceeded    bool
	}{
		{"within limit", newCustomer("1000", true), true, "800", true, false},
		{"equal to limit", newCustomer("1000", true), true, "1000", true, false},
		{"over limit", newCustomer("1000", true), true, "1000.01", true, true},
		{"limit disabled on customer", newCustomer("1000", false), true, "5000", false, false},
		{"no limit", newCustomer("", false), true, "5000", false, false},
		{"feature off", newCustomer("1000", true), false, "5000", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := features.NewInMemoryFlags().SetFlag(features.FlagCreditLimitCheck, tt.flag)
			svc := NewService(
				fakeCustomers{tt.customer.ID: tt.customer},
				fakeBalances{amount: types.MustMoney(tt.outstanding)},
				flags,
			)

			res, err := svc.Check(context.Background(), tt.customer.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.configured, res.LimitConfigured)
			assert.Equal(t, tt.exceeded, res.Exceeded)
			assert.True(t, types.MustMoney(tt.outstanding).Equal(res.Outstanding))
		})
	}
}

func TestCheck_Errors(t *testing.T) {
	flags := features.NewInMemoryFlags().SetFlag(features.FlagCreditLimitCheck, true)
	c := newCustomer("100", true)

	t.Run("unknown customer", func(t *testing.T) {
		svc := NewService(fakeCustomers{}, fakeBalances{amount: types.Zero()}, flags)
		_, err := svc.Check(context.Background(), id.New())
		assert.True(t, apperror.IsNotFound(err))
	})

	t.Run("balance failure", func(t *testing.T) {
		boom := errors.New("boom")
		svc := NewService(fakeCustomers{c.ID: c}, fakeBalances{err: boom}, flags)
		_, err := svc.Check(context.Background(), c.ID)
		assert.ErrorIs(t, err, boom)
	})
}
