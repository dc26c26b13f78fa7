// Package customer provides the Customer catalog with credit limit settings.
package customer

import (
	"context"
	"regexp"

	"salesflow/internal/core/apperror"
	"salesflow/internal/core/entity"
	"salesflow/internal/core/types"
)

var emailRE = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Customer is a buyer on sales documents.
type Customer struct {
	entity.Catalog

	Email *string `db:"email" json:"email,omitempty"`
	Phone *string `db:"phone" json:"phone,omitempty"`

	// CreditLimit is the maximum outstanding balance (nullable)
	CreditLimit *types.Money `db:"credit_limit" json:"creditLimit,omitempty"`

	// CreditLimitEnabled turns the advisory credit check on for this customer
	CreditLimitEnabled bool `db:"is_credit_limit_enabled" json:"creditLimitEnabled"`
}

// NewCustomer creates a new Customer.
func NewCustomer(code, name string) *Customer {
	return &Customer{
		Catalog: entity.NewCatalog(code, name),
	}
}

// Validate implements entity.Validatable interface.
func (c *Customer) Validate(ctx context.Context) error {
	if err := c.Catalog.Validate(ctx); err != nil {
		return err
	}

	if c.Email != nil && *c.Email != "" && !emailRE.MatchString(*c.Email) {
		return apperror.NewValidation("invalid email format").
			WithDetail("field", "email")
	}

	if c.CreditLimit != nil && c.CreditLimit.IsNegative() {
		return apperror.NewValidation("credit limit cannot be negative").
			WithDetail("field", "creditLimit")
	}

	if c.CreditLimitEnabled && c.CreditLimit == nil {
		return apperror.NewValidation("credit limit is required when the check is enabled").
			WithDetail("field", "creditLimit")
	}

	return nil
}

// HasCreditLimit reports whether an advisory credit check applies.
func (c *Customer) HasCreditLimit() bool {
	return c.CreditLimitEnabled && c.CreditLimit != nil
}
