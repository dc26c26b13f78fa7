package customer

import (
	"context"
	"fmt"
	"time"

	"salesflow/internal/core/id"
	"salesflow/internal/core/numerator"
	"salesflow/internal/domain"
	"salesflow/pkg/logger"
)

// Service provides business logic for the Customer catalog.
type Service struct {
	repo      Repository
	numerator numerator.Generator
}

// NewService creates a new Customer service.
func NewService(repo Repository, numerator numerator.Generator) *Service {
	return &Service{repo: repo, numerator: numerator}
}

// Create validates and stores a new customer.
func (s *Service) Create(ctx context.Context, c *Customer) error {
	if err := c.Validate(ctx); err != nil {
		return err
	}

	if c.Code == "" {
		cfg := numerator.DefaultConfig("CU")
		cfg.IncludeYear = false
		code, err := s.numerator.GetNextNumber(ctx, cfg, nil, time.Now())
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		c.Code = code
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return fmt.Errorf("create customer: %w", err)
	}

	logger.Info(ctx, "customer created", "id", c.ID, "code", c.Code)
	return nil
}

// Update modifies a customer with optimistic locking.
func (s *Service) Update(ctx context.Context, c *Customer) error {
	if err := c.Validate(ctx); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return err
	}
	logger.Info(ctx, "customer updated", "id", c.ID)
	return nil
}

// GetByID retrieves a customer.
func (s *Service) GetByID(ctx context.Context, customerID id.ID) (*Customer, error) {
	return s.repo.GetByID(ctx, customerID)
}

// List returns customers page by page.
func (s *Service) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*Customer], error) {
	return s.repo.List(ctx, filter)
}
