package item

import (
	"context"
	"fmt"
	"time"

	"salesflow/internal/core/apperror"
	"salesflow/internal/core/id"
	"salesflow/internal/core/numerator"
	"salesflow/internal/core/tx"
	"salesflow/internal/domain"
	"salesflow/pkg/logger"
)

// Service provides business logic for the Item catalog.
type Service struct {
	repo      Repository
	numerator numerator.Generator
	txm       tx.Manager
}

// NewService creates a new Item service.
func NewService(repo Repository, numerator numerator.Generator, txm tx.Manager) *Service {
	return &Service{repo: repo, numerator: numerator, txm: txm}
}

// Create validates and stores a new item, generating its code when empty.
func (s *Service) Create(ctx context.Context, it *Item) error {
	if err := it.Validate(ctx); err != nil {
		return err
	}

	return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if it.Code == "" {
			cfg := numerator.DefaultConfig("IT")
			cfg.IncludeYear = false
			code, err := s.numerator.GetNextNumber(ctx, cfg, nil, time.Now())
			if err != nil {
				return fmt.Errorf("generate code: %w", err)
			}
			it.Code = code
		} else if err := s.ensureCodeFree(ctx, it.Code); err != nil {
			return err
		}

		if err := s.repo.Create(ctx, it); err != nil {
			return fmt.Errorf("create item: %w", err)
		}

		logger.Info(ctx, "item created", "id", it.ID, "code", it.Code)
		return nil
	})
}

func (s *Service) ensureCodeFree(ctx context.Context, code string) error {
	_, err := s.repo.GetByCode(ctx, code)
	switch {
	case err == nil:
		return apperror.NewDuplicate("item", "code", code)
	case apperror.IsNotFound(err):
		return nil
	default:
		return err
	}
}

// Update modifies an item with optimistic locking.
func (s *Service) Update(ctx context.Context, it *Item) error {
	if err := it.Validate(ctx); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, it); err != nil {
		return err
	}
	logger.Info(ctx, "item updated", "id", it.ID)
	return nil
}

// GetByID retrieves an item.
func (s *Service) GetByID(ctx context.Context, itemID id.ID) (*Item, error) {
	return s.repo.GetByID(ctx, itemID)
}

// GetByIDs retrieves several items keyed by ID.
// An unknown ID is reported as not found.
func (s *Service) GetByIDs(ctx context.Context, ids []id.ID) (map[id.ID]*Item, error) {
	items, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, itemID := range ids {
		if _, ok := items[itemID]; !ok {
			return nil, apperror.NewNotFound("item", itemID.String())
		}
	}
	return items, nil
}

// List returns items page by page.
func (s *Service) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*Item], error) {
	return s.repo.List(ctx, filter)
}
