package sales

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"salesflow/internal/core/apperror"
	"salesflow/internal/core/id"
	"salesflow/pkg/logger"
)

// StatusCommand asks for a status change of a sale order or sale.
type StatusCommand struct {
	DocumentID id.ID
	Status     Status
	Notes      string
	Proof      *ProofImage
	Actor      string
}

// StatusResult reports the outcome of UpdateStatus.
type StatusResult struct {
	Success          bool            `json:"success"`
	Message          string          `json:"message"`
	InventoryUpdated bool            `json:"inventoryUpdated"`
	Status           Status          `json:"status"`
	InventoryStatus  InventoryStatus `json:"inventoryStatus"`
}

// UpdateStatus moves a document along its lifecycle and applies the
// inventory effect of the move. Status, ledger and history are written in
// one transaction; notifications follow the commit.
func (s *Service) UpdateStatus(ctx context.Context, cmd StatusCommand) (*StatusResult, error) {
	return traced(ctx, "sales.UpdateStatus", []attribute.KeyValue{
		attribute.String("document.id", cmd.DocumentID.String()),
		attribute.String("status.target", string(cmd.Status)),
	}, func(ctx context.Context) (*StatusResult, error) {
		return s.updateStatus(ctx, cmd)
	})
}

func (s *Service) updateStatus(ctx context.Context, cmd StatusCommand) (*StatusResult, error) {
	notes := strings.TrimSpace(cmd.Notes)
	if s.cfg.RequiresProof(cmd.Status) && notes == "" {
		return nil, apperror.NewMissingProof(string(cmd.Status))
	}
	if cmd.Proof != nil && s.files == nil {
		return nil, apperror.NewValidation("proof upload is not configured").
			WithDetail("field", "proofImage")
	}

	unlock, err := s.locker.Lock(ctx, lockKey(cmd.DocumentID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Reject bad requests before anything is uploaded.
	current, err := s.repo.GetByID(ctx, cmd.DocumentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkLifecycle(ctx, current); err != nil {
		return nil, err
	}
	if _, err := PlanTransition(current.Status, current.InventoryStatus, cmd.Status); err != nil {
		return nil, withDocument(err, current.ID)
	}

	var proofPath *string
	if cmd.Proof != nil {
		path, err := s.files.Store(ctx, cmd.Proof.Filename, cmd.Proof.ContentType, cmd.Proof.Body)
		if err != nil {
			return nil, fmt.Errorf("store proof image: %w", err)
		}
		proofPath = &path
	}

	var (
		doc  *Document
		plan TransitionPlan
	)
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		d, err := s.repo.GetForUpdate(ctx, cmd.DocumentID)
		if err != nil {
			return err
		}
		if err := s.checkLifecycle(ctx, d); err != nil {
			return err
		}

		plan, err = PlanTransition(d.Status, d.InventoryStatus, cmd.Status)
		if err != nil {
			return withDocument(err, d.ID)
		}
		if err := s.applyInventory(ctx, d, plan); err != nil {
			return err
		}

		now := time.Now().UTC()
		d.Status = plan.To
		d.InventoryStatus = plan.NextInventory
		switch plan.Effect {
		case EffectDeduct:
			d.InventoryDeductedAt = &now
		case EffectRestore:
			d.InventoryDeductedAt = nil
		}
		if plan.PostDelivery {
			action := plan.To
			d.PostDeliveryAction = &action
			d.PostDeliveryActionAt = &now
		}
		d.UpdatedBy = cmd.Actor

		if err := s.repo.Update(ctx, d); err != nil {
			return err
		}

		if err := s.repo.AppendHistory(ctx, &StatusHistory{
			ID:             id.New(),
			DocumentType:   d.Type,
			DocumentID:     d.ID,
			PreviousStatus: plan.From,
			NewStatus:      plan.To,
			Notes:          notes,
			ProofImage:     proofPath,
			ChangedBy:      cmd.Actor,
			ChangedAt:      now,
		}); err != nil {
			return fmt.Errorf("append status history: %w", err)
		}

		doc = d
		return nil
	})
	if err != nil {
		if proofPath != nil {
			s.discardProof(ctx, *proofPath)
		}
		return nil, err
	}

	logger.Info(ctx, "document status changed",
		"id", doc.ID,
		"number", doc.Number,
		"from", plan.From,
		"to", plan.To,
		"inventory_status", doc.InventoryStatus,
	)
	s.metrics.StatusChanged(plan.From, plan.To, plan.InventoryUpdated())

	ev := newEvent(EventStatusChanged, doc, cmd.Actor)
	ev.PreviousStatus = plan.From
	s.notify(ctx, ev)

	return &StatusResult{
		Success:          true,
		Message:          plan.Message(),
		InventoryUpdated: plan.InventoryUpdated(),
		Status:           doc.Status,
		InventoryStatus:  doc.InventoryStatus,
	}, nil
}

func (s *Service) applyInventory(ctx context.Context, d *Document, plan TransitionPlan) error {
	switch plan.Effect {
	case EffectDeduct:
		if _, err := s.ledger.DeductLines(ctx, d.Ref()); err != nil {
			return fmt.Errorf("deduct inventory: %w", err)
		}
	case EffectRestore:
		if _, err := s.ledger.RestoreLines(ctx, d.Ref()); err != nil {
			return fmt.Errorf("restore inventory: %w", err)
		}
	}
	return nil
}

// discardProof removes an uploaded image whose transition did not commit.
func (s *Service) discardProof(ctx context.Context, path string) {
	if err := s.files.Delete(context.WithoutCancel(ctx), path); err != nil {
		logger.Warn(ctx, "failed to delete orphaned proof image", "path", path, "error", err)
	}
}

func (s *Service) checkLifecycle(ctx context.Context, d *Document) error {
	if !d.Type.HasFulfillment() {
		return apperror.NewValidation("quotations have no fulfillment status").
			WithDetail("document_id", d.ID.String()).
			WithDetail("type", string(d.Type))
	}
	if err := d.CanModify(); err != nil {
		return err
	}
	// The sale carries the fulfillment of a converted order.
	return s.checkNotConverted(ctx, d)
}

func withDocument(err error, docID id.ID) error {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.WithDetail("document_id", docID.String())
	}
	return err
}
