package sales

import (
	"salesflow/internal/core/apperror"
)

// Status is the fulfillment status of a sale order or sale.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusDelivery   Status = "Delivery"
	StatusPOD        Status = "POD"
	StatusCancelled  Status = "Cancelled"
	StatusReturned   Status = "Returned"
)

// forwardChain orders the regular lifecycle. Moving forward may skip steps.
var forwardChain = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusDelivery,
	StatusPOD,
}

func (s Status) rank() int {
	for i, st := range forwardChain {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.rank() >= 0 || s == StatusCancelled || s == StatusReturned
}

// IsTerminal reports whether no transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusReturned
}

// IsReversal reports whether s undoes the sale.
func (s Status) IsReversal() bool {
	return s == StatusCancelled || s == StatusReturned
}

// CanTransition reports whether from -> to is an allowed edge.
// POD -> POD is not an edge; callers report it separately.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from.IsTerminal() || from == to {
		return false
	}
	if to.IsReversal() {
		return true
	}
	if from == StatusPOD {
		return false
	}
	return to.rank() > from.rank()
}

// AllowedTransitions lists the statuses reachable from s.
func AllowedTransitions(s Status) []Status {
	var out []Status
	for _, to := range append(append([]Status(nil), forwardChain...), StatusCancelled, StatusReturned) {
		if CanTransition(s, to) {
			out = append(out, to)
		}
	}
	return out
}

// InventoryEffect is what a transition does to stock.
type InventoryEffect int

const (
	// EffectNone leaves the ledger alone.
	EffectNone InventoryEffect = iota
	// EffectDeduct flips reserved lines to sold and lowers stock.
	EffectDeduct
	// EffectAlreadyDeducted moves to POD when stock already reflects the sale.
	EffectAlreadyDeducted
	// EffectRestore returns deducted goods to stock.
	EffectRestore
	// EffectKeepDelivered cancels or returns after delivery; the deduction stays.
	EffectKeepDelivered
)

// TransitionPlan describes the writes an accepted transition needs.
type TransitionPlan struct {
	From   Status
	To     Status
	Effect InventoryEffect
	// NextInventory is the inventory status after the transition.
	NextInventory InventoryStatus
	// PostDelivery is set when a delivered document is cancelled or returned.
	PostDelivery bool
}

// InventoryUpdated reports whether the plan moves stock.
func (p TransitionPlan) InventoryUpdated() bool {
	return p.Effect == EffectDeduct || p.Effect == EffectRestore
}

// Message is the human-readable outcome returned to callers.
func (p TransitionPlan) Message() string {
	switch p.Effect {
	case EffectDeduct:
		return "status updated, inventory deducted"
	case EffectAlreadyDeducted:
		return "status updated, inventory already deducted"
	case EffectRestore:
		return "status updated, inventory restored"
	case EffectKeepDelivered:
		return "status updated, delivered inventory kept"
	default:
		return "status updated"
	}
}

// PlanTransition validates from -> to for a document whose inventory is inv
// and returns the inventory effect to apply.
func PlanTransition(from Status, inv InventoryStatus, to Status) (TransitionPlan, error) {
	if !to.Valid() {
		return TransitionPlan{}, apperror.NewValidation("unknown status").
			WithDetail("field", "status").
			WithDetail("value", string(to))
	}

	if from == StatusPOD && to == StatusPOD {
		if inv.Deducted() {
			return TransitionPlan{}, apperror.NewAlreadyDeducted(nil).
				WithDetail("status", string(from))
		}
		return TransitionPlan{}, apperror.NewInvalidTransition(string(from), string(to))
	}

	if !CanTransition(from, to) {
		return TransitionPlan{}, apperror.NewInvalidTransition(string(from), string(to))
	}

	plan := TransitionPlan{From: from, To: to, Effect: EffectNone, NextInventory: inv}

	switch {
	case to == StatusPOD:
		if inv.Deducted() {
			plan.Effect = EffectAlreadyDeducted
		} else {
			plan.Effect = EffectDeduct
			plan.NextInventory = InventoryDeducted
		}

	case to.IsReversal() && from == StatusPOD:
		if !inv.Deducted() {
			return TransitionPlan{}, apperror.NewInvariantViolation(apperror.CodeInvariantViolation,
				"Delivered document has no inventory deduction").
				WithDetail("from", string(from)).
				WithDetail("to", string(to)).
				WithDetail("inventory_status", string(inv))
		}
		plan.PostDelivery = true
		plan.Effect = EffectKeepDelivered
		plan.NextInventory = InventoryDeductedDelivered

	case to.IsReversal() && inv.Deducted():
		plan.Effect = EffectRestore
		plan.NextInventory = InventoryPending
	}

	return plan, nil
}
