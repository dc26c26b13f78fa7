// Package features provides feature flag evaluation for sales rules.
package features

import (
	"context"
	"sync"
)

// Provider evaluates feature flags.
type Provider interface {
	// IsEnabled checks if feature is enabled for context
	IsEnabled(ctx context.Context, flag string) bool

	// GetValue returns typed value for feature configuration
	GetValue(ctx context.Context, flag string) any
}

// Flag names
const (
	// FlagRestrictSellAboveMRP rejects lines priced above the item's maximum retail price.
	FlagRestrictSellAboveMRP = "sales.restrict_sell_above_mrp"
	// FlagRestrictSellBelowMSP rejects lines priced below the item's minimum selling price.
	FlagRestrictSellBelowMSP = "sales.restrict_sell_below_msp"
	// FlagCreditLimitCheck enables the advisory credit check after a sale is saved.
	FlagCreditLimitCheck = "sales.credit_limit_check"
)

// InMemoryFlags is a simple in-memory flag provider, filled from configuration.
type InMemoryFlags struct {
	mu     sync.RWMutex
	flags  map[string]bool
	values map[string]any
}

// NewInMemoryFlags creates an in-memory flag provider.
func NewInMemoryFlags() *InMemoryFlags {
	return &InMemoryFlags{
		flags:  make(map[string]bool),
		values: make(map[string]any),
	}
}

func (f *InMemoryFlags) IsEnabled(ctx context.Context, flag string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.flags[flag]
}

func (f *InMemoryFlags) GetValue(ctx context.Context, flag string) any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values[flag]
}

// SetFlag sets a boolean flag.
func (f *InMemoryFlags) SetFlag(flag string, enabled bool) *InMemoryFlags {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[flag] = enabled
	return f
}

// SetValue sets a configuration value.
func (f *InMemoryFlags) SetValue(flag string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[flag] = value
}

var _ Provider = (*InMemoryFlags)(nil)
