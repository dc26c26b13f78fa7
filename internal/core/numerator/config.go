// Package numerator provides domain contracts for document auto-numbering.
package numerator

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict uses UPDATE ... RETURNING for every number, without gaps.
	// Used for sales invoices.
	StrategyStrict Strategy = iota

	// StrategyCached allocates ranges of numbers in memory and may leave gaps
	// after a restart. Acceptable for quotations.
	StrategyCached
)

// Options configuration for number generation.
type Options struct {
	// Strategy to use for number generation
	Strategy Strategy
	// RangeSize is the number of IDs to allocate at once in Cached strategy.
	// Default is 50.
	RangeSize int64
}

// DefaultOptions returns standard options (Strict).
func DefaultOptions() *Options {
	return &Options{
		Strategy: StrategyStrict,
	}
}

// ParseStrategy maps a configuration value ("strict", "cached") to a Strategy.
// Unknown values fall back to StrategyStrict.
func ParseStrategy(s string) Strategy {
	if s == "cached" {
		return StrategyCached
	}
	return StrategyStrict
}

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (e.g., "QT", "SO", "SI")
	Prefix string

	// IncludeYear adds year to the number
	IncludeYear bool

	// PadWidth is the minimum number width (default 5)
	PadWidth int

	// ResetPeriod: "year", "month", "never"
	ResetPeriod string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: "year",
	}
}
