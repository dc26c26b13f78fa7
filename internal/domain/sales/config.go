package sales

import (
	"slices"

	"salesflow/internal/core/entity"
	"salesflow/internal/core/numerator"
)

// Number prefixes per document type.
var numberPrefixes = map[entity.DocumentType]string{
	entity.DocumentTypeQuotation: "QT",
	entity.DocumentTypeSaleOrder: "SO",
	entity.DocumentTypeSale:      "SI",
}

// Config holds the behaviour switches of the sales service.
type Config struct {
	// ProofRequired lists statuses that need notes when entered.
	ProofRequired []Status

	// NumeratorStrategy controls number generation for new documents.
	NumeratorStrategy numerator.Strategy
}

// DefaultConfig requires proof for delivery and reversals.
func DefaultConfig() Config {
	return Config{
		ProofRequired:     []Status{StatusPOD, StatusCancelled, StatusReturned},
		NumeratorStrategy: numerator.StrategyStrict,
	}
}

// RequiresProof reports whether entering s needs notes.
func (c Config) RequiresProof(s Status) bool {
	return slices.Contains(c.ProofRequired, s)
}

// ParseStatuses converts configuration strings to statuses, skipping unknown values.
func ParseStatuses(values []string) []Status {
	out := make([]Status, 0, len(values))
	for _, v := range values {
		if s := Status(v); s.Valid() {
			out = append(out, s)
		}
	}
	return out
}

func numeratorConfig(t entity.DocumentType) numerator.Config {
	return numerator.DefaultConfig(numberPrefixes[t])
}

func (c Config) numeratorOptions() *numerator.Options {
	return &numerator.Options{Strategy: c.NumeratorStrategy, RangeSize: 50}
}
