package source

import (
	"context"

	"github.com/shopspring/decimal"
)

// Candidate is a single numeric reading extracted from an upstream source.
// Priority orders trust between candidates; lower is more trusted.
type Candidate struct {
	Value    decimal.Decimal
	Priority int
	Origin   string
}

// Source yields zero or more candidate readings for one quantity. A source
// that scrapes several page locations may return one candidate per match.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Candidate, error)
}
