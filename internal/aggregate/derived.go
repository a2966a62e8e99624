package aggregate

import (
	"time"

	"marketpulse/internal/market"
)

// DerivedSource is the source recorded on computed fields.
const DerivedSource = "derived"

// deriveFields recomputes fields that depend on other fields. A derived field
// carries the later timestamps of its inputs and is stale when either input
// is; it is removed when an input is missing.
func deriveFields(s *Snapshot) {
	price, okPrice := s.fields[market.FieldPriceLast]
	oi, okOI := s.fields[market.FieldOpenInterest]
	if !okPrice || !okOI {
		delete(s.fields, market.FieldOpenInterestNotional)
		return
	}
	s.fields[market.FieldOpenInterestNotional] = FieldState{
		Metric: market.Metric{
			Field:      market.FieldOpenInterestNotional,
			Value:      price.Value.Mul(oi.Value),
			Unit:       market.AssetUnit(s.selection.Instrument.Quote),
			ObservedAt: later(price.ObservedAt, oi.ObservedAt),
			Source:     DerivedSource,
		},
		RefreshedAt: later(price.RefreshedAt, oi.RefreshedAt),
		Stale:       price.Stale || oi.Stale,
	}
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
