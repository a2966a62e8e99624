// Package aggregate merges normalized fragments into immutable snapshots.
//
// Rules:
//   - A field is replaced only by a metric whose ObservedAt is not older than
//     the one held. On equal timestamps the later input wins.
//   - A field is stale when it was not refreshed for longer than its source's
//     threshold, or when its source's latest cycle failed without refreshing it.
//   - Derived fields are recomputed from their inputs after every change.
//   - Candles are keyed by open time; incoming candles replace existing ones
//     and the series keeps only the most recent lookback.
package aggregate

import (
	"sort"
	"time"

	"marketpulse/internal/market"
)

// Fragment is everything one provider cycle produced for one selection epoch.
type Fragment struct {
	Source     string
	Epoch      uint64
	Metrics    []market.Metric
	Candles    []market.Candle
	HasCandles bool
	// Degraded is set when the cycle failed, entirely or for some kinds.
	Degraded bool
}

// Policy holds staleness thresholds.
type Policy struct {
	DefaultStaleAfter time.Duration
	StaleAfter        map[string]time.Duration
}

// Threshold returns the staleness threshold for source.
func (p Policy) Threshold(source string) time.Duration {
	if d, ok := p.StaleAfter[source]; ok && d > 0 {
		return d
	}
	return p.DefaultStaleAfter
}

type Aggregator struct {
	policy Policy
}

func New(policy Policy) *Aggregator { return &Aggregator{policy: policy} }

// Merge folds f into current and returns the resulting snapshot. current is
// returned unchanged when f belongs to another selection epoch.
func (a *Aggregator) Merge(current *Snapshot, f Fragment, now time.Time) *Snapshot {
	if current == nil {
		current = Empty(market.Selection{Epoch: f.Epoch})
	}
	if f.Epoch != current.selection.Epoch {
		return current
	}
	now = now.UTC()
	next := current.derive(now)

	accepted := make(map[market.Field]struct{}, len(f.Metrics))
	for _, m := range f.Metrics {
		if m.Field.Derived() {
			continue
		}
		m.ObservedAt = m.ObservedAt.UTC()
		if m.Source == "" {
			m.Source = f.Source
		}
		if prev, ok := next.fields[m.Field]; ok && m.ObservedAt.Before(prev.ObservedAt) {
			continue
		}
		next.fields[m.Field] = FieldState{Metric: m, RefreshedAt: now}
		accepted[m.Field] = struct{}{}
	}

	if f.HasCandles {
		next.candles = mergeCandles(current.candles, f.Candles, current.selection.Timeframe.Lookback)
	}
	if f.Degraded {
		next.degraded[f.Source] = now
	} else {
		delete(next.degraded, f.Source)
	}
	if !f.Degraded || len(accepted) > 0 || f.HasCandles {
		next.populated = true
	}

	a.mark(next, now, accepted)
	deriveFields(next)
	return next
}

// Refresh re-evaluates staleness at now. current is returned unchanged when no
// flag changes.
func (a *Aggregator) Refresh(current *Snapshot, now time.Time) *Snapshot {
	if current == nil {
		return nil
	}
	changed := false
	for f, st := range current.fields {
		if f.Derived() {
			continue
		}
		if a.isStale(current, st, now) != st.Stale {
			changed = true
			break
		}
	}
	if !changed {
		return current
	}
	next := current.derive(now)
	a.mark(next, now, nil)
	deriveFields(next)
	return next
}

// Rebase derives the starting snapshot for sel from current. Metrics survive a
// timeframe-only change; candles never do.
func (a *Aggregator) Rebase(current *Snapshot, sel market.Selection, now time.Time) *Snapshot {
	if current == nil {
		return Empty(sel)
	}
	if current.selection.Instrument != sel.Instrument {
		next := Empty(sel)
		next.version = current.version + 1
		next.builtAt = now.UTC()
		return next
	}
	next := current.derive(now)
	next.selection = sel
	next.candles = nil
	next.populated = len(next.fields) > 0
	a.mark(next, now.UTC(), nil)
	deriveFields(next)
	return next
}

func (a *Aggregator) mark(s *Snapshot, now time.Time, accepted map[market.Field]struct{}) {
	for f, st := range s.fields {
		if f.Derived() {
			continue
		}
		if _, ok := accepted[f]; ok {
			st.Stale = false
		} else {
			st.Stale = a.isStale(s, st, now)
		}
		s.fields[f] = st
	}
}

func (a *Aggregator) isStale(s *Snapshot, st FieldState, now time.Time) bool {
	if failedAt, ok := s.degraded[st.Source]; ok && st.RefreshedAt.Before(failedAt) {
		return true
	}
	limit := a.policy.Threshold(st.Source)
	return limit > 0 && now.Sub(st.RefreshedAt) > limit
}

// mergeCandles returns the union of prev and incoming keyed by open time,
// incoming winning, truncated to the newest lookback candles. Neither input is
// modified.
func mergeCandles(prev, incoming []market.Candle, lookback int) []market.Candle {
	byOpen := make(map[int64]market.Candle, len(prev)+len(incoming))
	for _, c := range prev {
		byOpen[c.OpenTime.UnixNano()] = c
	}
	for _, c := range incoming {
		c.OpenTime = c.OpenTime.UTC()
		byOpen[c.OpenTime.UnixNano()] = c
	}
	out := make([]market.Candle, 0, len(byOpen))
	for _, c := range byOpen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	if lookback > 0 && len(out) > lookback {
		out = out[len(out)-lookback:]
	}
	return out
}
