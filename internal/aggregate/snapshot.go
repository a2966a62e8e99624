package aggregate

import (
	"encoding/json"
	"sort"
	"time"

	"marketpulse/internal/market"
)

// FieldState is the latest accepted metric for one field.
type FieldState struct {
	market.Metric
	// RefreshedAt is when the value was last accepted by a merge.
	RefreshedAt time.Time `json:"refreshed_at"`
	Stale       bool      `json:"stale"`
}

// Snapshot is an immutable view of everything known for one selection.
// Snapshots are replaced, never modified; readers may hold one indefinitely.
type Snapshot struct {
	selection market.Selection
	version   uint64
	builtAt   time.Time
	populated bool
	fields    map[market.Field]FieldState
	candles   []market.Candle
	// sources whose latest cycle failed, and when
	degraded map[string]time.Time
}

// Empty returns the snapshot a new selection starts from.
func Empty(sel market.Selection) *Snapshot {
	return &Snapshot{
		selection: sel,
		fields:    map[market.Field]FieldState{},
		degraded:  map[string]time.Time{},
	}
}

func (s *Snapshot) Selection() market.Selection { return s.selection }

// Version increases by one with every snapshot derived from another.
func (s *Snapshot) Version() uint64 { return s.version }

func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Populated reports whether any successful cycle contributed to the snapshot.
func (s *Snapshot) Populated() bool { return s.populated }

func (s *Snapshot) Field(f market.Field) (FieldState, bool) {
	st, ok := s.fields[f]
	return st, ok
}

// Stale reports false for fields that are absent.
func (s *Snapshot) Stale(f market.Field) bool { return s.fields[f].Stale }

// Fields returns known fields in vocabulary order.
func (s *Snapshot) Fields() []FieldState {
	out := make([]FieldState, 0, len(s.fields))
	for _, f := range market.Fields() {
		if st, ok := s.fields[f]; ok {
			out = append(out, st)
		}
	}
	return out
}

// Candles returns a copy of the candle series, oldest first.
func (s *Snapshot) Candles() []market.Candle {
	out := make([]market.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Degraded lists sources whose latest cycle failed, sorted.
func (s *Snapshot) Degraded() []string {
	out := make([]string, 0, len(s.degraded))
	for src := range s.degraded {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}

// StaleCount is the number of fields currently flagged stale.
func (s *Snapshot) StaleCount() int {
	n := 0
	for _, st := range s.fields {
		if st.Stale {
			n++
		}
	}
	return n
}

// derive copies s into a new snapshot with the next version. Maps are copied;
// the candle slice is shared until replaced.
func (s *Snapshot) derive(now time.Time) *Snapshot {
	next := &Snapshot{
		selection: s.selection,
		version:   s.version + 1,
		builtAt:   now.UTC(),
		populated: s.populated,
		fields:    make(map[market.Field]FieldState, len(s.fields)),
		candles:   s.candles,
		degraded:  make(map[string]time.Time, len(s.degraded)),
	}
	for k, v := range s.fields {
		next.fields[k] = v
	}
	for k, v := range s.degraded {
		next.degraded[k] = v
	}
	return next
}

// View is the JSON form of a Snapshot.
type View struct {
	Instrument string                      `json:"instrument"`
	Interval   market.Interval             `json:"interval"`
	Lookback   int                         `json:"lookback"`
	Epoch      uint64                      `json:"epoch"`
	Version    uint64                      `json:"version"`
	BuiltAt    time.Time                   `json:"built_at"`
	Fields     map[market.Field]FieldState `json:"fields"`
	Candles    []market.Candle             `json:"candles"`
	Degraded   []string                    `json:"degraded"`
}

func (s *Snapshot) View() View {
	fields := make(map[market.Field]FieldState, len(s.fields))
	for k, v := range s.fields {
		fields[k] = v
	}
	return View{
		Instrument: s.selection.Instrument.String(),
		Interval:   s.selection.Timeframe.Interval,
		Lookback:   s.selection.Timeframe.Lookback,
		Epoch:      s.selection.Epoch,
		Version:    s.version,
		BuiltAt:    s.builtAt,
		Fields:     fields,
		Candles:    s.Candles(),
		Degraded:   s.Degraded(),
	}
}

func (s *Snapshot) MarshalJSON() ([]byte, error) { return json.Marshal(s.View()) }
