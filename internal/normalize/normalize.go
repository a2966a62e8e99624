// Package normalize converts provider-native payloads into the canonical
// schema. Each provider.Format has exactly one decoder; decoders report
// per-field problems alongside the metrics they could extract and only fail
// the whole observation when the payload is structurally unusable.
package normalize

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"marketpulse/internal/market"
	"marketpulse/internal/provider"
)

// ErrMalformedPayload marks an upstream contract violation.
var ErrMalformedPayload = errors.New("malformed payload")

type MalformedError struct {
	Provider provider.ID
	Format   provider.Format
	Reason   string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s %s: malformed payload: %s", e.Provider, e.Format, e.Reason)
}

func (e *MalformedError) Is(target error) bool { return target == ErrMalformedPayload }

// FieldError reports one field that could not be normalized. The field is
// absent from the result; the rest of the observation is unaffected.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) Error() string { return e.Field + ": " + e.Reason }

// Result is everything one observation contributed.
type Result struct {
	Metrics []market.Metric
	// Candles is only meaningful when HasCandles is set; an empty series is
	// a valid answer.
	Candles    []market.Candle
	HasCandles bool
	Errors     []FieldError
}

type decodeFunc func(d *decoder) error

// Normalizer dispatches observations to their format's decoder.
type Normalizer struct {
	decoders map[provider.Format]decodeFunc
}

func New() *Normalizer {
	return &Normalizer{decoders: map[provider.Format]decodeFunc{
		provider.FormatBinanceTicker24h:    decodeBinanceTicker,
		provider.FormatBinanceTickerAll:    decodeBinanceDominance,
		provider.FormatBinanceKlines:       decodeBinanceKlines,
		provider.FormatBinanceTrade:        decodeBinanceTrade,
		provider.FormatBinanceOpenInterest: decodeBinanceOpenInterest,
		provider.FormatBinanceFundingRate:  decodeBinanceFunding,
		provider.FormatCoinGeckoGlobal:     decodeCoinGeckoGlobal,
		provider.FormatBlockchainStats:     decodeBlockchainStats,
	}}
}

// Normalize decodes obs. A *MalformedError is returned when the payload is not
// JSON, has the wrong shape, or has no decoder; otherwise the Result may hold
// both metrics and field errors.
func (n *Normalizer) Normalize(obs provider.Observation) (Result, error) {
	decode, ok := n.decoders[obs.Format]
	if !ok {
		return Result{}, &MalformedError{Provider: obs.Provider, Format: obs.Format, Reason: "no decoder for format"}
	}
	if !gjson.ValidBytes(obs.Payload) {
		return Result{}, &MalformedError{Provider: obs.Provider, Format: obs.Format, Reason: "invalid json"}
	}
	d := &decoder{obs: obs, root: gjson.ParseBytes(obs.Payload)}
	if err := decode(d); err != nil {
		return Result{}, err
	}
	return d.res, nil
}

type decoder struct {
	obs  provider.Observation
	root gjson.Result
	res  Result
}

func (d *decoder) malformed(format string, args ...any) error {
	return &MalformedError{Provider: d.obs.Provider, Format: d.obs.Format, Reason: fmt.Sprintf(format, args...)}
}

func (d *decoder) fail(field, reason string) {
	d.res.Errors = append(d.res.Errors, FieldError{Field: field, Reason: reason})
}

// requireObject rejects payloads whose root is not an object, and objects
// describing a different symbol than the one asked for.
func (d *decoder) requireObject(symbolPath string) error {
	if !d.root.IsObject() {
		return d.malformed("expected object, got %s", d.root.Type)
	}
	if symbolPath == "" {
		return nil
	}
	if s := d.root.Get(symbolPath); s.Exists() && s.String() != d.obs.Instrument.Symbol() {
		return d.malformed("symbol %q does not match %q", s.String(), d.obs.Instrument.Symbol())
	}
	return nil
}

func (d *decoder) requireArray() error {
	if !d.root.IsArray() {
		return d.malformed("expected array, got %s", d.root.Type)
	}
	return nil
}

// observedAt parses a required timestamp. On failure the field error is
// recorded and the fetch time is used so the observation's values survive.
func (d *decoder) observedAt(name string, r gjson.Result) time.Time {
	if !r.Exists() || r.Type == gjson.Null {
		d.fail(name, "missing timestamp")
		return d.obs.FetchedAt.UTC()
	}
	ts, err := ParseTimestamp(r)
	if err != nil {
		d.fail(name, err.Error())
		return d.obs.FetchedAt.UTC()
	}
	return ts
}

// value parses an optional numeric field. Absent and null values report
// ok=false without an error.
func (d *decoder) value(field market.Field, r gjson.Result) (decimal.Decimal, bool) {
	v, present, err := ParseDecimal(r)
	if err != nil {
		d.fail(string(field), err.Error())
		return decimal.Zero, false
	}
	return v, present
}

func (d *decoder) add(field market.Field, v decimal.Decimal, unit market.Unit, at time.Time) {
	d.res.Metrics = append(d.res.Metrics, market.Metric{
		Field:      field,
		Value:      v,
		Unit:       unit,
		ObservedAt: at.UTC(),
		Source:     string(d.obs.Provider),
	})
}

// emit parses r and adds it as field when present.
func (d *decoder) emit(field market.Field, r gjson.Result, unit market.Unit, at time.Time) {
	if v, ok := d.value(field, r); ok {
		d.add(field, v, unit, at)
	}
}

func (d *decoder) quoteUnit() market.Unit { return market.AssetUnit(d.obs.Instrument.Quote) }
func (d *decoder) baseUnit() market.Unit  { return market.AssetUnit(d.obs.Instrument.Base) }
