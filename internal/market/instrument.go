// Package market holds the canonical schema every provider is normalized into.
package market

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidInstrument is returned when an instrument string cannot be split
// into a base and a quote asset.
var ErrInvalidInstrument = errors.New("invalid instrument")

// knownQuotes is used to split concatenated exchange symbols (BTCUSDT) when no
// catalog is available. Longer suffixes first.
var knownQuotes = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "EUR", "USD", "TRY", "BTC", "ETH", "BNB"}

// KnownQuotes returns the quote assets recognised in concatenated symbols,
// longest first.
func KnownQuotes() []string { return slices.Clone(knownQuotes) }

// Instrument identifies a tradable pair. Assets are upper-case.
type Instrument struct {
	Base  string `json:"base" yaml:"base"`
	Quote string `json:"quote" yaml:"quote"`
}

// NewInstrument upper-cases and trims both assets.
func NewInstrument(base, quote string) Instrument {
	return Instrument{
		Base:  strings.ToUpper(strings.TrimSpace(base)),
		Quote: strings.ToUpper(strings.TrimSpace(quote)),
	}
}

// Symbol is the concatenated exchange symbol, e.g. BTCUSDT.
func (i Instrument) Symbol() string { return i.Base + i.Quote }

func (i Instrument) String() string { return i.Base + "/" + i.Quote }

func (i Instrument) IsZero() bool { return i.Base == "" && i.Quote == "" }

// Validate reports whether both assets are present and alphanumeric.
func (i Instrument) Validate() error {
	if i.Base == "" || i.Quote == "" {
		return fmt.Errorf("%w: %q", ErrInvalidInstrument, i.String())
	}
	for _, s := range []string{i.Base, i.Quote} {
		for _, r := range s {
			if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
				return fmt.Errorf("%w: %q", ErrInvalidInstrument, i.String())
			}
		}
	}
	return nil
}

// ParseInstrument accepts BTC/USDT, BTC-USDT, btc_usdt and, as a fallback,
// concatenated symbols ending in a well-known quote asset (BTCUSDT).
func ParseInstrument(s string) (Instrument, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Instrument{}, fmt.Errorf("%w: empty", ErrInvalidInstrument)
	}
	for _, sep := range []string{"/", "-", "_", ":"} {
		if base, quote, ok := strings.Cut(s, sep); ok {
			inst := NewInstrument(base, quote)
			return inst, inst.Validate()
		}
	}
	upper := strings.ToUpper(s)
	for _, q := range knownQuotes {
		if strings.HasSuffix(upper, q) && len(upper) > len(q) {
			inst := NewInstrument(strings.TrimSuffix(upper, q), q)
			return inst, inst.Validate()
		}
	}
	return Instrument{}, fmt.Errorf("%w: cannot split %q", ErrInvalidInstrument, s)
}
