package normalize

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"marketpulse/internal/market"
)

var hundred = decimal.NewFromInt(100)

// /api/v3/ticker/24hr?symbol=...
func decodeBinanceTicker(d *decoder) error {
	if err := d.requireObject("symbol"); err != nil {
		return err
	}
	at := d.observedAt("closeTime", d.root.Get("closeTime"))
	quote := d.quoteUnit()
	d.emit(market.FieldPriceLast, d.root.Get("lastPrice"), quote, at)
	d.emit(market.FieldPriceChangePct24h, d.root.Get("priceChangePercent"), market.UnitPercent, at)
	d.emit(market.FieldHigh24h, d.root.Get("highPrice"), quote, at)
	d.emit(market.FieldLow24h, d.root.Get("lowPrice"), quote, at)
	d.emit(market.FieldVolumeBase24h, d.root.Get("volume"), d.baseUnit(), at)
	d.emit(market.FieldVolumeQuote24h, d.root.Get("quoteVolume"), quote, at)
	return nil
}

// /api/v3/ticker/24hr without a symbol. The instrument's share of the
// quote-volume notional across every pair with the same quote asset is used
// as a dominance estimate when no dedicated dominance source is available.
func decodeBinanceDominance(d *decoder) error {
	if err := d.requireArray(); err != nil {
		return err
	}
	quote := d.obs.Instrument.Quote
	target := d.obs.Instrument.Symbol()
	// Quotes such as TUSD or FDUSD end in USD but are other assets.
	var shadowing []string
	for _, q := range market.KnownQuotes() {
		if q != quote && strings.HasSuffix(q, quote) {
			shadowing = append(shadowing, q)
		}
	}

	var (
		total, own decimal.Decimal
		found      bool
		latest     time.Time
	)
	d.root.ForEach(func(_, t gjson.Result) bool {
		sym := t.Get("symbol").String()
		if !strings.HasSuffix(sym, quote) || sym == quote {
			return true
		}
		if sym != target && slices.ContainsFunc(shadowing, func(q string) bool { return strings.HasSuffix(sym, q) }) {
			return true
		}
		price, okP, errP := ParseDecimal(t.Get("lastPrice"))
		vol, okV, errV := ParseDecimal(t.Get("volume"))
		if errP != nil || errV != nil || !okP || !okV {
			return true
		}
		notional := price.Mul(vol)
		total = total.Add(notional)
		if sym == target {
			own, found = notional, true
		}
		if ts, err := ParseTimestamp(t.Get("closeTime")); err == nil && ts.After(latest) {
			latest = ts
		}
		return true
	})

	if !found {
		return nil
	}
	if !total.IsPositive() {
		d.fail(string(market.FieldDominancePct), "zero total notional")
		return nil
	}
	if latest.IsZero() {
		latest = d.obs.FetchedAt
	}
	d.add(market.FieldDominancePct, own.Div(total).Mul(hundred).Round(6), market.UnitPercent, latest)
	return nil
}

// /api/v3/klines rows: [openTime, open, high, low, close, volume, closeTime, ...].
func decodeBinanceKlines(d *decoder) error {
	if err := d.requireArray(); err != nil {
		return err
	}
	d.res.HasCandles = true
	candles := make([]market.Candle, 0, len(d.root.Array()))
	i := 0
	d.root.ForEach(func(_, row gjson.Result) bool {
		field := fmt.Sprintf("candles[%d]", i)
		i++
		c, err := parseKline(row)
		if err != nil {
			d.fail(field, err.Error())
			return true
		}
		candles = append(candles, c)
		return true
	})
	d.res.Candles = sortCandles(candles)
	return nil
}

func parseKline(row gjson.Result) (market.Candle, error) {
	if !row.IsArray() {
		return market.Candle{}, fmt.Errorf("expected array row, got %s", row.Type)
	}
	cols := row.Array()
	if len(cols) < 6 {
		return market.Candle{}, fmt.Errorf("expected at least 6 columns, got %d", len(cols))
	}
	openTime, err := ParseTimestamp(cols[0])
	if err != nil {
		return market.Candle{}, fmt.Errorf("open time: %w", err)
	}
	var vals [5]decimal.Decimal
	names := [5]string{"open", "high", "low", "close", "volume"}
	for j := range vals {
		v, ok, err := ParseDecimal(cols[j+1])
		if err != nil {
			return market.Candle{}, fmt.Errorf("%s: %w", names[j], err)
		}
		if !ok {
			return market.Candle{}, fmt.Errorf("%s: missing", names[j])
		}
		vals[j] = v
	}
	return market.Candle{
		OpenTime: openTime,
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}

// sortCandles orders by open time; on duplicate open times the later row wins.
func sortCandles(in []market.Candle) []market.Candle {
	sort.SliceStable(in, func(a, b int) bool { return in[a].OpenTime.Before(in[b].OpenTime) })
	out := in[:0]
	for _, c := range in {
		if n := len(out); n > 0 && out[n-1].OpenTime.Equal(c.OpenTime) {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}

// <symbol>@trade stream events.
func decodeBinanceTrade(d *decoder) error {
	if err := d.requireObject("s"); err != nil {
		return err
	}
	at := d.observedAt("T", d.root.Get("T"))
	d.emit(market.FieldPriceLast, d.root.Get("p"), d.quoteUnit(), at)
	return nil
}

// /fapi/v1/openInterest
func decodeBinanceOpenInterest(d *decoder) error {
	if err := d.requireObject("symbol"); err != nil {
		return err
	}
	at := d.observedAt("time", d.root.Get("time"))
	d.emit(market.FieldOpenInterest, d.root.Get("openInterest"), market.UnitContracts, at)
	return nil
}

// /fapi/v1/fundingRate returns a history; only the most recent entry counts.
// Rates are fractions upstream and percentages here.
func decodeBinanceFunding(d *decoder) error {
	if err := d.requireArray(); err != nil {
		return err
	}
	var (
		latest gjson.Result
		at     time.Time
	)
	d.root.ForEach(func(_, e gjson.Result) bool {
		ts, err := ParseTimestamp(e.Get("fundingTime"))
		if err != nil {
			return true
		}
		if !latest.Exists() || ts.After(at) {
			latest, at = e, ts
		}
		return true
	})
	if !latest.Exists() {
		if len(d.root.Array()) > 0 {
			d.fail("fundingTime", "no entry with a valid funding time")
		}
		return nil
	}
	if v, ok := d.value(market.FieldFundingRatePct, latest.Get("fundingRate")); ok {
		d.add(market.FieldFundingRatePct, v.Mul(hundred), market.UnitPercent, at)
	}
	return nil
}
