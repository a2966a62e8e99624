package indicators

import (
	"math"
	"time"

	"marketpulse/internal/market"
)

type Zone string

const (
	ZoneOverbought Zone = "overbought"
	ZoneOversold   Zone = "oversold"
	ZoneNeutral    Zone = "neutral"
)

// RSIZone classifies an RSI reading: above 70 overbought, below 30 oversold.
func RSIZone(rsi float64) Zone {
	switch {
	case math.IsNaN(rsi):
		return ""
	case rsi > 70:
		return ZoneOverbought
	case rsi < 30:
		return ZoneOversold
	default:
		return ZoneNeutral
	}
}

type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
)

// Report holds the indicator readings at the last candle. Values still in
// warm-up are nil.
type Report struct {
	OpenTime        time.Time `json:"open_time"`
	Candles         int       `json:"candles"`
	Close           *float64  `json:"close"`
	SMA20           *float64  `json:"sma_20"`
	SMA50           *float64  `json:"sma_50"`
	EMA20           *float64  `json:"ema_20"`
	RSI14           *float64  `json:"rsi_14"`
	RSIZone         Zone      `json:"rsi_zone,omitempty"`
	MACD            *float64  `json:"macd"`
	MACDSignal      *float64  `json:"macd_signal"`
	MACDHist        *float64  `json:"macd_hist"`
	MACDTrend       Trend     `json:"macd_trend,omitempty"`
	BBUpper         *float64  `json:"bb_upper"`
	BBMiddle        *float64  `json:"bb_middle"`
	BBLower         *float64  `json:"bb_lower"`
	BBPosition      *float64  `json:"bb_position"`
	PriceVsSMA20Pct *float64  `json:"price_vs_sma_20_pct"`
}

// Compute evaluates the standard indicator set over candles, oldest first.
func Compute(candles []market.Candle) Report {
	r := Report{Candles: len(candles)}
	if len(candles) == 0 {
		return r
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close.InexactFloat64()
	}
	last := len(closes) - 1
	at := func(s []float64) float64 { return s[last] }

	sma20 := at(SMA(closes, 20))
	rsi := at(RSI(closes, 14))
	macd, signal, hist := MACD(closes, 12, 26, 9)
	upper, middle, lower := Bollinger(closes, 20, 2)
	price := closes[last]

	r.OpenTime = candles[last].OpenTime
	r.Close = ptr(price)
	r.SMA20 = ptr(sma20)
	r.SMA50 = ptr(at(SMA(closes, 50)))
	r.EMA20 = ptr(at(EMA(closes, 20)))
	r.RSI14 = ptr(rsi)
	r.RSIZone = RSIZone(rsi)
	r.MACD = ptr(at(macd))
	r.MACDSignal = ptr(at(signal))
	r.MACDHist = ptr(at(hist))
	if r.MACD != nil && r.MACDSignal != nil {
		r.MACDTrend = TrendBullish
		if *r.MACD < *r.MACDSignal {
			r.MACDTrend = TrendBearish
		}
	}
	r.BBUpper = ptr(at(upper))
	r.BBMiddle = ptr(at(middle))
	r.BBLower = ptr(at(lower))
	r.BBPosition = ptr((price - at(lower)) / (at(upper) - at(lower)))
	r.PriceVsSMA20Pct = ptr((price/sma20 - 1) * 100)
	return r
}

// ptr returns nil for NaN and infinities.
func ptr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
