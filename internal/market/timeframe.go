package market

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTimeframe is returned for unknown intervals or out-of-range lookbacks.
var ErrInvalidTimeframe = errors.New("invalid timeframe")

const (
	DefaultLookback = 500
	MaxLookback     = 1000
)

// Interval is a candle interval.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
)

var intervalDurations = map[Interval]time.Duration{
	Interval1m:  time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval1h:  time.Hour,
	Interval4h:  4 * time.Hour,
	Interval1d:  24 * time.Hour,
	Interval1w:  7 * 24 * time.Hour,
}

// Intervals lists the supported intervals, shortest first.
func Intervals() []Interval {
	return []Interval{Interval1m, Interval5m, Interval15m, Interval1h, Interval4h, Interval1d, Interval1w}
}

func (i Interval) Valid() bool {
	_, ok := intervalDurations[i]
	return ok
}

// Duration is zero for unknown intervals.
func (i Interval) Duration() time.Duration { return intervalDurations[i] }

// Timeframe is a candle interval plus the number of candles kept.
type Timeframe struct {
	Interval Interval `json:"interval" yaml:"interval"`
	Lookback int      `json:"lookback" yaml:"lookback"`
}

func (tf Timeframe) Validate() error {
	if !tf.Interval.Valid() {
		return fmt.Errorf("%w: interval %q", ErrInvalidTimeframe, tf.Interval)
	}
	if tf.Lookback < 1 || tf.Lookback > MaxLookback {
		return fmt.Errorf("%w: lookback %d not in [1,%d]", ErrInvalidTimeframe, tf.Lookback, MaxLookback)
	}
	return nil
}

// Window is the wall-clock span covered by a full lookback.
func (tf Timeframe) Window() time.Duration {
	return time.Duration(tf.Lookback) * tf.Interval.Duration()
}

func (tf Timeframe) String() string { return fmt.Sprintf("%s x%d", tf.Interval, tf.Lookback) }
