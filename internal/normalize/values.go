package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// ParseDecimal reads a JSON number or numeric string without going through
// float64. present is false for absent, null and empty-string values.
func ParseDecimal(r gjson.Result) (v decimal.Decimal, present bool, err error) {
	switch {
	case !r.Exists(), r.Type == gjson.Null:
		return decimal.Zero, false, nil
	case r.Type == gjson.Number:
		v, err = decimal.NewFromString(r.Raw)
	case r.Type == gjson.String:
		s := strings.TrimSpace(r.Str)
		if s == "" {
			return decimal.Zero, false, nil
		}
		v, err = decimal.NewFromString(s)
	default:
		return decimal.Zero, false, fmt.Errorf("expected number, got %s", r.Type)
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse number: %w", err)
	}
	return v, true, nil
}

// Epoch magnitudes: values at or above msThreshold are milliseconds, at or
// above usThreshold microseconds, anything smaller seconds.
const (
	msThreshold = 1e12
	usThreshold = 1e15
)

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp accepts epoch seconds, milliseconds or microseconds (as JSON
// numbers or numeric strings) and ISO-8601 strings. Strings without a zone are
// taken as UTC. The result is always UTC.
func ParseTimestamp(r gjson.Result) (time.Time, error) {
	switch r.Type {
	case gjson.Number:
		return parseEpoch(r.Raw)
	case gjson.String:
		return ParseTimestampString(r.Str)
	default:
		return time.Time{}, fmt.Errorf("expected timestamp, got %s", r.Type)
	}
}

func ParseTimestampString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return parseEpoch(s)
	}
	for _, layout := range isoLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseEpoch(raw string) (time.Time, error) {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		switch {
		case i <= 0:
			return time.Time{}, fmt.Errorf("non-positive epoch %d", i)
		case i >= usThreshold:
			return time.UnixMicro(i).UTC(), nil
		case i >= msThreshold:
			return time.UnixMilli(i).UTC(), nil
		default:
			return time.Unix(i, 0).UTC(), nil
		}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("invalid epoch %q", raw)
	}
	var nanos float64
	switch {
	case f <= 0:
		return time.Time{}, fmt.Errorf("non-positive epoch %s", raw)
	case f >= usThreshold:
		nanos = f * 1e3
	case f >= msThreshold:
		nanos = f * 1e6
	default:
		nanos = f * 1e9
	}
	if nanos > math.MaxInt64 {
		return time.Time{}, fmt.Errorf("epoch %s out of range", raw)
	}
	return time.Unix(0, int64(nanos)).UTC(), nil
}
