package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketpulse/internal/catalog"
	"marketpulse/internal/market"
)

type fakeSource struct {
	calls int
	list  []market.Instrument
	err   error
}

func (f *fakeSource) ExchangeInstruments(context.Context) ([]market.Instrument, error) {
	f.calls++
	return f.list, f.err
}

func TestResolve(t *testing.T) {
	t.Parallel()

	src := &fakeSource{list: []market.Instrument{
		market.NewInstrument("BTC", "USDT"),
		market.NewInstrument("ETH", "BTC"),
		market.NewInstrument("1INCH", "USDT"),
	}}
	c := catalog.New(src, time.Hour)

	for in, want := range map[string]string{
		"BTC/USDT":  "BTC/USDT",
		"btc-usdt":  "BTC/USDT",
		"BTCUSDT":   "BTC/USDT",
		"ethbtc":    "ETH/BTC",
		"1INCHUSDT": "1INCH/USDT",
	} {
		got, err := c.Resolve(t.Context(), in)
		require.NoError(t, err, in)
		require.Equal(t, want, got.String(), in)
	}

	_, err := c.Resolve(t.Context(), "DOGE/USDT")
	require.ErrorIs(t, err, catalog.ErrUnknownInstrument)

	_, err = c.Resolve(t.Context(), "BT/CUSDT")
	require.ErrorIs(t, err, catalog.ErrUnknownInstrument)

	_, err = c.Resolve(t.Context(), "???")
	require.ErrorIs(t, err, market.ErrInvalidInstrument)

	require.Equal(t, 1, src.calls, "listing is cached")
}

func TestInstruments_TTLAndStaleOnError(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{list: []market.Instrument{market.NewInstrument("BTC", "USDT")}}
	c := catalog.New(src, time.Minute).WithClock(func() time.Time { return now })

	list, err := c.Instruments(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 1)

	// Expired, refresh fails: previous listing served
	now = now.Add(2 * time.Minute)
	src.err = errors.New("boom")
	list, err = c.Instruments(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 2, src.calls)

	// Refresh succeeds again
	src.err = nil
	src.list = append(src.list, market.NewInstrument("ETH", "USDT"))
	now = now.Add(2 * time.Minute)
	list, err = c.Instruments(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestResolve_NoListing(t *testing.T) {
	t.Parallel()

	c := catalog.New(&fakeSource{err: errors.New("offline")}, time.Minute)

	got, err := c.Resolve(t.Context(), "SOL/USDT")
	require.NoError(t, err)
	require.Equal(t, "SOL/USDT", got.String())

	_, err = c.Instruments(t.Context())
	require.Error(t, err)
}
