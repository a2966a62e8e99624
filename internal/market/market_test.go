package market

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseInstrument_Separators(t *testing.T) {
	for _, in := range []string{"BTC/USDT", "btc-usdt", " Btc_Usdt ", "BTC:USDT"} {
		got, err := ParseInstrument(in)
		require.NoErrorf(t, err, "input %q", in)
		require.Equal(t, Instrument{Base: "BTC", Quote: "USDT"}, got)
		require.Equal(t, "BTCUSDT", got.Symbol())
		require.Equal(t, "BTC/USDT", got.String())
	}
}

func TestParseInstrument_ConcatenatedSymbol(t *testing.T) {
	got, err := ParseInstrument("ethbtc")
	require.NoError(t, err)
	require.Equal(t, Instrument{Base: "ETH", Quote: "BTC"}, got)

	got, err = ParseInstrument("SOLFDUSD")
	require.NoError(t, err)
	require.Equal(t, Instrument{Base: "SOL", Quote: "FDUSD"}, got)
}

func TestParseInstrument_Invalid(t *testing.T) {
	for _, in := range []string{"", "USDT", "BTC/", "/USDT", "BT C/USDT", "XYZ"} {
		_, err := ParseInstrument(in)
		require.Errorf(t, err, "input %q", in)
		require.Truef(t, errors.Is(err, ErrInvalidInstrument), "input %q: %v", in, err)
	}
}

func TestTimeframe_Validate(t *testing.T) {
	require.NoError(t, Timeframe{Interval: Interval1h, Lookback: 1}.Validate())
	require.NoError(t, Timeframe{Interval: Interval1w, Lookback: MaxLookback}.Validate())

	err := Timeframe{Interval: "3d", Lookback: 10}.Validate()
	require.ErrorIs(t, err, ErrInvalidTimeframe)

	err = Timeframe{Interval: Interval1d, Lookback: 0}.Validate()
	require.ErrorIs(t, err, ErrInvalidTimeframe)

	err = Timeframe{Interval: Interval1d, Lookback: MaxLookback + 1}.Validate()
	require.ErrorIs(t, err, ErrInvalidTimeframe)
}

func TestTimeframe_Window(t *testing.T) {
	tf := Timeframe{Interval: Interval4h, Lookback: 6}
	require.Equal(t, 24*time.Hour, tf.Window())
	require.Equal(t, time.Duration(0), Interval("2h").Duration())
}

func TestFields_VocabularyIsClosed(t *testing.T) {
	fs := Fields()
	require.Contains(t, fs, FieldPriceLast)
	require.Contains(t, fs, FieldChainHashrate)
	require.True(t, FieldOpenInterest.Valid())
	require.False(t, Field("price").Valid())
	require.True(t, FieldOpenInterestNotional.Valid())
	require.True(t, FieldOpenInterestNotional.Derived())
	require.False(t, FieldOpenInterest.Derived())

	// Fields returns a copy.
	fs[0] = "mutated"
	require.Equal(t, FieldPriceLast, Fields()[0])
}

func TestSelection_SameQueryIgnoresEpoch(t *testing.T) {
	a := Selection{Instrument: NewInstrument("btc", "usdt"), Timeframe: Timeframe{Interval: Interval1d, Lookback: 100}, Epoch: 1}
	b := a
	b.Epoch = 7
	require.True(t, a.SameQuery(b))
	b.Timeframe.Interval = Interval1h
	require.False(t, a.SameQuery(b))
	require.NoError(t, a.Validate())
}
