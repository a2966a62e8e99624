package binance_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/provider"
	"marketpulse/internal/provider/binance"
)

func tradeServer(t *testing.T, messages []string, hold bool) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ws/btcusdt@trade", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		if hold {
			// keep the connection open until the client goes away
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestTradeStream_EmitsUntilCanceled(t *testing.T) {
	t.Parallel()

	srv := tradeServer(t, []string{
		`{"e":"trade","s":"BTCUSDT","p":"65000.10","T":1700000000000}`,
		`{"e":"trade","s":"BTCUSDT","p":"65000.20","T":1700000000500}`,
	}, true)

	stream := binance.NewTradeStream(binance.WithStreamURL(wsURL(srv)), binance.WithStreamClock(clock))
	require.Equal(t, binance.StreamID, stream.ID())

	ctx, cancel := context.WithCancel(t.Context())
	got := make(chan provider.Observation, 4)
	errc := make(chan error, 1)
	go func() {
		errc <- stream.Stream(ctx, btcusdt, func(o provider.Observation) { got <- o })
	}()

	for i := 0; i < 2; i++ {
		select {
		case o := <-got:
			require.Equal(t, provider.FormatBinanceTrade, o.Format)
			require.Equal(t, provider.KindTrade, o.Kind)
			require.Equal(t, btcusdt, o.Instrument)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for trade")
		}
	}

	cancel()
	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}

func TestTradeStream_ServerCloseIsUnavailable(t *testing.T) {
	t.Parallel()

	srv := tradeServer(t, nil, false)
	stream := binance.NewTradeStream(binance.WithStreamURL(wsURL(srv)))

	err := stream.Stream(t.Context(), btcusdt, func(provider.Observation) {})
	require.ErrorIs(t, err, provider.ErrProviderUnavailable)
}

func TestTradeStream_DialFailureIsUnavailable(t *testing.T) {
	t.Parallel()

	stream := binance.NewTradeStream(binance.WithStreamURL("ws://127.0.0.1:1/ws"))
	err := stream.Stream(t.Context(), btcusdt, func(provider.Observation) {})
	require.ErrorIs(t, err, provider.ErrProviderUnavailable)
}
