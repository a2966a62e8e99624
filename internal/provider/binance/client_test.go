package binance_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"marketpulse/internal/market"
	"marketpulse/internal/provider"
	"marketpulse/internal/provider/binance"
	"marketpulse/internal/provider/providertest"
)

var (
	btcusdt = market.NewInstrument("BTC", "USDT")
	fixed   = time.Date(2023, 11, 14, 22, 13, 20, 0, time.FixedZone("CET", 3600))
)

func clock() time.Time { return fixed }

func TestFetchSpot(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock HTTP client
	ctrl := gomock.NewController(t)
	httpClient := providertest.NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodGet, req.Method)
			require.Equal(t, "http://localhost:8080/api/v3/ticker/24hr", req.URL.Scheme+"://"+req.URL.Host+req.URL.Path)
			require.Equal(t, "BTCUSDT", req.URL.Query().Get("symbol"))
			require.Equal(t, "bar", req.Header.Get("foo"))
			return providertest.JSONResponse(http.StatusOK, `{"symbol":"BTCUSDT","lastPrice":"65000.50"}`), nil
		}).
		Times(1)

	client := binance.New(
		binance.WithHTTPClient(httpClient),
		binance.WithBaseURL("http://localhost:8080/"),
		binance.WithHeader(http.Header{"foo": []string{"bar"}}),
		binance.WithClock(clock),
	)

	// Act
	obs, err := client.FetchSpot(t.Context(), btcusdt)

	// Assert: observation is tagged with provider, format and UTC fetch time
	require.NoError(t, err)
	require.Equal(t, binance.ID, obs.Provider)
	require.Equal(t, provider.KindSpot, obs.Kind)
	require.Equal(t, provider.FormatBinanceTicker24h, obs.Format)
	require.Equal(t, btcusdt, obs.Instrument)
	require.Equal(t, time.UTC, obs.FetchedAt.Location())
	require.True(t, obs.FetchedAt.Equal(fixed))
	require.Contains(t, string(obs.Payload), "65000.50")
}

func TestFetchSpot_InvalidSymbolIsUnsupported(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := providertest.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(providertest.JSONResponse(http.StatusBadRequest, `{"code":-1121,"msg":"Invalid symbol."}`), nil).
		Times(1)

	client := binance.New(binance.WithHTTPClient(httpClient))
	_, err := client.FetchSpot(t.Context(), market.NewInstrument("NOPE", "USDT"))
	require.ErrorIs(t, err, provider.ErrUnsupportedQuery)
	require.Contains(t, err.Error(), "Invalid symbol.")
}

func TestFetchSpot_ServerErrorIsUnavailable(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := providertest.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(providertest.JSONResponse(http.StatusBadGateway, `upstream down`), nil).
		Times(1)

	client := binance.New(binance.WithHTTPClient(httpClient))
	_, err := client.FetchSpot(t.Context(), btcusdt)
	require.ErrorIs(t, err, provider.ErrProviderUnavailable)
	require.NotErrorIs(t, err, provider.ErrUnsupportedQuery)
}

func TestFetchSpot_OtherBadRequestStaysUnavailable(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := providertest.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(providertest.JSONResponse(http.StatusBadRequest, `{"code":-1100,"msg":"Illegal characters"}`), nil).
		Times(1)

	client := binance.New(binance.WithHTTPClient(httpClient))
	_, err := client.FetchSpot(t.Context(), btcusdt)
	require.ErrorIs(t, err, provider.ErrProviderUnavailable)
}

func TestFetchCandles(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := providertest.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/api/v3/klines", req.URL.Path)
			require.Equal(t, "BTCUSDT", req.URL.Query().Get("symbol"))
			require.Equal(t, "4h", req.URL.Query().Get("interval"))
			require.Equal(t, "250", req.URL.Query().Get("limit"))
			return providertest.JSONResponse(http.StatusOK, `[]`), nil
		}).
		Times(1)

	client := binance.New(binance.WithHTTPClient(httpClient))
	tf := market.Timeframe{Interval: market.Interval4h, Lookback: 250}
	obs, err := client.FetchCandles(t.Context(), btcusdt, tf)
	require.NoError(t, err)
	require.Equal(t, provider.FormatBinanceKlines, obs.Format)
	require.Equal(t, tf, obs.Timeframe)
}

func TestFetchCandles_UnsupportedTimeframes(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := providertest.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Times(0)

	client := binance.New(binance.WithHTTPClient(httpClient))

	_, err := client.FetchCandles(t.Context(), btcusdt, market.Timeframe{Interval: "3d", Lookback: 10})
	require.ErrorIs(t, err, provider.ErrUnsupportedQuery)

	_, err = client.FetchCandles(t.Context(), btcusdt, market.Timeframe{Interval: market.Interval1d, Lookback: 5000})
	require.ErrorIs(t, err, provider.ErrUnsupportedQuery)

	_, err = client.FetchCandles(t.Context(), market.Instrument{}, market.Timeframe{Interval: market.Interval1d, Lookback: 10})
	require.ErrorIs(t, err, provider.ErrUnsupportedQuery)
}

func TestExchangeInstruments_OnlyTrading(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := providertest.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(providertest.JSONResponse(http.StatusOK, `{"symbols":[
			{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT"},
			{"symbol":"ETHBTC","status":"TRADING","baseAsset":"ETH","quoteAsset":"BTC"},
			{"symbol":"LUNAUSDT","status":"BREAK","baseAsset":"LUNA","quoteAsset":"USDT"}
		]}`), nil).
		Times(1)

	client := binance.New(binance.WithHTTPClient(httpClient))
	got, err := client.ExchangeInstruments(t.Context())
	require.NoError(t, err)
	require.Equal(t, []market.Instrument{btcusdt, market.NewInstrument("ETH", "BTC")}, got)
}

func TestExchangeInstruments_Malformed(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := providertest.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(providertest.JSONResponse(http.StatusOK, `{"timezone":"UTC"}`), nil).
		Times(1)

	client := binance.New(binance.WithHTTPClient(httpClient))
	_, err := client.ExchangeInstruments(t.Context())
	require.ErrorIs(t, err, provider.ErrProviderUnavailable)
}

func TestDominanceEstimator(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := providertest.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/api/v3/ticker/24hr", req.URL.Path)
			require.Empty(t, req.URL.RawQuery)
			return providertest.JSONResponse(http.StatusOK, `[]`), nil
		}).
		Times(1)

	est := binance.NewDominanceEstimator(binance.New(binance.WithHTTPClient(httpClient)))
	require.Equal(t, []provider.Kind{provider.KindDominance}, provider.Capabilities(est))

	obs, err := est.FetchDominance(t.Context(), btcusdt)
	require.NoError(t, err)
	require.Equal(t, binance.DominanceID, obs.Provider)
	require.Equal(t, provider.FormatBinanceTickerAll, obs.Format)
}

func TestClient_Capabilities(t *testing.T) {
	t.Parallel()
	require.Equal(t, []provider.Kind{provider.KindSpot, provider.KindCandles}, provider.Capabilities(binance.New()))
}
