package provider_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"marketpulse/internal/market"
	"marketpulse/internal/provider"
	"marketpulse/internal/provider/providertest"
)

type spotOnly struct{}

func (spotOnly) ID() provider.ID { return "spot-only" }
func (spotOnly) FetchSpot(_ context.Context, inst market.Instrument) (provider.Observation, error) {
	return provider.Observation{Provider: "spot-only", Kind: provider.KindSpot, Instrument: inst}, nil
}

func TestCapabilities_ReportsImplementedSubset(t *testing.T) {
	t.Parallel()
	require.Equal(t, []provider.Kind{provider.KindSpot}, provider.Capabilities(spotOnly{}))
}

func TestFetch_DispatchesAndRejectsUnsupported(t *testing.T) {
	t.Parallel()

	sel := market.Selection{Instrument: market.NewInstrument("BTC", "USDT")}

	obs, err := provider.Fetch(t.Context(), spotOnly{}, provider.KindSpot, sel)
	require.NoError(t, err)
	require.Equal(t, sel.Instrument, obs.Instrument)

	_, err = provider.Fetch(t.Context(), spotOnly{}, provider.KindCandles, sel)
	require.ErrorIs(t, err, provider.ErrUnsupportedQuery)
	require.NotErrorIs(t, err, provider.ErrProviderUnavailable)

	var uq *provider.UnsupportedQueryError
	require.ErrorAs(t, err, &uq)
	require.Equal(t, provider.ID("spot-only"), uq.Provider)
	require.Equal(t, provider.KindCandles, uq.Kind)
}

func TestGet_ReturnsBody(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	hc := providertest.NewMockHTTPClient(ctrl)
	hc.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodGet, req.Method)
			require.Equal(t, "bar", req.Header.Get("X-Foo"))
			require.Equal(t, "application/json", req.Header.Get("Accept"))
			return providertest.JSONResponse(http.StatusOK, `{"ok":true}`), nil
		}).
		Times(1)

	body, err := provider.Get(t.Context(), hc, "test", "http://example.invalid/x", http.Header{"X-Foo": []string{"bar"}})
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(body))
}

func TestGet_StatusIsUnavailableWithStatusCause(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	hc := providertest.NewMockHTTPClient(ctrl)
	hc.EXPECT().
		Do(gomock.Any()).
		Return(providertest.JSONResponse(http.StatusTooManyRequests, `{"msg":"slow down"}`), nil).
		Times(1)

	_, err := provider.Get(t.Context(), hc, "test", "http://example.invalid/x", nil)
	require.ErrorIs(t, err, provider.ErrProviderUnavailable)

	se, ok := provider.AsStatus(err)
	require.True(t, ok)
	require.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	require.Contains(t, se.Body, "slow down")

	var ue *provider.UnavailableError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, provider.ID("test"), ue.Provider)
}

func TestGet_TransportErrorIsUnavailable(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	hc := providertest.NewMockHTTPClient(ctrl)
	boom := errors.New("connection refused")
	hc.EXPECT().Do(gomock.Any()).Return(nil, boom).Times(1)

	_, err := provider.Get(t.Context(), hc, "test", "http://example.invalid/x", nil)
	require.ErrorIs(t, err, provider.ErrProviderUnavailable)
	require.ErrorIs(t, err, boom)
	_, ok := provider.AsStatus(err)
	require.False(t, ok)
}

func TestGet_BadURLNeverCallsClient(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	hc := providertest.NewMockHTTPClient(ctrl)
	hc.EXPECT().Do(gomock.Any()).Times(0)

	_, err := provider.Get(t.Context(), hc, "test", string([]rune{0x7f}), nil)
	require.ErrorIs(t, err, provider.ErrProviderUnavailable)
}
