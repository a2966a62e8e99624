package blockchaininfo_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"marketpulse/internal/market"
	"marketpulse/internal/provider"
	"marketpulse/internal/provider/blockchaininfo"
	"marketpulse/internal/provider/providertest"
)

func TestFetchChainStats(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := providertest.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/stats", req.URL.Path)
			return providertest.JSONResponse(http.StatusOK, `{"difficulty":6.4e13}`), nil
		}).
		Times(1)

	client := blockchaininfo.New(blockchaininfo.WithHTTPClient(httpClient))
	require.Equal(t, []provider.Kind{provider.KindChainStats}, provider.Capabilities(client))

	obs, err := client.FetchChainStats(t.Context(), market.NewInstrument("BTC", "EUR"))
	require.NoError(t, err)
	require.Equal(t, provider.FormatBlockchainStats, obs.Format)
	require.Equal(t, blockchaininfo.ID, obs.Provider)
}

func TestFetchChainStats_NonBitcoinIsUnsupported(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := providertest.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Times(0)

	client := blockchaininfo.New(blockchaininfo.WithHTTPClient(httpClient))
	_, err := client.FetchChainStats(t.Context(), market.NewInstrument("ETH", "USDT"))
	require.ErrorIs(t, err, provider.ErrUnsupportedQuery)
}
