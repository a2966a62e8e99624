package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketpulse/internal/config"
	"marketpulse/internal/market"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_Valid(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	sel, err := cfg.StartSelection()
	require.NoError(t, err)
	require.Equal(t, market.NewInstrument("BTC", "USDT"), sel.Instrument)
	require.Equal(t, market.Interval1h, sel.Timeframe.Interval)
	require.Equal(t, 30*time.Second, cfg.Providers.Binance.Threshold())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, `
selection:
  instrument: eth-usdt
  interval: 4h
  lookback: 200
providers:
  coingecko:
    interval: 90s
    stale_after: 10m
    api_key: from-file
scheduler:
  backoff:
    initial: 1s
    max: 30s
    multiplier: 3
`)

	cfg, err := config.Load(path)

	require.NoError(t, err)
	require.Equal(t, "eth-usdt", cfg.Selection.Instrument)
	require.Equal(t, 200, cfg.Selection.Lookback)
	require.Equal(t, 90*time.Second, cfg.Providers.CoinGecko.Interval)
	require.Equal(t, 10*time.Minute, cfg.Providers.CoinGecko.Threshold())
	require.Equal(t, "from-file", cfg.Providers.CoinGecko.APIKey)
	require.True(t, cfg.Providers.CoinGecko.Enabled, "unset keys keep defaults")
	require.Equal(t, 3.0, cfg.Scheduler.Backoff.Multiplier)

	sel, err := cfg.StartSelection()
	require.NoError(t, err)
	require.Equal(t, "ETH/USDT", sel.Instrument.String())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MARKETPULSE_ADDR", ":9090")
	t.Setenv("MARKETPULSE_LOOKBACK", "50")
	t.Setenv("MARKETPULSE_HTTP_TIMEOUT", "3s")
	t.Setenv("MARKETPULSE_STREAM", "true")
	t.Setenv("COINGECKO_API_KEY", "secret")

	cfg, err := config.Load(writeFile(t, "log:\n  level: debug\n"))

	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, 50, cfg.Selection.Lookback)
	require.Equal(t, 3*time.Second, cfg.HTTP.Timeout)
	require.True(t, cfg.Stream.Enabled)
	require.Equal(t, "secret", cfg.Providers.CoinGecko.APIKey)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = config.Load(writeFile(t, "selection: [oops"))
	require.ErrorContains(t, err, "parse config")

	_, err = config.Load(writeFile(t, "selection:\n  interval: 3m\n"))
	require.ErrorIs(t, err, market.ErrInvalidTimeframe)
}

func TestValidate_ReportsAll(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Server.Addr = ""
	cfg.Scheduler.Backoff.Multiplier = 0.5
	cfg.Providers.Binance.Interval = 0
	cfg.Providers.BinanceDominance.Interval = 0 // disabled, not checked

	err := cfg.Validate()

	require.ErrorContains(t, err, "server.addr")
	require.ErrorContains(t, err, "scheduler.backoff")
	require.ErrorContains(t, err, "providers.binance.interval")
	require.NotContains(t, err.Error(), "binance_dominance")
}
