package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"marketpulse/internal/market"
)

// envOverrides lists every environment variable that overrides the file.
type envOverrides struct {
	Addr                  string        `env:"MARKETPULSE_ADDR"`
	LogLevel              string        `env:"MARKETPULSE_LOG_LEVEL"`
	LogFormat             string        `env:"MARKETPULSE_LOG_FORMAT"`
	HTTPTimeout           time.Duration `env:"MARKETPULSE_HTTP_TIMEOUT"`
	Instrument            string        `env:"MARKETPULSE_INSTRUMENT"`
	Interval              string        `env:"MARKETPULSE_INTERVAL"`
	Lookback              int           `env:"MARKETPULSE_LOOKBACK"`
	Stream                string        `env:"MARKETPULSE_STREAM"`
	BinanceBaseURL        string        `env:"BINANCE_BASE_URL"`
	BinanceFuturesBaseURL string        `env:"BINANCE_FUTURES_BASE_URL"`
	CoinGeckoBaseURL      string        `env:"COINGECKO_BASE_URL"`
	CoinGeckoAPIKey       string        `env:"COINGECKO_API_KEY"`
	BlockchainInfoBaseURL string        `env:"BLOCKCHAININFO_BASE_URL"`
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envdecode.Decode(&env); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("decode env: %w", err)
	}

	setString(&cfg.Server.Addr, env.Addr)
	setString(&cfg.Log.Level, env.LogLevel)
	setString(&cfg.Log.Format, env.LogFormat)
	if env.HTTPTimeout > 0 {
		cfg.HTTP.Timeout = env.HTTPTimeout
	}
	setString(&cfg.Selection.Instrument, env.Instrument)
	if env.Interval != "" {
		cfg.Selection.Interval = market.Interval(env.Interval)
	}
	if env.Lookback > 0 {
		cfg.Selection.Lookback = env.Lookback
	}
	if env.Stream != "" {
		on, err := strconv.ParseBool(strings.TrimSpace(env.Stream))
		if err != nil {
			return fmt.Errorf("MARKETPULSE_STREAM: %w", err)
		}
		cfg.Stream.Enabled = on
	}
	setString(&cfg.Providers.Binance.BaseURL, env.BinanceBaseURL)
	setString(&cfg.Providers.BinanceDominance.BaseURL, env.BinanceBaseURL)
	setString(&cfg.Providers.BinanceFutures.BaseURL, env.BinanceFuturesBaseURL)
	setString(&cfg.Providers.CoinGecko.BaseURL, env.CoinGeckoBaseURL)
	setString(&cfg.Providers.CoinGecko.APIKey, env.CoinGeckoAPIKey)
	setString(&cfg.Providers.BlockchainInfo.BaseURL, env.BlockchainInfoBaseURL)
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
