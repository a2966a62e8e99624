package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"marketpulse/internal/logging"
	"marketpulse/internal/market"
)

type Server struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

type HTTP struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// Selection is the instrument and timeframe active at startup.
type Selection struct {
	Instrument string          `yaml:"instrument"`
	Interval   market.Interval `yaml:"interval"`
	Lookback   int             `yaml:"lookback"`
}

type Backoff struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
}

type Scheduler struct {
	// SweepInterval is how often staleness is re-evaluated without new data.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Backoff       Backoff       `yaml:"backoff"`
}

// Provider configures one upstream. Zero rate-limit values disable limiting.
type Provider struct {
	Enabled  bool          `yaml:"enabled"`
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Interval time.Duration `yaml:"interval"`
	// StaleAfter defaults to two intervals.
	StaleAfter           time.Duration `yaml:"stale_after"`
	Kinds                []string      `yaml:"kinds"`
	MaxRequestsPerMinute int           `yaml:"max_requests_per_minute"`
	Burst                int           `yaml:"burst"`
	MinRequestInterval   time.Duration `yaml:"min_request_interval"`
}

// Threshold is the staleness threshold for the provider's fields.
func (p Provider) Threshold() time.Duration {
	if p.StaleAfter > 0 {
		return p.StaleAfter
	}
	return 2 * p.Interval
}

type Providers struct {
	Binance          Provider `yaml:"binance"`
	BinanceDominance Provider `yaml:"binance_dominance"`
	BinanceFutures   Provider `yaml:"binance_futures"`
	CoinGecko        Provider `yaml:"coingecko"`
	BlockchainInfo   Provider `yaml:"blockchaininfo"`
}

type Stream struct {
	Enabled     bool          `yaml:"enabled"`
	URL         string        `yaml:"url"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

type Catalog struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

type Config struct {
	Server    Server         `yaml:"server"`
	Log       logging.Config `yaml:"log"`
	HTTP      HTTP           `yaml:"http"`
	Selection Selection      `yaml:"selection"`
	Scheduler Scheduler      `yaml:"scheduler"`
	Providers Providers      `yaml:"providers"`
	Stream    Stream         `yaml:"stream"`
	Catalog   Catalog        `yaml:"catalog"`
}

func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Log:  logging.Config{Level: "info", Format: "text"},
		HTTP: HTTP{Timeout: 10 * time.Second, UserAgent: "marketpulse/1.0"},
		Selection: Selection{
			Instrument: "BTC/USDT",
			Interval:   market.Interval1h,
			Lookback:   market.DefaultLookback,
		},
		Scheduler: Scheduler{
			SweepInterval: 5 * time.Second,
			Backoff:       Backoff{Initial: 5 * time.Second, Max: 5 * time.Minute, Multiplier: 2},
		},
		Providers: Providers{
			Binance: Provider{
				Enabled:              true,
				Interval:             15 * time.Second,
				MaxRequestsPerMinute: 600,
				Burst:                10,
			},
			BinanceDominance: Provider{
				Enabled:              false,
				Interval:             time.Minute,
				MaxRequestsPerMinute: 30,
				Burst:                1,
			},
			BinanceFutures: Provider{
				Enabled:              true,
				Interval:             30 * time.Second,
				MaxRequestsPerMinute: 300,
				Burst:                5,
			},
			CoinGecko: Provider{
				Enabled:              true,
				Interval:             2 * time.Minute,
				MaxRequestsPerMinute: 20,
				Burst:                2,
			},
			BlockchainInfo: Provider{
				Enabled:            true,
				Interval:           5 * time.Minute,
				MinRequestInterval: 10 * time.Second,
			},
		},
		Stream:  Stream{Enabled: false, ReadTimeout: time.Minute},
		Catalog: Catalog{Enabled: true, TTL: 6 * time.Hour},
	}
}

// Load reads YAML config from path. If path is empty, config.yaml in the
// working directory is used when present; otherwise defaults apply. A .env
// file is loaded into the environment and environment variables override
// select fields.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := loadDotEnv(".env"); err != nil {
		return cfg, err
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// StartSelection parses the configured startup selection.
func (c Config) StartSelection() (market.Selection, error) {
	inst, err := market.ParseInstrument(c.Selection.Instrument)
	if err != nil {
		return market.Selection{}, err
	}
	sel := market.Selection{
		Instrument: inst,
		Timeframe:  market.Timeframe{Interval: c.Selection.Interval, Lookback: c.Selection.Lookback},
	}
	return sel, sel.Validate()
}

// Validate reports every unusable value at once.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http.timeout must be positive"))
	}
	if _, err := c.StartSelection(); err != nil {
		errs = append(errs, fmt.Errorf("selection: %w", err))
	}
	if c.Scheduler.SweepInterval <= 0 {
		errs = append(errs, errors.New("scheduler.sweep_interval must be positive"))
	}
	b := c.Scheduler.Backoff
	if b.Initial <= 0 || b.Max < b.Initial || b.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("scheduler.backoff: need 0 < initial <= max and multiplier >= 1"))
	}
	for name, p := range c.Providers.byName() {
		if !p.Enabled {
			continue
		}
		if p.Interval < time.Second {
			errs = append(errs, fmt.Errorf("providers.%s.interval must be at least 1s", name))
		}
		if p.MaxRequestsPerMinute < 0 || p.Burst < 0 || p.MinRequestInterval < 0 {
			errs = append(errs, fmt.Errorf("providers.%s: rate limits must not be negative", name))
		}
	}
	if c.Stream.Enabled && c.Stream.ReadTimeout <= 0 {
		errs = append(errs, errors.New("stream.read_timeout must be positive"))
	}
	return errors.Join(errs...)
}

func (p Providers) byName() map[string]Provider {
	return map[string]Provider{
		"binance":           p.Binance,
		"binance_dominance": p.BinanceDominance,
		"binance_futures":   p.BinanceFutures,
		"coingecko":         p.CoinGecko,
		"blockchaininfo":    p.BlockchainInfo,
	}
}
