// Package sources builds the configured provider clients, each behind its own
// request gate, together with the staleness policy derived from their cadences.
package sources

import (
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"marketpulse/internal/aggregate"
	"marketpulse/internal/config"
	"marketpulse/internal/httpx"
	"marketpulse/internal/provider"
	"marketpulse/internal/provider/binance"
	"marketpulse/internal/provider/binancefutures"
	"marketpulse/internal/provider/blockchaininfo"
	"marketpulse/internal/provider/coingecko"
	"marketpulse/internal/provider/ratelimit"
	"marketpulse/internal/scheduler"
)

// Set is everything built from the providers section of the config.
type Set struct {
	Sources []scheduler.Source
	// Stream is nil unless the trade stream is enabled.
	Stream provider.Streamer
	// Listing backs the instrument catalog.
	Listing *binance.Client
	Policy  aggregate.Policy
}

// Build constructs every enabled provider. Each gets its own rate limiter on
// top of the shared HTTP client.
func Build(cfg config.Config, log logrus.FieldLogger) (Set, error) {
	shared := httpx.New(cfg.HTTP.Timeout, log)
	if cfg.HTTP.UserAgent != "" {
		shared.UserAgent = cfg.HTTP.UserAgent
	}
	gate := func(p config.Provider) provider.HTTPClient {
		return ratelimit.Wrap(shared, p.MaxRequestsPerMinute, p.Burst, p.MinRequestInterval)
	}

	set := Set{Policy: aggregate.Policy{
		DefaultStaleAfter: cfg.Providers.Binance.Threshold(),
		StaleAfter:        make(map[string]time.Duration),
	}}
	add := func(c provider.Client, p config.Provider) error {
		kinds, err := parseKinds(c, p.Kinds)
		if err != nil {
			return err
		}
		set.Sources = append(set.Sources, scheduler.Source{Client: c, Interval: p.Interval, Kinds: kinds})
		set.Policy.StaleAfter[string(c.ID())] = p.Threshold()
		return nil
	}

	ps := cfg.Providers
	set.Listing = binance.New(binanceOptions(ps.Binance, gate(ps.Binance))...)
	if ps.Binance.Enabled {
		if err := add(set.Listing, ps.Binance); err != nil {
			return Set{}, err
		}
	}
	if ps.BinanceDominance.Enabled {
		spot := binance.New(binanceOptions(ps.BinanceDominance, gate(ps.BinanceDominance))...)
		if err := add(binance.NewDominanceEstimator(spot), ps.BinanceDominance); err != nil {
			return Set{}, err
		}
	}
	if ps.BinanceFutures.Enabled {
		opts := []binancefutures.Option{binancefutures.WithHTTPClient(gate(ps.BinanceFutures))}
		if ps.BinanceFutures.BaseURL != "" {
			opts = append(opts, binancefutures.WithBaseURL(ps.BinanceFutures.BaseURL))
		}
		if err := add(binancefutures.New(opts...), ps.BinanceFutures); err != nil {
			return Set{}, err
		}
	}
	if ps.CoinGecko.Enabled {
		opts := []coingecko.Option{
			coingecko.WithHTTPClient(gate(ps.CoinGecko)),
			coingecko.WithAPIKey(ps.CoinGecko.APIKey),
		}
		if ps.CoinGecko.BaseURL != "" {
			opts = append(opts, coingecko.WithBaseURL(ps.CoinGecko.BaseURL))
		}
		if err := add(coingecko.New(opts...), ps.CoinGecko); err != nil {
			return Set{}, err
		}
	}
	if ps.BlockchainInfo.Enabled {
		opts := []blockchaininfo.Option{blockchaininfo.WithHTTPClient(gate(ps.BlockchainInfo))}
		if ps.BlockchainInfo.BaseURL != "" {
			opts = append(opts, blockchaininfo.WithBaseURL(ps.BlockchainInfo.BaseURL))
		}
		if err := add(blockchaininfo.New(opts...), ps.BlockchainInfo); err != nil {
			return Set{}, err
		}
	}

	if cfg.Stream.Enabled {
		opts := []binance.StreamOption{binance.WithReadTimeout(cfg.Stream.ReadTimeout)}
		if cfg.Stream.URL != "" {
			opts = append(opts, binance.WithStreamURL(cfg.Stream.URL))
		}
		set.Stream = binance.NewTradeStream(opts...)
		set.Policy.StaleAfter[string(binance.StreamID)] = ps.Binance.Threshold()
	}

	if len(set.Sources) == 0 && set.Stream == nil {
		return Set{}, fmt.Errorf("no providers enabled")
	}
	return set, nil
}

func binanceOptions(p config.Provider, hc provider.HTTPClient) []binance.Option {
	opts := []binance.Option{binance.WithHTTPClient(hc)}
	if p.BaseURL != "" {
		opts = append(opts, binance.WithBaseURL(p.BaseURL))
	}
	return opts
}

// parseKinds validates configured kind names against what c implements.
func parseKinds(c provider.Client, names []string) ([]provider.Kind, error) {
	if len(names) == 0 {
		return nil, nil
	}
	supported := provider.Capabilities(c)
	kinds := make([]provider.Kind, 0, len(names))
	for _, n := range names {
		k := provider.Kind(n)
		if !slices.Contains(supported, k) {
			return nil, fmt.Errorf("providers.%s: kind %q not supported (have %v)", c.ID(), n, supported)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
