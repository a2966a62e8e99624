package provider

import (
	"context"
	"time"

	"marketpulse/internal/market"
)

// ID names a provider client, e.g. "binance".
type ID string

// Kind is one capability of a provider.
type Kind string

const (
	KindSpot         Kind = "spot"
	KindCandles      Kind = "candles"
	KindDominance    Kind = "dominance"
	KindChainStats   Kind = "chain_stats"
	KindOpenInterest Kind = "open_interest"
	KindFunding      Kind = "funding"
	KindTrade        Kind = "trade"
)

// Format is the closed set of provider-native payload variants. The normalizer
// has exactly one decoder per Format.
type Format string

const (
	FormatBinanceTicker24h    Format = "binance.ticker_24h"
	FormatBinanceTickerAll    Format = "binance.ticker_24h_all"
	FormatBinanceKlines       Format = "binance.klines"
	FormatBinanceTrade        Format = "binance.trade"
	FormatBinanceOpenInterest Format = "binancefutures.open_interest"
	FormatBinanceFundingRate  Format = "binancefutures.funding_rate"
	FormatCoinGeckoGlobal     Format = "coingecko.global"
	FormatBlockchainStats     Format = "blockchaininfo.stats"
)

// Observation is a provider-native payload tagged with where and when it came
// from. It only lives between fetch and normalization.
type Observation struct {
	Provider   ID
	Kind       Kind
	Format     Format
	Instrument market.Instrument
	Timeframe  market.Timeframe
	FetchedAt  time.Time
	Payload    []byte
}

// Client is the common part of every provider. A client additionally
// implements the subset of capability interfaces below that it supports.
type Client interface {
	ID() ID
}

type SpotFetcher interface {
	Client
	FetchSpot(ctx context.Context, inst market.Instrument) (Observation, error)
}

type CandleFetcher interface {
	Client
	FetchCandles(ctx context.Context, inst market.Instrument, tf market.Timeframe) (Observation, error)
}

type DominanceFetcher interface {
	Client
	FetchDominance(ctx context.Context, inst market.Instrument) (Observation, error)
}

type ChainStatsFetcher interface {
	Client
	FetchChainStats(ctx context.Context, inst market.Instrument) (Observation, error)
}

type OpenInterestFetcher interface {
	Client
	FetchOpenInterest(ctx context.Context, inst market.Instrument) (Observation, error)
}

type FundingFetcher interface {
	Client
	FetchFundingRate(ctx context.Context, inst market.Instrument) (Observation, error)
}

// Capabilities lists the polled kinds c implements, in a stable order.
func Capabilities(c Client) []Kind {
	var out []Kind
	if _, ok := c.(SpotFetcher); ok {
		out = append(out, KindSpot)
	}
	if _, ok := c.(CandleFetcher); ok {
		out = append(out, KindCandles)
	}
	if _, ok := c.(DominanceFetcher); ok {
		out = append(out, KindDominance)
	}
	if _, ok := c.(ChainStatsFetcher); ok {
		out = append(out, KindChainStats)
	}
	if _, ok := c.(OpenInterestFetcher); ok {
		out = append(out, KindOpenInterest)
	}
	if _, ok := c.(FundingFetcher); ok {
		out = append(out, KindFunding)
	}
	return out
}

// Fetch dispatches kind to the matching capability of c for the given
// selection. Kinds c does not implement fail with UnsupportedQuery.
func Fetch(ctx context.Context, c Client, kind Kind, sel market.Selection) (Observation, error) {
	switch kind {
	case KindSpot:
		if f, ok := c.(SpotFetcher); ok {
			return f.FetchSpot(ctx, sel.Instrument)
		}
	case KindCandles:
		if f, ok := c.(CandleFetcher); ok {
			return f.FetchCandles(ctx, sel.Instrument, sel.Timeframe)
		}
	case KindDominance:
		if f, ok := c.(DominanceFetcher); ok {
			return f.FetchDominance(ctx, sel.Instrument)
		}
	case KindChainStats:
		if f, ok := c.(ChainStatsFetcher); ok {
			return f.FetchChainStats(ctx, sel.Instrument)
		}
	case KindOpenInterest:
		if f, ok := c.(OpenInterestFetcher); ok {
			return f.FetchOpenInterest(ctx, sel.Instrument)
		}
	case KindFunding:
		if f, ok := c.(FundingFetcher); ok {
			return f.FetchFundingRate(ctx, sel.Instrument)
		}
	}
	return Observation{}, Unsupported(c.ID(), kind, "capability not implemented")
}

// Streamer pushes observations for inst until ctx is done or the upstream
// connection fails. It returns ctx.Err() on cancellation and a
// ProviderUnavailable error otherwise.
type Streamer interface {
	Client
	Stream(ctx context.Context, inst market.Instrument, emit func(Observation)) error
}
