// Package coingecko is a client for the CoinGecko global market endpoint.
package coingecko

import (
	"context"
	"net/http"
	"strings"
	"time"

	"marketpulse/internal/market"
	"marketpulse/internal/provider"
)

const (
	ID provider.ID = "coingecko"

	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	// demoKeyHeader authenticates demo-plan API keys.
	demoKeyHeader = "x-cg-demo-api-key"
)

type Client struct {
	baseURL    string
	httpClient provider.HTTPClient
	header     http.Header
	now        func() time.Time
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

func WithHTTPClient(httpClient provider.HTTPClient) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithAPIKey sends key with every request. Empty keys are ignored.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if key != "" {
			c.header.Set(demoKeyHeader, key)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(options ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		now:        time.Now,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) ID() provider.ID { return ID }

// FetchDominance returns the global market payload. Market-cap percentages for
// every asset are included; the normalizer picks inst's base asset.
func (c *Client) FetchDominance(ctx context.Context, inst market.Instrument) (provider.Observation, error) {
	if inst.Base == "" {
		return provider.Observation{}, provider.Unsupported(ID, provider.KindDominance, "missing base asset")
	}
	body, err := provider.Get(ctx, c.httpClient, ID, c.baseURL+"/global", c.header)
	if err != nil {
		return provider.Observation{}, err
	}
	return provider.Observation{
		Provider:   ID,
		Kind:       provider.KindDominance,
		Format:     provider.FormatCoinGeckoGlobal,
		Instrument: inst,
		FetchedAt:  c.now().UTC(),
		Payload:    body,
	}, nil
}
