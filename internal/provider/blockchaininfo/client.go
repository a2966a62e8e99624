// Package blockchaininfo is a client for the blockchain.com Bitcoin network
// statistics API.
package blockchaininfo

import (
	"context"
	"net/http"
	"strings"
	"time"

	"marketpulse/internal/market"
	"marketpulse/internal/provider"
)

const (
	ID provider.ID = "blockchaininfo"

	DefaultBaseURL = "https://api.blockchain.info"
)

// chainAsset is the only base asset this provider has statistics for.
const chainAsset = "BTC"

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

// FetchChainStats returns network statistics. Only BTC-based instruments are
// supported.
func (c *Client) FetchChainStats(ctx context.Context, inst market.Instrument) (provider.Observation, error) {
	if inst.Base != chainAsset {
		return provider.Observation{}, provider.Unsupported(ID, provider.KindChainStats, "no chain statistics for "+inst.Base)
	}
	body, err := provider.Get(ctx, c.httpClient, ID, c.baseURL+"/stats", c.header)
	if err != nil {
		return provider.Observation{}, err
	}
	return provider.Observation{
		Provider:   ID,
		Kind:       provider.KindChainStats,
		Format:     provider.FormatBlockchainStats,
		Instrument: inst,
		FetchedAt:  c.now().UTC(),
		Payload:    body,
	}, nil
}
