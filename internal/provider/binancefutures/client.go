// Package binancefutures is a client for the Binance USDⓈ-M futures API
// (open interest and funding rate).
package binancefutures

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"marketpulse/internal/market"
	"marketpulse/internal/provider"
)

const (
	ID provider.ID = "binance-futures"

	DefaultBaseURL = "https://fapi.binance.com"

	codeInvalidSymbol = -1121
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

func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
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

// FetchOpenInterest returns the current open interest of the perpetual
// contract for inst.
func (c *Client) FetchOpenInterest(ctx context.Context, inst market.Instrument) (provider.Observation, error) {
	return c.fetch(ctx, provider.KindOpenInterest, provider.FormatBinanceOpenInterest, inst, "/fapi/v1/openInterest", nil)
}

// FetchFundingRate returns the most recent funding rate entry for inst.
func (c *Client) FetchFundingRate(ctx context.Context, inst market.Instrument) (provider.Observation, error) {
	q := url.Values{}
	q.Set("limit", "1")
	return c.fetch(ctx, provider.KindFunding, provider.FormatBinanceFundingRate, inst, "/fapi/v1/fundingRate", q)
}

func (c *Client) fetch(ctx context.Context, kind provider.Kind, format provider.Format, inst market.Instrument, path string, q url.Values) (provider.Observation, error) {
	if err := inst.Validate(); err != nil {
		return provider.Observation{}, provider.Unsupported(ID, kind, err.Error())
	}
	if q == nil {
		q = url.Values{}
	}
	q.Set("symbol", inst.Symbol())
	body, err := provider.Get(ctx, c.httpClient, ID, c.baseURL+path+"?"+q.Encode(), c.header)
	if err != nil {
		if se, ok := provider.AsStatus(err); ok && se.StatusCode == http.StatusBadRequest &&
			gjson.Get(se.Body, "code").Int() == codeInvalidSymbol {
			return provider.Observation{}, provider.Unsupported(ID, kind, "no perpetual contract for "+inst.Symbol())
		}
		return provider.Observation{}, err
	}
	return provider.Observation{
		Provider:   ID,
		Kind:       kind,
		Format:     format,
		Instrument: inst,
		FetchedAt:  c.now().UTC(),
		Payload:    body,
	}, nil
}
