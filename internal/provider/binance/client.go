// Package binance is a client for the Binance spot REST API and trade stream.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"marketpulse/internal/market"
	"marketpulse/internal/provider"
)

const (
	ID          provider.ID = "binance"
	DominanceID provider.ID = "binance-dominance"

	DefaultBaseURL = "https://api.binance.com"

	// codeInvalidSymbol is returned with HTTP 400 for unknown symbols.
	codeInvalidSymbol = -1121
	maxKlines         = 1000
)

var intervals = map[market.Interval]string{
	market.Interval1m:  "1m",
	market.Interval5m:  "5m",
	market.Interval15m: "15m",
	market.Interval1h:  "1h",
	market.Interval4h:  "4h",
	market.Interval1d:  "1d",
	market.Interval1w:  "1w",
}

// Client is a client for the Binance spot API.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP client.
	httpClient provider.HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	now    func() time.Time
}

// Option is a configuration option for the Binance client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient provider.HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithClock overrides the clock used for FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a new Binance spot client.
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

// FetchSpot returns the 24h rolling ticker for inst.
func (c *Client) FetchSpot(ctx context.Context, inst market.Instrument) (provider.Observation, error) {
	if err := inst.Validate(); err != nil {
		return provider.Observation{}, provider.Unsupported(ID, provider.KindSpot, err.Error())
	}
	q := url.Values{}
	q.Set("symbol", inst.Symbol())
	body, err := c.get(ctx, ID, provider.KindSpot, "/api/v3/ticker/24hr", q)
	if err != nil {
		return provider.Observation{}, err
	}
	return c.observation(ID, provider.KindSpot, provider.FormatBinanceTicker24h, inst, market.Timeframe{}, body), nil
}

// FetchCandles returns the most recent tf.Lookback klines for inst.
func (c *Client) FetchCandles(ctx context.Context, inst market.Instrument, tf market.Timeframe) (provider.Observation, error) {
	if err := inst.Validate(); err != nil {
		return provider.Observation{}, provider.Unsupported(ID, provider.KindCandles, err.Error())
	}
	iv, ok := intervals[tf.Interval]
	if !ok {
		return provider.Observation{}, provider.Unsupported(ID, provider.KindCandles, fmt.Sprintf("interval %q", tf.Interval))
	}
	if tf.Lookback < 1 || tf.Lookback > maxKlines {
		return provider.Observation{}, provider.Unsupported(ID, provider.KindCandles, fmt.Sprintf("lookback %d not in [1,%d]", tf.Lookback, maxKlines))
	}
	q := url.Values{}
	q.Set("symbol", inst.Symbol())
	q.Set("interval", iv)
	q.Set("limit", strconv.Itoa(tf.Lookback))
	body, err := c.get(ctx, ID, provider.KindCandles, "/api/v3/klines", q)
	if err != nil {
		return provider.Observation{}, err
	}
	return c.observation(ID, provider.KindCandles, provider.FormatBinanceKlines, inst, tf, body), nil
}

// ExchangeInstruments lists every pair currently in TRADING status.
func (c *Client) ExchangeInstruments(ctx context.Context) ([]market.Instrument, error) {
	body, err := c.get(ctx, ID, "exchange_info", "/api/v3/exchangeInfo", nil)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, provider.Unavailable(ID, fmt.Errorf("decoding exchange info: invalid json"))
	}
	symbols := gjson.GetBytes(body, "symbols")
	if !symbols.IsArray() {
		return nil, provider.Unavailable(ID, fmt.Errorf("decoding exchange info: missing symbols"))
	}
	out := make([]market.Instrument, 0, len(symbols.Array()))
	symbols.ForEach(func(_, s gjson.Result) bool {
		if st := s.Get("status"); st.Exists() && st.String() != "TRADING" {
			return true
		}
		inst := market.NewInstrument(s.Get("baseAsset").String(), s.Get("quoteAsset").String())
		if inst.Validate() == nil {
			out = append(out, inst)
		}
		return true
	})
	return out, nil
}

func (c *Client) allTickers(ctx context.Context, id provider.ID) ([]byte, error) {
	return c.get(ctx, id, provider.KindDominance, "/api/v3/ticker/24hr", nil)
}

func (c *Client) get(ctx context.Context, id provider.ID, kind provider.Kind, path string, q url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	body, err := provider.Get(ctx, c.httpClient, id, u, c.header)
	if err != nil {
		if se, ok := provider.AsStatus(err); ok && se.StatusCode == http.StatusBadRequest {
			if gjson.Get(se.Body, "code").Int() == codeInvalidSymbol {
				return nil, provider.Unsupported(id, kind, gjson.Get(se.Body, "msg").String())
			}
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) observation(id provider.ID, kind provider.Kind, format provider.Format, inst market.Instrument, tf market.Timeframe, body []byte) provider.Observation {
	return provider.Observation{
		Provider:   id,
		Kind:       kind,
		Format:     format,
		Instrument: inst,
		Timeframe:  tf,
		FetchedAt:  c.now().UTC(),
		Payload:    body,
	}
}
