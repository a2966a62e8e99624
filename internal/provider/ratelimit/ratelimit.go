// Package ratelimit gates outbound provider requests so each upstream's
// published request budget is respected.
package ratelimit

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"marketpulse/internal/provider"
)

// Client wraps an HTTPClient and waits for the limiter before every request.
// Waiting honours the request context.
type Client struct {
	Next    provider.HTTPClient
	Limiter *rate.Limiter
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	return c.Next.Do(req)
}

// NewTokenBucket allows perMinute requests per minute with the given burst.
// The bucket starts full.
func NewTokenBucket(perMinute int, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)
}

// NewMinInterval allows one request per interval.
func NewMinInterval(interval time.Duration) *rate.Limiter {
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Wrap prefers a token bucket when perMinute is set, otherwise a minimum
// interval, otherwise returns next unchanged.
func Wrap(next provider.HTTPClient, perMinute, burst int, minInterval time.Duration) provider.HTTPClient {
	switch {
	case perMinute > 0:
		return &Client{Next: next, Limiter: NewTokenBucket(perMinute, burst)}
	case minInterval > 0:
		return &Client{Next: next, Limiter: NewMinInterval(minInterval)}
	default:
		return next
	}
}
