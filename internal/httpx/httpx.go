// Package httpx is the shared outbound HTTP client for provider calls.
package httpx

import (
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultUserAgent = "marketpulse/1.0"

// Client adds default headers and debug logging to an http.Client. It
// satisfies provider.HTTPClient.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Headers   map[string]string
	Log       logrus.FieldLogger
}

// New returns a client with a transport tuned for a handful of upstream hosts
// polled on short cadences.
func New(timeout time.Duration, log logrus.FieldLogger) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       20,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 5 * time.Second,
	}
	return &Client{
		HTTP:      &http.Client{Timeout: timeout, Transport: transport},
		UserAgent: DefaultUserAgent,
		Log:       log,
	}
}

// Do sends req. Cancellation comes from req.Context().
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if c.Log != nil {
		entry := c.Log.WithFields(logrus.Fields{
			"method":   req.Method,
			"host":     req.URL.Host,
			"path":     req.URL.Path,
			"duration": time.Since(start).Round(time.Millisecond),
		})
		if err != nil {
			entry.WithError(err).Debug("upstream request failed")
		} else {
			entry.WithField("status", resp.StatusCode).Debug("upstream request")
		}
	}
	return resp, err
}
