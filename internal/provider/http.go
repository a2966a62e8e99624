package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MaxBodyBytes caps any upstream response. The all-symbol ticker is the
// largest payload we read.
const MaxBodyBytes = 16 << 20

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=providertest -destination=providertest/mock_http_client.go -source=http.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Get performs a GET against rawURL and returns the response body. Every
// failure is reported as ProviderUnavailable for id; non-2xx responses carry a
// *StatusError cause so callers can reclassify them.
func Get(ctx context.Context, hc HTTPClient, id ID, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, Unavailable(id, fmt.Errorf("creating request: %w", err))
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	res, err := hc.Do(req)
	if err != nil {
		return nil, Unavailable(id, fmt.Errorf("performing request: %w", err))
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		return nil, Unavailable(id, &StatusError{StatusCode: res.StatusCode, Body: string(b)})
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, Unavailable(id, fmt.Errorf("reading body: %w", err))
	}
	if len(body) > MaxBodyBytes {
		return nil, Unavailable(id, errors.New("response body too large"))
	}
	return body, nil
}

// AsStatus returns the status error behind err, if any.
func AsStatus(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
