package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedQuery marks a query the provider cannot answer for this
	// instrument/timeframe. Retrying will not help.
	ErrUnsupportedQuery = errors.New("unsupported query")
	// ErrProviderUnavailable marks an expected, transient upstream failure.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

type UnsupportedQueryError struct {
	Provider ID
	Kind     Kind
	Reason   string
}

func (e *UnsupportedQueryError) Error() string {
	return fmt.Sprintf("%s %s: unsupported query: %s", e.Provider, e.Kind, e.Reason)
}

func (e *UnsupportedQueryError) Is(target error) bool { return target == ErrUnsupportedQuery }

func Unsupported(id ID, kind Kind, reason string) error {
	return &UnsupportedQueryError{Provider: id, Kind: kind, Reason: reason}
}

type UnavailableError struct {
	Provider ID
	Cause    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: provider unavailable: %v", e.Provider, e.Cause)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

func (e *UnavailableError) Is(target error) bool { return target == ErrProviderUnavailable }

func Unavailable(id ID, cause error) error {
	return &UnavailableError{Provider: id, Cause: cause}
}

// StatusError is the cause of an UnavailableError produced by a non-2xx
// response. Body is truncated.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code: %d: %s", e.StatusCode, e.Body)
}
