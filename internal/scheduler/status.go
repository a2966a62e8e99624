package scheduler

import (
	"time"

	"marketpulse/internal/provider"
)

// State is a provider's position in its refresh cycle.
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
	StateBackoff  State = "backoff"
)

// ProviderStatus is a point-in-time report for one provider.
type ProviderStatus struct {
	Provider            provider.ID     `json:"provider"`
	State               State           `json:"state"`
	Interval            string          `json:"interval,omitempty"`
	Kinds               []provider.Kind `json:"kinds"`
	Unsupported         []provider.Kind `json:"unsupported,omitempty"`
	LastAttempt         time.Time       `json:"last_attempt"`
	LastSuccess         time.Time       `json:"last_success"`
	LastError           string          `json:"last_error,omitempty"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	BackoffUntil        time.Time       `json:"backoff_until"`
}
