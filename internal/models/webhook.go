package models

import (
	"time"
)

// CircuitState is the per-webhook circuit breaker state, persisted alongside
// the webhook so it survives restarts.
type CircuitState string

const (
	CircuitStateClosed   CircuitState = "CLOSED"
	CircuitStateOpen     CircuitState = "OPEN"
	CircuitStateHalfOpen CircuitState = "HALF_OPEN"
)

func (s CircuitState) Valid() bool {
	switch s {
	case CircuitStateClosed, CircuitStateOpen, CircuitStateHalfOpen:
		return true
	}
	return false
}

// Webhook is a subscriber endpoint registered with a target URL and opaque
// metadata. The health fields are owned by the delivery core and are only
// mutated through WebhookStore.UpdateHealth.
type Webhook struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Health fields, mutated by the delivery worker after each attempt.
	PausedUntil         *time.Time   `json:"paused_until,omitempty"`
	CircuitState        CircuitState `json:"circuit_state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	HalfOpenTests       int          `json:"half_open_tests"`
	CircuitOpenedAt     *time.Time   `json:"circuit_opened_at,omitempty"`
	LastFailureTime     *time.Time   `json:"last_failure_time,omitempty"`
	TotalSuccesses      int64        `json:"total_successes"`
	TotalFailures       int64        `json:"total_failures"`
}

// Paused reports whether deliveries to the webhook are currently suspended.
func (w *Webhook) Paused(now time.Time) bool {
	return w.PausedUntil != nil && w.PausedUntil.After(now)
}

// SuccessRate returns the lifetime delivery success rate in percent, or -1
// when no attempts have been recorded yet.
func (w *Webhook) SuccessRate() float64 {
	total := w.TotalSuccesses + w.TotalFailures
	if total == 0 {
		return -1
	}
	return float64(w.TotalSuccesses) / float64(total) * 100
}

// RecentFailureRate approximates the failure rate fed to the advisor. It is
// derived from lifetime counters; a fresh webhook reports 0.
func (w *Webhook) RecentFailureRate() float64 {
	total := w.TotalSuccesses + w.TotalFailures
	if total == 0 {
		return 0
	}
	return float64(w.TotalFailures) / float64(total)
}
