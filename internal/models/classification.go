package models

import (
	"fmt"
	"time"
)

// Decision is the classifier verdict for a failed delivery attempt.
type Decision string

const (
	DecisionRetry         Decision = "RETRY"
	DecisionFailPermanent Decision = "FAIL_PERMANENT"
	DecisionPauseWebhook  Decision = "PAUSE_WEBHOOK"
	DecisionEscalate      Decision = "ESCALATE"
)

func (d Decision) Valid() bool {
	switch d {
	case DecisionRetry, DecisionFailPermanent, DecisionPauseWebhook, DecisionEscalate:
		return true
	}
	return false
}

// ParseDecision converts an external string (config, advisor response) into
// a Decision.
func ParseDecision(s string) (Decision, error) {
	d := Decision(s)
	if !d.Valid() {
		return "", fmt.Errorf("invalid decision: %q", s)
	}
	return d, nil
}

// ErrorType is the derived failure tag used in explanations and advisor
// requests.
type ErrorType string

const (
	ErrorTypeRateLimit ErrorType = "RATE_LIMIT"
	ErrorTypeServer    ErrorType = "SERVER_ERROR"
	ErrorTypeAuth      ErrorType = "AUTH_ERROR"
	ErrorTypeClient    ErrorType = "CLIENT_ERROR"
	ErrorTypeTimeout   ErrorType = "TIMEOUT_ERROR"
	ErrorTypeDNS       ErrorType = "DNS_ERROR"
	ErrorTypeNetwork   ErrorType = "NETWORK_ERROR"
	ErrorTypeUnknown   ErrorType = "UNKNOWN_ERROR"
)

// ErrorClassification is the append-only audit row written on every failed
// delivery attempt. Rows are never updated.
type ErrorClassification struct {
	ID                string     `json:"id"`
	EventID           string     `json:"event_id"`
	WebhookID         string     `json:"webhook_id"`
	HTTPStatusCode    int        `json:"http_status_code"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	Decision          Decision   `json:"decision"`
	Explanation       string     `json:"explanation"`
	ErrorType         ErrorType  `json:"error_type"`
	RetryAfterSeconds *int       `json:"retry_after_seconds,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}
