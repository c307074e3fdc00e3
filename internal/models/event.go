package models

import (
	"encoding/json"
	"time"
)

// EventStatus tracks an event through the delivery state machine.
//
// PENDING → PROCESSING → (SUCCESS | FAILURE | RETRY_PENDING | PAUSED).
// RETRY_PENDING flips back to PENDING when the retry scheduler re-enqueues.
// PAUSED flips back to PENDING on an external resume. SUCCESS and FAILURE
// are terminal.
type EventStatus string

const (
	EventStatusPending      EventStatus = "PENDING"
	EventStatusProcessing   EventStatus = "PROCESSING"
	EventStatusRetryPending EventStatus = "RETRY_PENDING"
	EventStatusSuccess      EventStatus = "SUCCESS"
	EventStatusFailure      EventStatus = "FAILURE"
	EventStatusPaused       EventStatus = "PAUSED"
)

func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusPending, EventStatusProcessing, EventStatusRetryPending,
		EventStatusSuccess, EventStatusFailure, EventStatusPaused:
		return true
	}
	return false
}

// Terminal reports whether the status is final. The core never transitions
// an event out of a terminal status.
func (s EventStatus) Terminal() bool {
	return s == EventStatusSuccess || s == EventStatusFailure
}

// EventStatuses lists every status, for index maintenance and recovery scans.
var EventStatuses = []EventStatus{
	EventStatusPending,
	EventStatusProcessing,
	EventStatusRetryPending,
	EventStatusSuccess,
	EventStatusFailure,
	EventStatusPaused,
}

// Event is one deliverable payload bound to a webhook; the unit of work of
// the queue and the delivery worker.
type Event struct {
	ID            string          `json:"id"`
	WebhookID     string          `json:"webhook_id"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Status        EventStatus     `json:"status"`
	RetryCount    int             `json:"retry_count"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
