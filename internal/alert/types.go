// Package alert notifies operators when delivery gives up on an event or a
// webhook's circuit opens. Notifications go to an HTTP callback, a pub/sub
// topic, or both, and are debounced per webhook so a flapping endpoint does
// not flood the channel.
package alert

import (
	"time"

	"github.com/hookhub/relay/internal/models"
)

const (
	TopicEscalation    = "alert.webhook.escalated"
	TopicCircuitOpened = "alert.webhook.circuit_opened"

	DefaultDebounceInterval = time.Minute
)

// Alert is any notification payload the monitor can send.
type Alert interface {
	AlertTopic() string
	AlertWebhookID() string
}

// EscalationData carries the context of an ESCALATE decision.
type EscalationData struct {
	Webhook        *models.Webhook             `json:"webhook"`
	Event          *models.Event               `json:"event"`
	Classification *models.ErrorClassification `json:"classification,omitempty"`
}

// EscalationAlert is sent when the classifier decides an error needs a human.
type EscalationAlert struct {
	Topic     string         `json:"topic"`
	Timestamp time.Time      `json:"timestamp"`
	Data      EscalationData `json:"data"`
}

func NewEscalationAlert(data EscalationData) EscalationAlert {
	return EscalationAlert{
		Topic:     TopicEscalation,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func (a EscalationAlert) AlertTopic() string { return a.Topic }

func (a EscalationAlert) AlertWebhookID() string {
	if a.Data.Webhook == nil {
		return ""
	}
	return a.Data.Webhook.ID
}

// CircuitOpenedData carries the state of a webhook whose breaker just opened.
type CircuitOpenedData struct {
	Webhook             *models.Webhook `json:"webhook"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	OpenedAt            time.Time       `json:"opened_at"`
}

// CircuitOpenedAlert is sent on a CLOSED (or HALF_OPEN) to OPEN transition.
type CircuitOpenedAlert struct {
	Topic     string            `json:"topic"`
	Timestamp time.Time         `json:"timestamp"`
	Data      CircuitOpenedData `json:"data"`
}

func NewCircuitOpenedAlert(data CircuitOpenedData) CircuitOpenedAlert {
	return CircuitOpenedAlert{
		Topic:     TopicCircuitOpened,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func (a CircuitOpenedAlert) AlertTopic() string { return a.Topic }

func (a CircuitOpenedAlert) AlertWebhookID() string {
	if a.Data.Webhook == nil {
		return ""
	}
	return a.Data.Webhook.ID
}

// AlertConfig holds configuration for the alert system.
type AlertConfig struct {
	// CallbackURL is the HTTP endpoint alerts are POSTed to. Empty disables
	// the HTTP notifier.
	CallbackURL string
	// BearerToken, when set, is sent as an Authorization header on callbacks.
	BearerToken string
	// TopicURL is a gocloud.dev pub/sub topic URL (mem://, rabbit://).
	// Empty disables the pub/sub notifier.
	TopicURL string
	// DebounceInterval is the minimum time between alerts for the same
	// webhook and topic.
	DebounceInterval time.Duration
}
