// Package circuitbreaker implements the per-webhook breaker state machine.
//
// The breaker itself is stateless; the state lives on the webhook's health
// fields and is persisted through WebhookStore.UpdateHealth, so every worker
// lane and process observes the same breaker. Callers mutate the webhook
// inside an UpdateHealth apply func to keep transitions atomic.
package circuitbreaker

import (
	"time"

	"github.com/hookhub/relay/internal/models"
)

const (
	DefaultFailureThreshold  = 5
	DefaultCooldown          = 60 * time.Second
	DefaultHalfOpenTestLimit = 3
)

type Breaker struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker from CLOSED.
	FailureThreshold int
	// Cooldown is how long an OPEN breaker rejects traffic before probing.
	Cooldown time.Duration
	// HalfOpenTestLimit caps how many probe deliveries HALF_OPEN admits
	// before the first one resolves.
	HalfOpenTestLimit int
}

func New(failureThreshold int, cooldown time.Duration, halfOpenTestLimit int) *Breaker {
	b := &Breaker{
		FailureThreshold:  failureThreshold,
		Cooldown:          cooldown,
		HalfOpenTestLimit: halfOpenTestLimit,
	}
	if b.FailureThreshold <= 0 {
		b.FailureThreshold = DefaultFailureThreshold
	}
	if b.Cooldown <= 0 {
		b.Cooldown = DefaultCooldown
	}
	if b.HalfOpenTestLimit <= 0 {
		b.HalfOpenTestLimit = DefaultHalfOpenTestLimit
	}
	return b
}

// AllowRequest reports whether a delivery may proceed, advancing
// OPEN → HALF_OPEN once the cooldown has elapsed. In HALF_OPEN each
// admission is counted against HalfOpenTestLimit.
func (b *Breaker) AllowRequest(webhook *models.Webhook, now time.Time) bool {
	switch webhook.CircuitState {
	case models.CircuitStateOpen:
		if webhook.CircuitOpenedAt == nil || now.Sub(*webhook.CircuitOpenedAt) >= b.Cooldown {
			webhook.CircuitState = models.CircuitStateHalfOpen
			webhook.HalfOpenTests = 1
			return true
		}
		return false
	case models.CircuitStateHalfOpen:
		if webhook.HalfOpenTests < b.HalfOpenTestLimit {
			webhook.HalfOpenTests++
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess registers a successful delivery. A success in HALF_OPEN
// closes the breaker; a success while OPEN does not change the state, since
// no delivery should have been admitted.
func (b *Breaker) RecordSuccess(webhook *models.Webhook) {
	webhook.TotalSuccesses++
	switch webhook.CircuitState {
	case models.CircuitStateHalfOpen:
		webhook.ConsecutiveFailures = 0
		b.close(webhook)
	case models.CircuitStateClosed:
		webhook.ConsecutiveFailures = 0
	}
}

// RecordFailure registers a failed delivery. A failure in HALF_OPEN reopens
// the breaker immediately; in CLOSED the breaker opens once the consecutive
// failure count reaches the threshold; in OPEN only the counters move.
func (b *Breaker) RecordFailure(webhook *models.Webhook, now time.Time) {
	webhook.TotalFailures++
	webhook.ConsecutiveFailures++
	failedAt := now
	webhook.LastFailureTime = &failedAt

	switch webhook.CircuitState {
	case models.CircuitStateHalfOpen:
		b.open(webhook, now)
	case models.CircuitStateClosed:
		if webhook.ConsecutiveFailures >= b.FailureThreshold {
			b.open(webhook, now)
		}
	}
}

// Reset force-closes the breaker and clears the failure streak. Used by the
// manual resume operation.
func (b *Breaker) Reset(webhook *models.Webhook) {
	webhook.ConsecutiveFailures = 0
	b.close(webhook)
}

func (b *Breaker) open(webhook *models.Webhook, now time.Time) {
	openedAt := now
	webhook.CircuitState = models.CircuitStateOpen
	webhook.CircuitOpenedAt = &openedAt
	webhook.HalfOpenTests = 0
}

func (b *Breaker) close(webhook *models.Webhook) {
	webhook.CircuitState = models.CircuitStateClosed
	webhook.CircuitOpenedAt = nil
	webhook.HalfOpenTests = 0
}
