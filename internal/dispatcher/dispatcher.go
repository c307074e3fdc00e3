// Package dispatcher drives events from the queue through delivery. A single
// dispatch loop polls the queue and hands each event to one of a fixed pool
// of lanes; every status transition is persisted before the next action that
// depends on it.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hookhub/relay/internal/alert"
	"github.com/hookhub/relay/internal/auditstore"
	"github.com/hookhub/relay/internal/backoff"
	"github.com/hookhub/relay/internal/circuitbreaker"
	"github.com/hookhub/relay/internal/classifier"
	"github.com/hookhub/relay/internal/deliveryclient"
	"github.com/hookhub/relay/internal/eventqueue"
	"github.com/hookhub/relay/internal/idgen"
	"github.com/hookhub/relay/internal/logging"
	"github.com/hookhub/relay/internal/models"
	"github.com/hookhub/relay/internal/scheduler"
	"go.uber.org/zap"
)

const (
	DefaultLanes        = 5
	DefaultPollInterval = 100 * time.Millisecond
	DefaultPauseWindow  = time.Hour

	// halfOpenDeferral delays events denied in HALF_OPEN, where the cooldown
	// has already elapsed and the breaker is waiting on an in-flight probe.
	halfOpenDeferral = time.Second
)

// Deliverer is satisfied by deliveryclient.Client.
type Deliverer interface {
	Deliver(ctx context.Context, webhook *models.Webhook, event *models.Event) (*deliveryclient.DeliveryResult, error)
}

// Classifier is satisfied by classifier.Classifier.
type Classifier interface {
	Classify(ctx context.Context, result *deliveryclient.DeliveryResult, evidence classifier.Context) classifier.Classification
}

type Config struct {
	Queue          eventqueue.Queue
	WebhookStore   models.WebhookStore
	EventStore     models.EventStore
	AuditStore     auditstore.AuditStore
	Client         Deliverer
	Classifier     Classifier
	Breaker        *circuitbreaker.Breaker
	RetryPolicy    *backoff.RetryPolicy
	RetryScheduler scheduler.Scheduler

	// Alerts is optional; nil disables escalation notifications.
	Alerts alert.AlertMonitor
	Logger *logging.Logger

	// Lanes is the number of events processed in parallel.
	Lanes        int
	PollInterval time.Duration
	// PauseWindow is how long a PAUSE_WEBHOOK decision suspends deliveries.
	PauseWindow time.Duration
}

type Dispatcher struct {
	queue          eventqueue.Queue
	webhooks       models.WebhookStore
	events         models.EventStore
	audit          auditstore.AuditStore
	client         Deliverer
	classifier     Classifier
	breaker        *circuitbreaker.Breaker
	retryPolicy    *backoff.RetryPolicy
	retryScheduler scheduler.Scheduler
	alerts         alert.AlertMonitor
	logger         *logging.Logger

	lanes        int
	pollInterval time.Duration
	pauseWindow  time.Duration
}

func New(cfg Config) (*Dispatcher, error) {
	if cfg.Queue == nil || cfg.WebhookStore == nil || cfg.EventStore == nil || cfg.AuditStore == nil {
		return nil, errors.New("dispatcher requires queue and stores")
	}
	if cfg.Client == nil || cfg.Classifier == nil || cfg.Breaker == nil || cfg.RetryPolicy == nil || cfg.RetryScheduler == nil {
		return nil, errors.New("dispatcher requires client, classifier, breaker, retry policy and scheduler")
	}

	d := &Dispatcher{
		queue:          cfg.Queue,
		webhooks:       cfg.WebhookStore,
		events:         cfg.EventStore,
		audit:          cfg.AuditStore,
		client:         cfg.Client,
		classifier:     cfg.Classifier,
		breaker:        cfg.Breaker,
		retryPolicy:    cfg.RetryPolicy,
		retryScheduler: cfg.RetryScheduler,
		alerts:         cfg.Alerts,
		logger:         cfg.Logger,
		lanes:          cfg.Lanes,
		pollInterval:   cfg.PollInterval,
		pauseWindow:    cfg.PauseWindow,
	}
	if d.logger == nil {
		d.logger = logging.NewNop()
	}
	if d.lanes <= 0 {
		d.lanes = DefaultLanes
	}
	if d.pollInterval <= 0 {
		d.pollInterval = DefaultPollInterval
	}
	if d.pauseWindow <= 0 {
		d.pauseWindow = DefaultPauseWindow
	}
	return d, nil
}

// Run polls the queue until ctx is canceled. Each dequeued event occupies
// one lane; on shutdown the loop stops dequeuing and waits for in-flight
// lanes to drain.
func (d *Dispatcher) Run(ctx context.Context) error {
	sem := make(chan struct{}, d.lanes)

dispatchLoop:
	for {
		if ctx.Err() != nil {
			break dispatchLoop
		}

		event, ok, err := d.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, eventqueue.ErrQueueClosed) || ctx.Err() != nil {
				break dispatchLoop
			}
			d.logger.Ctx(ctx).Error("dequeue failed", zap.Error(err))
			if !d.sleep(ctx) {
				break dispatchLoop
			}
			continue
		}
		if !ok {
			if !d.sleep(ctx) {
				break dispatchLoop
			}
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			// Shutdown raced the dequeue; put the event back.
			if err := d.queue.Enqueue(context.WithoutCancel(ctx), event); err != nil {
				d.logger.Ctx(ctx).Error("failed to requeue event on shutdown",
					zap.String("event_id", event.ID), zap.Error(err))
			}
			break dispatchLoop
		}

		go func(event *models.Event) {
			defer func() { <-sem }()
			// Detached from the dispatch context so shutdown does not abort
			// persistence mid-transition.
			d.Process(context.WithoutCancel(ctx), event)
		}(event)
	}

	// Drain the lanes.
	for n := 0; n < d.lanes; n++ {
		sem <- struct{}{}
	}

	return ctx.Err()
}

func (d *Dispatcher) sleep(ctx context.Context) bool {
	select {
	case <-time.After(d.pollInterval):
		return true
	case <-ctx.Done():
		return false
	}
}

// Process runs the per-event delivery procedure. Unexpected errors mark the
// event FAILURE with the error message as reason.
func (d *Dispatcher) Process(ctx context.Context, event *models.Event) {
	if err := d.handle(ctx, event); err != nil {
		d.logger.Ctx(ctx).Error("event processing failed",
			zap.String("event_id", event.ID),
			zap.String("webhook_id", event.WebhookID),
			zap.Error(err))
		if failErr := d.updateEventStatus(ctx, event, models.EventStatusFailure, err.Error()); failErr != nil {
			d.logger.Ctx(ctx).Error("failed to mark event failed",
				zap.String("event_id", event.ID),
				zap.Error(failErr))
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, event *models.Event) error {
	// The queued copy can go stale while it waits; the stored row is
	// authoritative for status and retry count.
	stored, err := d.events.RetrieveEvent(ctx, event.ID)
	if errors.Is(err, models.ErrEventNotFound) {
		d.logger.Ctx(ctx).Warn("dequeued event has no stored row",
			zap.String("event_id", event.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}
	*event = *stored

	// Terminal events are never reprocessed.
	if event.Status.Terminal() {
		return nil
	}

	now := time.Now()

	webhook, err := d.webhooks.RetrieveWebhook(ctx, event.WebhookID)
	if errors.Is(err, models.ErrWebhookNotFound) {
		return d.updateEventStatus(ctx, event, models.EventStatusFailure, "webhook not found")
	}
	if err != nil {
		return fmt.Errorf("load webhook: %w", err)
	}

	if webhook.Disabled || webhook.Paused(now) {
		return d.updateEventStatus(ctx, event, models.EventStatusPaused, "")
	}

	// Breaker gate. The OPEN to HALF_OPEN transition must be persisted, so
	// the decision runs inside the atomic health update.
	var allowed bool
	webhook, err = d.webhooks.UpdateHealth(ctx, webhook.ID, func(w *models.Webhook) error {
		allowed = d.breaker.AllowRequest(w, now)
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist breaker gate: %w", err)
	}
	if !allowed {
		if err := d.updateEventStatus(ctx, event, models.EventStatusRetryPending, ""); err != nil {
			return err
		}
		due := now.Add(d.breaker.Cooldown)
		if webhook.CircuitOpenedAt != nil {
			due = webhook.CircuitOpenedAt.Add(d.breaker.Cooldown)
		}
		// A HALF_OPEN denial means the cooldown is already behind us; a due
		// time in the past would just bounce the event off the scheduler.
		if !due.After(now) {
			due = now.Add(halfOpenDeferral)
		}
		d.logger.Ctx(ctx).Debug("delivery denied by circuit breaker",
			zap.String("event_id", event.ID),
			zap.String("webhook_id", webhook.ID),
			zap.Time("retry_at", due))
		return d.retryScheduler.Schedule(ctx, event.ID, due)
	}

	// PROCESSING is persisted before the POST goes out.
	if err := d.updateEventStatus(ctx, event, models.EventStatusProcessing, ""); err != nil {
		return err
	}

	result, err := d.client.Deliver(ctx, webhook, event)
	if err != nil {
		return fmt.Errorf("deliver: %w", err)
	}

	if result.Success {
		if _, err := d.webhooks.UpdateHealth(ctx, webhook.ID, func(w *models.Webhook) error {
			d.breaker.RecordSuccess(w)
			return nil
		}); err != nil {
			return fmt.Errorf("persist delivery success: %w", err)
		}
		d.logger.Ctx(ctx).Info("event delivered",
			zap.String("event_id", event.ID),
			zap.String("webhook_id", webhook.ID),
			zap.Int("status_code", result.StatusCode),
			zap.Duration("duration", result.Duration))
		return d.updateEventStatus(ctx, event, models.EventStatusSuccess, "")
	}

	return d.handleFailure(ctx, event, webhook, result)
}

func (d *Dispatcher) handleFailure(ctx context.Context, event *models.Event, webhook *models.Webhook, result *deliveryclient.DeliveryResult) error {
	// Failure stamps and retry delays count from the response, not from
	// dequeue; a Retry-After gap must survive a slow request.
	now := time.Now()

	// Classification sees the webhook health as it was before this failure.
	classification := d.classifier.Classify(ctx, result, classifier.Context{
		WebhookID:           webhook.ID,
		RetryCount:          event.RetryCount,
		RecentFailureRate:   webhook.RecentFailureRate(),
		TotalFailures:       webhook.TotalFailures,
		TotalSuccesses:      webhook.TotalSuccesses,
		ConsecutiveFailures: webhook.ConsecutiveFailures,
		CircuitState:        webhook.CircuitState,
	})

	row := &models.ErrorClassification{
		ID:                idgen.Classification(),
		EventID:           event.ID,
		WebhookID:         webhook.ID,
		HTTPStatusCode:    result.StatusCode,
		ErrorMessage:      result.ErrorMessage,
		Decision:          classification.Decision,
		Explanation:       classification.Explanation,
		ErrorType:         classification.ErrorType,
		RetryAfterSeconds: result.RetryAfterSeconds,
		CreatedAt:         now,
	}
	if err := d.audit.Insert(ctx, row); err != nil {
		// The audit trail is best effort; losing a row must not stall delivery.
		d.logger.Ctx(ctx).Error("failed to append classification row",
			zap.String("event_id", event.ID),
			zap.String("webhook_id", webhook.ID),
			zap.Error(err))
	}

	wasOpen := webhook.CircuitState == models.CircuitStateOpen
	webhook, err := d.webhooks.UpdateHealth(ctx, webhook.ID, func(w *models.Webhook) error {
		d.breaker.RecordFailure(w, now)
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist delivery failure: %w", err)
	}

	if !wasOpen && webhook.CircuitState == models.CircuitStateOpen && d.alerts != nil {
		openedAt := now
		if webhook.CircuitOpenedAt != nil {
			openedAt = *webhook.CircuitOpenedAt
		}
		if alertErr := d.alerts.HandleCircuitOpened(ctx, webhook, openedAt); alertErr != nil {
			d.logger.Ctx(ctx).Error("circuit opened alert failed",
				zap.String("webhook_id", webhook.ID),
				zap.Error(alertErr))
		}
	}

	d.logger.Ctx(ctx).Info("event delivery failed",
		zap.String("event_id", event.ID),
		zap.String("webhook_id", webhook.ID),
		zap.Int("status_code", result.StatusCode),
		zap.String("decision", string(classification.Decision)),
		zap.String("error_type", string(classification.ErrorType)),
		zap.Bool("advisor_used", classification.AdvisorUsed))

	switch classification.Decision {
	case models.DecisionRetry:
		if !d.retryPolicy.ShouldRetry(event.RetryCount) {
			return d.updateEventStatus(ctx, event, models.EventStatusFailure,
				fmt.Sprintf("retries exhausted: %s", classification.Explanation))
		}
		event.RetryCount++
		if err := d.updateEventStatus(ctx, event, models.EventStatusRetryPending, classification.Explanation); err != nil {
			return err
		}
		retryAfter := 0
		if result.RetryAfterSeconds != nil {
			retryAfter = *result.RetryAfterSeconds
		}
		delay := d.retryPolicy.DelayWithRetryAfter(event.RetryCount-1, retryAfter)
		return d.retryScheduler.Schedule(ctx, event.ID, now.Add(delay))

	case models.DecisionFailPermanent:
		return d.updateEventStatus(ctx, event, models.EventStatusFailure, classification.Explanation)

	case models.DecisionPauseWebhook:
		pausedUntil := now.Add(d.pauseWindow)
		if _, err := d.webhooks.UpdateHealth(ctx, webhook.ID, func(w *models.Webhook) error {
			w.PausedUntil = &pausedUntil
			return nil
		}); err != nil {
			return fmt.Errorf("pause webhook: %w", err)
		}
		return d.updateEventStatus(ctx, event, models.EventStatusPaused, classification.Explanation)

	case models.DecisionEscalate:
		if d.alerts != nil {
			if alertErr := d.alerts.HandleEscalation(ctx, alert.EscalationData{
				Webhook:        webhook,
				Event:          event,
				Classification: row,
			}); alertErr != nil {
				d.logger.Ctx(ctx).Error("escalation alert failed",
					zap.String("event_id", event.ID),
					zap.Error(alertErr))
			}
		}
		return d.updateEventStatus(ctx, event, models.EventStatusFailure,
			fmt.Sprintf("escalated: %s", classification.Explanation))
	}

	return fmt.Errorf("unknown decision %q", classification.Decision)
}

// HandleScheduledRetry is the scheduler exec callback. It flips a due
// RETRY_PENDING event back to PENDING, persists, then enqueues.
func (d *Dispatcher) HandleScheduledRetry(ctx context.Context, eventID string, _ time.Time) error {
	event, err := d.events.RetrieveEvent(ctx, eventID)
	if errors.Is(err, models.ErrEventNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load scheduled event: %w", err)
	}

	// The event may have been resumed or completed while it waited.
	if event.Status != models.EventStatusRetryPending {
		return nil
	}

	if err := d.updateEventStatus(ctx, event, models.EventStatusPending, ""); err != nil {
		return err
	}
	return d.queue.Enqueue(ctx, event)
}

func (d *Dispatcher) updateEventStatus(ctx context.Context, event *models.Event, status models.EventStatus, reason string) error {
	event.Status = status
	if reason != "" {
		event.FailureReason = reason
	}
	if err := d.events.UpdateEvent(ctx, *event); err != nil {
		return fmt.Errorf("persist event %s: %w", status, err)
	}
	return nil
}
