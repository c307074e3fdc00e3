package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/hookhub/relay/internal/logging"
	"github.com/hookhub/relay/internal/models"
	"github.com/hookhub/relay/internal/redis"
	"go.uber.org/zap"
)

// AlertMonitor is the entry point for raising alerts from the delivery path.
type AlertMonitor interface {
	HandleEscalation(ctx context.Context, data EscalationData) error
	HandleCircuitOpened(ctx context.Context, webhook *models.Webhook, openedAt time.Time) error
}

type alertMonitor struct {
	store            AlertStore
	notifiers        []AlertNotifier
	debounceInterval time.Duration
	logger           *logging.Logger
}

type MonitorOption func(*alertMonitor)

func MonitorWithLogger(logger *logging.Logger) MonitorOption {
	return func(m *alertMonitor) {
		m.logger = logger
	}
}

// NewAlertMonitor builds a monitor from config, wiring the HTTP and pub/sub
// notifiers that are enabled.
func NewAlertMonitor(ctx context.Context, redisClient redis.Cmdable, config AlertConfig, opts ...MonitorOption) (AlertMonitor, error) {
	var notifiers []AlertNotifier
	if config.CallbackURL != "" {
		notifiers = append(notifiers, NewHTTPAlertNotifier(config.CallbackURL,
			NotifierWithBearerToken(config.BearerToken)))
	}
	if config.TopicURL != "" {
		topic, err := OpenTopic(ctx, config.TopicURL)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, NewPubSubAlertNotifier(topic))
	}

	interval := config.DebounceInterval
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}

	m := &alertMonitor{
		store:            NewRedisAlertStore(redisClient),
		notifiers:        notifiers,
		debounceInterval: interval,
		logger:           logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// NewAlertMonitorWithDeps creates a monitor with the provided dependencies.
func NewAlertMonitorWithDeps(store AlertStore, notifiers []AlertNotifier, debounceInterval time.Duration, opts ...MonitorOption) AlertMonitor {
	if debounceInterval <= 0 {
		debounceInterval = DefaultDebounceInterval
	}
	m := &alertMonitor{
		store:            store,
		notifiers:        notifiers,
		debounceInterval: debounceInterval,
		logger:           logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *alertMonitor) HandleEscalation(ctx context.Context, data EscalationData) error {
	return m.send(ctx, NewEscalationAlert(data))
}

func (m *alertMonitor) HandleCircuitOpened(ctx context.Context, webhook *models.Webhook, openedAt time.Time) error {
	return m.send(ctx, NewCircuitOpenedAlert(CircuitOpenedData{
		Webhook:             webhook,
		ConsecutiveFailures: webhook.ConsecutiveFailures,
		OpenedAt:            openedAt,
	}))
}

func (m *alertMonitor) send(ctx context.Context, alert Alert) error {
	if len(m.notifiers) == 0 {
		return nil
	}

	ok, err := m.store.TryDebounce(ctx, alert.AlertWebhookID(), alert.AlertTopic(), m.debounceInterval)
	if err != nil {
		return fmt.Errorf("failed to check alert debounce: %w", err)
	}
	if !ok {
		return nil
	}

	for _, notifier := range m.notifiers {
		if err := notifier.Notify(ctx, alert); err != nil {
			// One failing channel must not silence the others.
			m.logger.Ctx(ctx).Error("alert notification failed",
				zap.String("topic", alert.AlertTopic()),
				zap.String("webhook_id", alert.AlertWebhookID()),
				zap.Error(err))
		}
	}
	return nil
}
