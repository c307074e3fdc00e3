package alert_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hookhub/relay/internal/alert"
	"github.com/hookhub/relay/internal/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/pubsub"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []alert.Alert
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, a alert.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func newTestMonitor(t *testing.T, notifiers ...alert.AlertNotifier) alert.AlertMonitor {
	t.Helper()
	store := alert.NewRedisAlertStore(testutil.CreateTestRedisClient(t))
	return alert.NewAlertMonitorWithDeps(store, notifiers, time.Minute,
		alert.MonitorWithLogger(testutil.CreateTestLogger(t)))
}

func TestAlertMonitor_HandleEscalation(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	monitor := newTestMonitor(t, notifier)
	webhook := testutil.WebhookFactory.Any()
	event := testutil.EventFactory.Any(testutil.EventFactory.WithWebhookID(webhook.ID))

	require.NoError(t, monitor.HandleEscalation(context.Background(), alert.EscalationData{
		Webhook: &webhook,
		Event:   &event,
	}))

	require.Equal(t, 1, notifier.count())
	assert.Equal(t, alert.TopicEscalation, notifier.alerts[0].AlertTopic())
	assert.Equal(t, webhook.ID, notifier.alerts[0].AlertWebhookID())
}

func TestAlertMonitor_DebouncesPerWebhook(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	monitor := newTestMonitor(t, notifier)
	ctx := context.Background()
	webhook := testutil.WebhookFactory.Any()
	other := testutil.WebhookFactory.Any()

	require.NoError(t, monitor.HandleCircuitOpened(ctx, &webhook, time.Now()))
	require.NoError(t, monitor.HandleCircuitOpened(ctx, &webhook, time.Now()))
	require.NoError(t, monitor.HandleCircuitOpened(ctx, &other, time.Now()))

	assert.Equal(t, 2, notifier.count(), "repeat alert for same webhook should be debounced")
}

func TestAlertMonitor_EscalationAndCircuitOpenedAreIndependent(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	monitor := newTestMonitor(t, notifier)
	ctx := context.Background()
	webhook := testutil.WebhookFactory.Any()

	require.NoError(t, monitor.HandleCircuitOpened(ctx, &webhook, time.Now()))
	require.NoError(t, monitor.HandleEscalation(ctx, alert.EscalationData{Webhook: &webhook}))

	assert.Equal(t, 2, notifier.count())
}

func TestAlertMonitor_NotifierErrorDoesNotFailHandling(t *testing.T) {
	t.Parallel()

	failing := &recordingNotifier{err: errors.New("callback down")}
	healthy := &recordingNotifier{}
	monitor := newTestMonitor(t, failing, healthy)

	err := monitor.HandleEscalation(context.Background(), alert.EscalationData{
		Webhook: testutil.WebhookFactory.AnyPointer(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, healthy.count(), "healthy notifier should still receive the alert")
}

func TestAlertMonitor_NoNotifiersIsNoop(t *testing.T) {
	t.Parallel()

	monitor := newTestMonitor(t)
	require.NoError(t, monitor.HandleEscalation(context.Background(), alert.EscalationData{
		Webhook: testutil.WebhookFactory.AnyPointer(),
	}))
}

func TestPubSubAlertNotifier_Publish(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	topicURL := "mem://alerts-" + testutil.RandomString(8)

	topic, err := alert.OpenTopic(ctx, topicURL)
	require.NoError(t, err)
	defer topic.Shutdown(ctx)

	subscription, err := pubsub.OpenSubscription(ctx, topicURL)
	require.NoError(t, err)
	defer subscription.Shutdown(ctx)

	webhook := testutil.WebhookFactory.Any()
	notifier := alert.NewPubSubAlertNotifier(topic)
	require.NoError(t, notifier.Notify(ctx, alert.NewCircuitOpenedAlert(alert.CircuitOpenedData{
		Webhook:             &webhook,
		ConsecutiveFailures: 5,
		OpenedAt:            time.Now(),
	})))

	receiveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	msg, err := subscription.Receive(receiveCtx)
	require.NoError(t, err)
	msg.Ack()

	assert.Equal(t, alert.TopicCircuitOpened, msg.Metadata["topic"])
	assert.Equal(t, webhook.ID, msg.Metadata["webhook_id"])

	var payload alert.CircuitOpenedAlert
	require.NoError(t, json.Unmarshal(msg.Body, &payload))
	assert.Equal(t, webhook.ID, payload.Data.Webhook.ID)
	assert.Equal(t, 5, payload.Data.ConsecutiveFailures)
}
