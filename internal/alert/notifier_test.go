package alert_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hookhub/relay/internal/alert"
	"github.com/hookhub/relay/internal/models"
	"github.com/hookhub/relay/internal/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAlertNotifier_Notify(t *testing.T) {
	t.Parallel()

	var (
		gotAuth    string
		gotBody    map[string]any
		gotHeaders http.Header
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotHeaders = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	webhook := testutil.WebhookFactory.Any()
	notifier := alert.NewHTTPAlertNotifier(server.URL,
		alert.NotifierWithBearerToken("secret-token"))

	a := alert.NewEscalationAlert(alert.EscalationData{Webhook: &webhook})
	require.NoError(t, notifier.Notify(context.Background(), a))

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, alert.TopicEscalation, gotBody["topic"])
	data, ok := gotBody["data"].(map[string]any)
	require.True(t, ok)
	webhookBody, ok := data["webhook"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, webhook.ID, webhookBody["id"])
}

func TestHTTPAlertNotifier_CallbackError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	notifier := alert.NewHTTPAlertNotifier(server.URL)
	err := notifier.Notify(context.Background(), alert.NewEscalationAlert(alert.EscalationData{
		Webhook: testutil.WebhookFactory.AnyPointer(),
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPAlertNotifier_Timeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	notifier := alert.NewHTTPAlertNotifier(server.URL,
		alert.NotifierWithTimeout(30*time.Millisecond))
	err := notifier.Notify(context.Background(), alert.NewCircuitOpenedAlert(alert.CircuitOpenedData{
		Webhook: testutil.WebhookFactory.AnyPointer(),
	}))
	require.Error(t, err)
}

func TestCircuitOpenedAlert_Shape(t *testing.T) {
	t.Parallel()

	webhook := testutil.WebhookFactory.Any(
		testutil.WebhookFactory.WithConsecutiveFailures(5),
		testutil.WebhookFactory.WithCircuitState(models.CircuitStateOpen),
	)
	openedAt := time.Now()
	a := alert.NewCircuitOpenedAlert(alert.CircuitOpenedData{
		Webhook:             &webhook,
		ConsecutiveFailures: webhook.ConsecutiveFailures,
		OpenedAt:            openedAt,
	})

	assert.Equal(t, alert.TopicCircuitOpened, a.AlertTopic())
	assert.Equal(t, webhook.ID, a.AlertWebhookID())
	assert.Equal(t, 5, a.Data.ConsecutiveFailures)
}
