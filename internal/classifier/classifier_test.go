package classifier_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hookhub/relay/internal/advisor"
	"github.com/hookhub/relay/internal/classifier"
	"github.com/hookhub/relay/internal/deliveryclient"
	"github.com/hookhub/relay/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failedResult(statusCode int, errorMessage string) *deliveryclient.DeliveryResult {
	return &deliveryclient.DeliveryResult{
		Success:      false,
		StatusCode:   statusCode,
		ErrorMessage: errorMessage,
	}
}

func TestClassifier_RulesOnly(t *testing.T) {
	t.Parallel()

	engine := defaultEngine(t)
	c := classifier.New(engine)

	classification := c.Classify(context.Background(), failedResult(503, "request failed with status 503"), classifier.Context{})
	assert.Equal(t, models.DecisionRetry, classification.Decision)
	assert.Equal(t, models.ErrorTypeServer, classification.ErrorType)
	assert.Equal(t, "server-error", classification.RuleName)
	assert.False(t, classification.AdvisorUsed)
}

func advisorServer(t *testing.T, response advisor.Response, capture *advisor.Request) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
}

func TestClassifier_AdvisorAdopted(t *testing.T) {
	t.Parallel()

	var received advisor.Request
	server := advisorServer(t, advisor.Response{
		Decision:        "PAUSE_WEBHOOK",
		ConfidenceScore: 0.91,
		Explanation:     "endpoint has been failing for similar senders",
	}, &received)
	defer server.Close()

	c := classifier.New(defaultEngine(t),
		classifier.WithAdvisor(advisor.New(server.URL), 0.6))

	classification := c.Classify(context.Background(), failedResult(503, "request failed with status 503"), classifier.Context{
		WebhookID:           "wh_1",
		RetryCount:          2,
		RecentFailureRate:   0.8,
		TotalFailures:       8,
		TotalSuccesses:      2,
		ConsecutiveFailures: 4,
		CircuitState:        models.CircuitStateClosed,
	})

	assert.True(t, classification.AdvisorUsed)
	assert.Equal(t, models.DecisionPauseWebhook, classification.Decision)
	assert.Equal(t, "endpoint has been failing for similar senders", classification.Explanation)
	assert.Equal(t, models.ErrorTypeServer, classification.ErrorType)
	assert.Empty(t, classification.RuleName)

	// Wire shape of the request.
	assert.Equal(t, 503, received.ErrorSignature.HTTPStatusCode)
	assert.Equal(t, "SERVER_ERROR", received.ErrorSignature.ErrorType)
	assert.Equal(t, 2, received.RetryCount)
	assert.InDelta(t, 0.8, received.RecentFailureRate, 0.001)
	assert.Equal(t, "wh_1", received.WebhookHealth.WebhookID)
	assert.Equal(t, int64(8), received.WebhookHealth.TotalFailures)
	assert.Equal(t, "CLOSED", received.WebhookHealth.CircuitBreakerState)
}

func TestClassifier_AdvisorLowConfidenceFallsBack(t *testing.T) {
	t.Parallel()

	server := advisorServer(t, advisor.Response{
		Decision:        "FAIL_PERMANENT",
		ConfidenceScore: 0.59,
	}, nil)
	defer server.Close()

	c := classifier.New(defaultEngine(t),
		classifier.WithAdvisor(advisor.New(server.URL), 0.6))

	classification := c.Classify(context.Background(), failedResult(503, ""), classifier.Context{})
	assert.False(t, classification.AdvisorUsed)
	assert.Equal(t, models.DecisionRetry, classification.Decision)
	assert.Equal(t, "server-error", classification.RuleName)
}

func TestClassifier_AdvisorInvalidDecisionFallsBack(t *testing.T) {
	t.Parallel()

	server := advisorServer(t, advisor.Response{
		Decision:        "SHRUG",
		ConfidenceScore: 0.99,
	}, nil)
	defer server.Close()

	c := classifier.New(defaultEngine(t),
		classifier.WithAdvisor(advisor.New(server.URL), 0.6))

	classification := c.Classify(context.Background(), failedResult(404, ""), classifier.Context{})
	assert.False(t, classification.AdvisorUsed)
	assert.Equal(t, models.DecisionFailPermanent, classification.Decision)
	assert.Equal(t, "not-found", classification.RuleName)
}

func TestClassifier_AdvisorErrorFallsBack(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := classifier.New(defaultEngine(t),
		classifier.WithAdvisor(advisor.New(server.URL), 0.6))

	classification := c.Classify(context.Background(), failedResult(429, ""), classifier.Context{})
	assert.False(t, classification.AdvisorUsed)
	assert.Equal(t, models.DecisionRetry, classification.Decision)
	assert.Equal(t, "rate-limit", classification.RuleName)
}

func TestClassifier_AdvisorFallbackDisabledDefaultsToRetry(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := classifier.New(defaultEngine(t),
		classifier.WithAdvisor(advisor.New(server.URL), 0.6),
		classifier.WithAdvisorFallback(false))

	// 404 would be FAIL_PERMANENT through the rules; with fallback disabled
	// the failed consultation settles for RETRY instead.
	classification := c.Classify(context.Background(), failedResult(404, ""), classifier.Context{})
	assert.False(t, classification.AdvisorUsed)
	assert.Equal(t, models.DecisionRetry, classification.Decision)
	assert.Empty(t, classification.RuleName)
	assert.Equal(t, models.ErrorTypeClient, classification.ErrorType)
}

func TestClassifier_AdvisorTimeoutFallsBack(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	c := classifier.New(defaultEngine(t),
		classifier.WithAdvisor(advisor.New(server.URL, advisor.WithTimeout(30*time.Millisecond)), 0.6))

	start := time.Now()
	classification := c.Classify(context.Background(), failedResult(0, "timeout"), classifier.Context{})
	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.False(t, classification.AdvisorUsed)
	assert.Equal(t, models.DecisionRetry, classification.Decision)
	assert.Equal(t, "network-error", classification.RuleName)
	assert.Equal(t, models.ErrorTypeTimeout, classification.ErrorType)
}

func TestClassifier_AdvisorUnreachableFallsBack(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	c := classifier.New(defaultEngine(t),
		classifier.WithAdvisor(advisor.New(server.URL), 0.6))

	classification := c.Classify(context.Background(), failedResult(451, ""), classifier.Context{})
	assert.False(t, classification.AdvisorUsed)
	assert.Equal(t, models.DecisionPauseWebhook, classification.Decision)
	assert.Equal(t, "legal-hold", classification.RuleName)
}
