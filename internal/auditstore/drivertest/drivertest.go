// Package drivertest provides a conformance test suite for audit store
// drivers.
package drivertest

import (
	"context"
	"testing"
	"time"

	"github.com/hookhub/relay/internal/auditstore/driver"
	"github.com/hookhub/relay/internal/idgen"
	"github.com/hookhub/relay/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Harness provides the test infrastructure for an audit store driver.
type Harness interface {
	MakeDriver(ctx context.Context) (driver.AuditStore, error)
	Close()
}

// HarnessMaker creates a new Harness for each test.
type HarnessMaker func(ctx context.Context, t *testing.T) (Harness, error)

// RunConformanceTests executes the conformance suite against a driver.
func RunConformanceTests(t *testing.T, newHarness HarnessMaker) {
	t.Helper()

	t.Run("InsertAndList", func(t *testing.T) {
		testInsertAndList(t, newHarness)
	})
	t.Run("ListLimit", func(t *testing.T) {
		testListLimit(t, newHarness)
	})
	t.Run("WebhookIsolation", func(t *testing.T) {
		testWebhookIsolation(t, newHarness)
	})
	t.Run("EmptyList", func(t *testing.T) {
		testEmptyList(t, newHarness)
	})
}

func makeDriver(t *testing.T, newHarness HarnessMaker) driver.AuditStore {
	t.Helper()
	ctx := context.Background()

	harness, err := newHarness(ctx, t)
	require.NoError(t, err)
	t.Cleanup(harness.Close)

	store, err := harness.MakeDriver(ctx)
	require.NoError(t, err)
	return store
}

func classificationFixture(webhookID string, createdAt time.Time) *models.ErrorClassification {
	retryAfter := 30
	return &models.ErrorClassification{
		ID:                idgen.Classification(),
		EventID:           idgen.Event(),
		WebhookID:         webhookID,
		HTTPStatusCode:    429,
		ErrorMessage:      "request failed with status 429",
		Decision:          models.DecisionRetry,
		Explanation:       "Your endpoint is rate-limiting requests. We'll retry after the rate limit window expires.",
		ErrorType:         models.ErrorTypeRateLimit,
		RetryAfterSeconds: &retryAfter,
		CreatedAt:         createdAt,
	}
}

func testInsertAndList(t *testing.T, newHarness HarnessMaker) {
	ctx := context.Background()
	store := makeDriver(t, newHarness)

	webhookID := idgen.Webhook()
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)

	inserted := make([]*models.ErrorClassification, 3)
	for i := 0; i < 3; i++ {
		classification := classificationFixture(webhookID, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.Insert(ctx, classification))
		inserted[i] = classification
	}

	rows, err := store.ListByWebhook(ctx, webhookID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Newest first.
	assert.Equal(t, inserted[2].ID, rows[0].ID)
	assert.Equal(t, inserted[1].ID, rows[1].ID)
	assert.Equal(t, inserted[0].ID, rows[2].ID)

	// Full round trip of one row.
	row := rows[0]
	assert.Equal(t, inserted[2].EventID, row.EventID)
	assert.Equal(t, webhookID, row.WebhookID)
	assert.Equal(t, 429, row.HTTPStatusCode)
	assert.Equal(t, models.DecisionRetry, row.Decision)
	assert.Equal(t, models.ErrorTypeRateLimit, row.ErrorType)
	assert.Equal(t, inserted[2].Explanation, row.Explanation)
	require.NotNil(t, row.RetryAfterSeconds)
	assert.Equal(t, 30, *row.RetryAfterSeconds)
	assert.Equal(t, inserted[2].CreatedAt.UnixMilli(), row.CreatedAt.UnixMilli())
}

func testListLimit(t *testing.T, newHarness HarnessMaker) {
	ctx := context.Background()
	store := makeDriver(t, newHarness)

	webhookID := idgen.Webhook()
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	var newest *models.ErrorClassification
	for i := 0; i < 5; i++ {
		classification := classificationFixture(webhookID, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.Insert(ctx, classification))
		newest = classification
	}

	rows, err := store.ListByWebhook(ctx, webhookID, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, newest.ID, rows[0].ID)
}

func testWebhookIsolation(t *testing.T, newHarness HarnessMaker) {
	ctx := context.Background()
	store := makeDriver(t, newHarness)

	first := idgen.Webhook()
	second := idgen.Webhook()
	now := time.Now().Truncate(time.Millisecond)

	require.NoError(t, store.Insert(ctx, classificationFixture(first, now)))
	require.NoError(t, store.Insert(ctx, classificationFixture(second, now)))

	rows, err := store.ListByWebhook(ctx, first, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, first, rows[0].WebhookID)
}

func testEmptyList(t *testing.T, newHarness HarnessMaker) {
	ctx := context.Background()
	store := makeDriver(t, newHarness)

	rows, err := store.ListByWebhook(ctx, idgen.Webhook(), 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
