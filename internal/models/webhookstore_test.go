package models_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hookhub/relay/internal/models"
	"github.com/hookhub/relay/internal/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhookStores(t *testing.T) map[string]models.WebhookStore {
	return map[string]models.WebhookStore{
		"redis":  models.NewWebhookStore(testutil.CreateTestRedisClient(t)),
		"memory": models.NewMemoryWebhookStore(),
	}
}

func TestWebhookStore_CreateRetrieve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, store := range webhookStores(t) {
		t.Run(name, func(t *testing.T) {
			webhook := testutil.WebhookFactory.Any(
				testutil.WebhookFactory.WithMetadata(map[string]string{"team": "billing"}),
			)
			require.NoError(t, store.CreateWebhook(ctx, webhook))

			retrieved, err := store.RetrieveWebhook(ctx, webhook.ID)
			require.NoError(t, err)
			assert.Equal(t, webhook.ID, retrieved.ID)
			assert.Equal(t, webhook.URL, retrieved.URL)
			assert.Equal(t, models.CircuitStateClosed, retrieved.CircuitState)
			assert.Equal(t, "billing", retrieved.Metadata["team"])
			assert.False(t, retrieved.Disabled)
			assert.Nil(t, retrieved.PausedUntil)
			assert.Nil(t, retrieved.CircuitOpenedAt)
		})
	}
}

func TestWebhookStore_CreateDuplicate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, store := range webhookStores(t) {
		t.Run(name, func(t *testing.T) {
			webhook := testutil.WebhookFactory.Any()
			require.NoError(t, store.CreateWebhook(ctx, webhook))

			err := store.CreateWebhook(ctx, webhook)
			assert.ErrorIs(t, err, models.ErrDuplicateWebhook)
		})
	}
}

func TestWebhookStore_RetrieveNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, store := range webhookStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.RetrieveWebhook(ctx, "missing")
			assert.ErrorIs(t, err, models.ErrWebhookNotFound)
		})
	}
}

func TestWebhookStore_ListNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, store := range webhookStores(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Now().Add(-time.Hour)
			ids := make([]string, 3)
			for i := 0; i < 3; i++ {
				webhook := testutil.WebhookFactory.Any(
					testutil.WebhookFactory.WithCreatedAt(base.Add(time.Duration(i) * time.Minute)),
				)
				require.NoError(t, store.CreateWebhook(ctx, webhook))
				ids[i] = webhook.ID
			}

			webhooks, err := store.ListWebhooks(ctx)
			require.NoError(t, err)
			require.Len(t, webhooks, 3)
			assert.Equal(t, ids[2], webhooks[0].ID)
			assert.Equal(t, ids[1], webhooks[1].ID)
			assert.Equal(t, ids[0], webhooks[2].ID)
		})
	}
}

func TestWebhookStore_FindByURL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, store := range webhookStores(t) {
		t.Run(name, func(t *testing.T) {
			webhook := testutil.WebhookFactory.Any(
				testutil.WebhookFactory.WithURL("https://example.com/hooks/orders"),
			)
			require.NoError(t, store.CreateWebhook(ctx, webhook))

			found, err := store.FindWebhookByURL(ctx, "https://example.com/hooks/orders")
			require.NoError(t, err)
			assert.Equal(t, webhook.ID, found.ID)

			_, err = store.FindWebhookByURL(ctx, "https://example.com/hooks/unknown")
			assert.ErrorIs(t, err, models.ErrWebhookNotFound)
		})
	}
}

func TestWebhookStore_UpdateHealth(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, store := range webhookStores(t) {
		t.Run(name, func(t *testing.T) {
			webhook := testutil.WebhookFactory.Any()
			require.NoError(t, store.CreateWebhook(ctx, webhook))

			now := time.Now()
			updated, err := store.UpdateHealth(ctx, webhook.ID, func(w *models.Webhook) error {
				w.CircuitState = models.CircuitStateOpen
				w.ConsecutiveFailures = 5
				w.TotalFailures = 5
				w.CircuitOpenedAt = &now
				w.LastFailureTime = &now
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, models.CircuitStateOpen, updated.CircuitState)

			retrieved, err := store.RetrieveWebhook(ctx, webhook.ID)
			require.NoError(t, err)
			assert.Equal(t, models.CircuitStateOpen, retrieved.CircuitState)
			assert.Equal(t, 5, retrieved.ConsecutiveFailures)
			assert.Equal(t, int64(5), retrieved.TotalFailures)
			require.NotNil(t, retrieved.CircuitOpenedAt)
			assert.Equal(t, now.UnixMilli(), retrieved.CircuitOpenedAt.UnixMilli())

			// Clearing optional fields must survive a round trip.
			_, err = store.UpdateHealth(ctx, webhook.ID, func(w *models.Webhook) error {
				w.CircuitState = models.CircuitStateClosed
				w.ConsecutiveFailures = 0
				w.CircuitOpenedAt = nil
				return nil
			})
			require.NoError(t, err)

			retrieved, err = store.RetrieveWebhook(ctx, webhook.ID)
			require.NoError(t, err)
			assert.Equal(t, models.CircuitStateClosed, retrieved.CircuitState)
			assert.Nil(t, retrieved.CircuitOpenedAt)
			require.NotNil(t, retrieved.LastFailureTime)
		})
	}
}

func TestWebhookStore_UpdateHealthNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, store := range webhookStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.UpdateHealth(ctx, "missing", func(w *models.Webhook) error {
				return nil
			})
			assert.ErrorIs(t, err, models.ErrWebhookNotFound)
		})
	}
}

func TestWebhookStore_UpdateHealthConcurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, store := range webhookStores(t) {
		t.Run(name, func(t *testing.T) {
			webhook := testutil.WebhookFactory.Any()
			require.NoError(t, store.CreateWebhook(ctx, webhook))

			const goroutines = 20
			var wg sync.WaitGroup
			wg.Add(goroutines)
			for i := 0; i < goroutines; i++ {
				go func() {
					defer wg.Done()
					_, err := store.UpdateHealth(ctx, webhook.ID, func(w *models.Webhook) error {
						w.TotalSuccesses++
						return nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			retrieved, err := store.RetrieveWebhook(ctx, webhook.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(goroutines), retrieved.TotalSuccesses)
		})
	}
}

func TestWebhook_Paused(t *testing.T) {
	t.Parallel()

	now := time.Now()
	webhook := testutil.WebhookFactory.Any()
	assert.False(t, webhook.Paused(now))

	until := now.Add(time.Hour)
	webhook.PausedUntil = &until
	assert.True(t, webhook.Paused(now))
	assert.False(t, webhook.Paused(until.Add(time.Second)))
}

func TestWebhook_SuccessRate(t *testing.T) {
	t.Parallel()

	webhook := testutil.WebhookFactory.Any()
	assert.Equal(t, float64(-1), webhook.SuccessRate())

	webhook.TotalSuccesses = 3
	webhook.TotalFailures = 1
	assert.InDelta(t, 75.0, webhook.SuccessRate(), 0.001)
}
