package testutil

import (
	"time"

	"github.com/hookhub/relay/internal/idgen"
	"github.com/hookhub/relay/internal/models"
)

// ============================== Mock Webhook ==============================

var WebhookFactory = &mockWebhookFactory{}

type mockWebhookFactory struct {
}

func (f *mockWebhookFactory) Any(opts ...func(*models.Webhook)) models.Webhook {
	now := time.Now()
	webhook := models.Webhook{
		ID:           idgen.Webhook(),
		URL:          "http://host.docker.internal:4444/" + RandomString(8),
		Metadata:     nil,
		CircuitState: models.CircuitStateClosed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	for _, opt := range opts {
		opt(&webhook)
	}

	return webhook
}

func (f *mockWebhookFactory) AnyPointer(opts ...func(*models.Webhook)) *models.Webhook {
	webhook := f.Any(opts...)
	return &webhook
}

func (f *mockWebhookFactory) WithID(id string) func(*models.Webhook) {
	return func(webhook *models.Webhook) {
		webhook.ID = id
	}
}

func (f *mockWebhookFactory) WithURL(url string) func(*models.Webhook) {
	return func(webhook *models.Webhook) {
		webhook.URL = url
	}
}

func (f *mockWebhookFactory) WithMetadata(metadata map[string]string) func(*models.Webhook) {
	return func(webhook *models.Webhook) {
		webhook.Metadata = metadata
	}
}

func (f *mockWebhookFactory) WithDisabled(disabled bool) func(*models.Webhook) {
	return func(webhook *models.Webhook) {
		webhook.Disabled = disabled
	}
}

func (f *mockWebhookFactory) WithCircuitState(state models.CircuitState) func(*models.Webhook) {
	return func(webhook *models.Webhook) {
		webhook.CircuitState = state
	}
}

func (f *mockWebhookFactory) WithPausedUntil(pausedUntil time.Time) func(*models.Webhook) {
	return func(webhook *models.Webhook) {
		webhook.PausedUntil = &pausedUntil
	}
}

func (f *mockWebhookFactory) WithConsecutiveFailures(n int) func(*models.Webhook) {
	return func(webhook *models.Webhook) {
		webhook.ConsecutiveFailures = n
	}
}

func (f *mockWebhookFactory) WithCreatedAt(createdAt time.Time) func(*models.Webhook) {
	return func(webhook *models.Webhook) {
		webhook.CreatedAt = createdAt
	}
}
