package testutil

import (
	"encoding/json"
	"time"

	"github.com/hookhub/relay/internal/idgen"
	"github.com/hookhub/relay/internal/models"
)

// ============================== Mock Event ==============================

var EventFactory = &mockEventFactory{}

type mockEventFactory struct {
}

func (f *mockEventFactory) Any(opts ...func(*models.Event)) models.Event {
	now := time.Now()
	event := models.Event{
		ID:        idgen.Event(),
		WebhookID: idgen.Webhook(),
		Payload:   json.RawMessage(`{"mykey":"myvalue"}`),
		Status:    models.EventStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, opt := range opts {
		opt(&event)
	}

	return event
}

func (f *mockEventFactory) AnyPointer(opts ...func(*models.Event)) *models.Event {
	event := f.Any(opts...)
	return &event
}

func (f *mockEventFactory) WithID(id string) func(*models.Event) {
	return func(event *models.Event) {
		event.ID = id
	}
}

func (f *mockEventFactory) WithWebhookID(webhookID string) func(*models.Event) {
	return func(event *models.Event) {
		event.WebhookID = webhookID
	}
}

func (f *mockEventFactory) WithPayload(payload []byte) func(*models.Event) {
	return func(event *models.Event) {
		event.Payload = payload
	}
}

func (f *mockEventFactory) WithStatus(status models.EventStatus) func(*models.Event) {
	return func(event *models.Event) {
		event.Status = status
	}
}

func (f *mockEventFactory) WithRetryCount(retryCount int) func(*models.Event) {
	return func(event *models.Event) {
		event.RetryCount = retryCount
	}
}

func (f *mockEventFactory) WithCreatedAt(createdAt time.Time) func(*models.Event) {
	return func(event *models.Event) {
		event.CreatedAt = createdAt
	}
}
