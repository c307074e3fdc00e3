package models

import (
	"context"
	"sort"
	"sync"
	"time"
)

// In-memory store implementations. Used by tests and the zero-dependency dev
// mode; they honor the same contracts as the Redis-backed stores.

type memWebhookStore struct {
	mu       sync.Mutex
	webhooks map[string]Webhook
	byURL    map[string]string
}

var _ WebhookStore = (*memWebhookStore)(nil)

func NewMemoryWebhookStore() WebhookStore {
	return &memWebhookStore{
		webhooks: make(map[string]Webhook),
		byURL:    make(map[string]string),
	}
}

func (s *memWebhookStore) CreateWebhook(ctx context.Context, webhook Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.webhooks[webhook.ID]; ok {
		return ErrDuplicateWebhook
	}

	now := time.Now()
	if webhook.CreatedAt.IsZero() {
		webhook.CreatedAt = now
	}
	if webhook.UpdatedAt.IsZero() {
		webhook.UpdatedAt = now
	}
	if webhook.CircuitState == "" {
		webhook.CircuitState = CircuitStateClosed
	}

	s.webhooks[webhook.ID] = webhook
	s.byURL[webhook.URL] = webhook.ID
	return nil
}

func (s *memWebhookStore) RetrieveWebhook(ctx context.Context, webhookID string) (*Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	webhook, ok := s.webhooks[webhookID]
	if !ok {
		return nil, ErrWebhookNotFound
	}
	return &webhook, nil
}

func (s *memWebhookStore) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	webhooks := make([]Webhook, 0, len(s.webhooks))
	for _, webhook := range s.webhooks {
		webhooks = append(webhooks, webhook)
	}
	sort.Slice(webhooks, func(i, j int) bool {
		return webhooks[i].CreatedAt.After(webhooks[j].CreatedAt)
	})
	return webhooks, nil
}

func (s *memWebhookStore) FindWebhookByURL(ctx context.Context, url string) (*Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byURL[url]
	if !ok {
		return nil, ErrWebhookNotFound
	}
	webhook := s.webhooks[id]
	return &webhook, nil
}

func (s *memWebhookStore) UpdateHealth(ctx context.Context, webhookID string, apply func(*Webhook) error) (*Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	webhook, ok := s.webhooks[webhookID]
	if !ok {
		return nil, ErrWebhookNotFound
	}

	if err := apply(&webhook); err != nil {
		return nil, err
	}
	webhook.UpdatedAt = time.Now()
	s.webhooks[webhookID] = webhook
	return &webhook, nil
}

type memEventStore struct {
	mu     sync.Mutex
	events map[string]Event
}

var _ EventStore = (*memEventStore)(nil)

func NewMemoryEventStore() EventStore {
	return &memEventStore{events: make(map[string]Event)}
}

func (s *memEventStore) CreateEvent(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; ok {
		return ErrDuplicateEvent
	}

	now := time.Now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = now
	}
	if event.Status == "" {
		event.Status = EventStatusPending
	}

	s.events[event.ID] = event
	return nil
}

func (s *memEventStore) RetrieveEvent(ctx context.Context, eventID string) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	return &event, nil
}

func (s *memEventStore) UpdateEvent(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.events[event.ID]
	if !ok {
		return ErrEventNotFound
	}
	if existing.Status.Terminal() && event.Status != existing.Status {
		return ErrEventTerminal
	}

	event.UpdatedAt = time.Now()
	s.events[event.ID] = event
	return nil
}

func (s *memEventStore) ListEventsByWebhook(ctx context.Context, webhookID string, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]Event, 0)
	for _, event := range s.events {
		if event.WebhookID == webhookID {
			events = append(events, event)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (s *memEventStore) ListEventsByStatus(ctx context.Context, status EventStatus) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]Event, 0)
	for _, event := range s.events {
		if event.Status == status {
			events = append(events, event)
		}
	}
	return events, nil
}
