package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hookhub/relay/internal/redis"
)

var (
	ErrEventNotFound  = errors.New("event does not exist")
	ErrDuplicateEvent = errors.New("event already exists")
	// ErrEventTerminal is returned when an update would move an event out of
	// SUCCESS or FAILURE. Terminal statuses are never left.
	ErrEventTerminal = errors.New("event is in a terminal status")
)

// EventStore persists events and maintains the per-status index used by
// findByStatus queries and startup recovery.
type EventStore interface {
	CreateEvent(ctx context.Context, event Event) error
	RetrieveEvent(ctx context.Context, eventID string) (*Event, error)
	UpdateEvent(ctx context.Context, event Event) error
	ListEventsByWebhook(ctx context.Context, webhookID string, limit int) ([]Event, error)
	ListEventsByStatus(ctx context.Context, status EventStatus) ([]Event, error)
}

type eventStoreImpl struct {
	redisClient redis.Cmdable
}

var _ EventStore = (*eventStoreImpl)(nil)

func NewEventStore(redisClient redis.Cmdable) EventStore {
	return &eventStoreImpl{redisClient: redisClient}
}

func (s *eventStoreImpl) redisEventKey(eventID string) string {
	return fmt.Sprintf("event:%s", eventID)
}

func (s *eventStoreImpl) redisWebhookEventsKey(webhookID string) string {
	return fmt.Sprintf("webhook:%s:events", webhookID)
}

func (s *eventStoreImpl) redisStatusKey(status EventStatus) string {
	return fmt.Sprintf("events:status:%s", status)
}

func (s *eventStoreImpl) CreateEvent(ctx context.Context, event Event) error {
	key := s.redisEventKey(event.ID)

	if exists, err := s.redisClient.Exists(ctx, key).Result(); err != nil {
		return err
	} else if exists > 0 {
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

	_, err := s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		writeEventHash(ctx, pipe, key, &event)
		pipe.ZAdd(ctx, s.redisWebhookEventsKey(event.WebhookID), redis.Z{
			Score:  float64(event.CreatedAt.UnixMilli()),
			Member: event.ID,
		})
		pipe.SAdd(ctx, s.redisStatusKey(event.Status), event.ID)
		return nil
	})
	return err
}

func (s *eventStoreImpl) RetrieveEvent(ctx context.Context, eventID string) (*Event, error) {
	hash, err := s.redisClient.HGetAll(ctx, s.redisEventKey(eventID)).Result()
	if err != nil {
		return nil, err
	}
	if len(hash) == 0 {
		return nil, ErrEventNotFound
	}
	event := &Event{}
	if err := event.parseRedisHash(hash); err != nil {
		return nil, err
	}
	return event, nil
}

// UpdateEvent persists the event and moves it between status index sets.
// Updates that would leave a terminal status are rejected with
// ErrEventTerminal; re-processing a finished event is therefore a no-op at
// the store level.
func (s *eventStoreImpl) UpdateEvent(ctx context.Context, event Event) error {
	existing, err := s.RetrieveEvent(ctx, event.ID)
	if err != nil {
		return err
	}
	if existing.Status.Terminal() && event.Status != existing.Status {
		return ErrEventTerminal
	}

	event.UpdatedAt = time.Now()
	key := s.redisEventKey(event.ID)
	_, err = s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		writeEventHash(ctx, pipe, key, &event)
		if existing.Status != event.Status {
			pipe.SRem(ctx, s.redisStatusKey(existing.Status), event.ID)
			pipe.SAdd(ctx, s.redisStatusKey(event.Status), event.ID)
		}
		return nil
	})
	return err
}

func (s *eventStoreImpl) ListEventsByWebhook(ctx context.Context, webhookID string, limit int) ([]Event, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.redisClient.ZRevRange(ctx, s.redisWebhookEventsKey(webhookID), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	return s.retrieveMany(ctx, ids)
}

func (s *eventStoreImpl) ListEventsByStatus(ctx context.Context, status EventStatus) ([]Event, error) {
	ids, err := s.redisClient.SMembers(ctx, s.redisStatusKey(status)).Result()
	if err != nil {
		return nil, err
	}
	return s.retrieveMany(ctx, ids)
}

func (s *eventStoreImpl) retrieveMany(ctx context.Context, ids []string) ([]Event, error) {
	pipe := s.redisClient.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.redisEventKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(ids))
	for _, cmd := range cmds {
		hash, err := cmd.Result()
		if err != nil {
			return nil, err
		}
		if len(hash) == 0 {
			continue
		}
		event := Event{}
		if err := event.parseRedisHash(hash); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func writeEventHash(ctx context.Context, pipe redis.Pipeliner, key string, event *Event) {
	pipe.HSet(ctx, key,
		"id", event.ID,
		"webhook_id", event.WebhookID,
		"status", string(event.Status),
		"retry_count", event.RetryCount,
		"created_at", event.CreatedAt.UnixMilli(),
		"updated_at", event.UpdatedAt.UnixMilli(),
	)
	if len(event.Payload) > 0 {
		pipe.HSet(ctx, key, "payload", string(event.Payload))
	}
	if event.FailureReason != "" {
		pipe.HSet(ctx, key, "failure_reason", event.FailureReason)
	} else {
		pipe.HDel(ctx, key, "failure_reason")
	}
}

func (e *Event) parseRedisHash(hash map[string]string) error {
	e.ID = hash["id"]
	e.WebhookID = hash["webhook_id"]
	e.Status = EventStatus(hash["status"])
	if !e.Status.Valid() {
		return fmt.Errorf("invalid event status: %q", hash["status"])
	}
	e.FailureReason = hash["failure_reason"]
	if payload, ok := hash["payload"]; ok {
		e.Payload = json.RawMessage(payload)
	}

	var err error
	if e.RetryCount, err = parseHashInt(hash, "retry_count"); err != nil {
		return err
	}
	if e.CreatedAt, err = parseHashTime(hash, "created_at"); err != nil {
		return err
	}
	if e.UpdatedAt, err = parseHashTime(hash, "updated_at"); err != nil {
		return err
	}
	return nil
}
