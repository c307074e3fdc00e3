package models

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/hookhub/relay/internal/redis"
)

var (
	ErrWebhookNotFound  = errors.New("webhook does not exist")
	ErrDuplicateWebhook = errors.New("webhook already exists")
)

// WebhookStore persists webhooks and their delivery-health fields.
//
// UpdateHealth is the only sanctioned way to mutate the health fields. It
// runs the apply func under a per-webhook lock and persists the result in a
// single transaction, so concurrent lanes never lose counter increments and
// breaker transitions are serialized per webhook.
type WebhookStore interface {
	CreateWebhook(ctx context.Context, webhook Webhook) error
	RetrieveWebhook(ctx context.Context, webhookID string) (*Webhook, error)
	ListWebhooks(ctx context.Context) ([]Webhook, error)
	FindWebhookByURL(ctx context.Context, url string) (*Webhook, error)
	UpdateHealth(ctx context.Context, webhookID string, apply func(*Webhook) error) (*Webhook, error)
}

const webhookLockStripes = 64

type webhookStoreImpl struct {
	redisClient redis.Cmdable
	locks       [webhookLockStripes]sync.Mutex
}

var _ WebhookStore = (*webhookStoreImpl)(nil)

func NewWebhookStore(redisClient redis.Cmdable) WebhookStore {
	return &webhookStoreImpl{redisClient: redisClient}
}

func (s *webhookStoreImpl) redisWebhookKey(webhookID string) string {
	return fmt.Sprintf("webhook:%s", webhookID)
}

func (s *webhookStoreImpl) redisWebhookIndexKey() string {
	return "webhooks"
}

func (s *webhookStoreImpl) redisWebhookURLKey() string {
	return "webhook_urls"
}

// lockFor returns the stripe lock that serializes read-modify-writes for the
// given webhook id.
func (s *webhookStoreImpl) lockFor(webhookID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(webhookID))
	return &s.locks[h.Sum32()%webhookLockStripes]
}

func (s *webhookStoreImpl) CreateWebhook(ctx context.Context, webhook Webhook) error {
	key := s.redisWebhookKey(webhook.ID)

	if exists, err := s.redisClient.Exists(ctx, key).Result(); err != nil {
		return err
	} else if exists > 0 {
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

	_, err := s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		writeWebhookHash(ctx, pipe, key, &webhook)
		pipe.ZAdd(ctx, s.redisWebhookIndexKey(), redis.Z{
			Score:  float64(webhook.CreatedAt.UnixMilli()),
			Member: webhook.ID,
		})
		pipe.HSet(ctx, s.redisWebhookURLKey(), webhook.URL, webhook.ID)
		return nil
	})
	return err
}

func (s *webhookStoreImpl) RetrieveWebhook(ctx context.Context, webhookID string) (*Webhook, error) {
	hash, err := s.redisClient.HGetAll(ctx, s.redisWebhookKey(webhookID)).Result()
	if err != nil {
		return nil, err
	}
	if len(hash) == 0 {
		return nil, ErrWebhookNotFound
	}
	webhook := &Webhook{}
	if err := webhook.parseRedisHash(hash); err != nil {
		return nil, err
	}
	return webhook, nil
}

func (s *webhookStoreImpl) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	ids, err := s.redisClient.ZRevRange(ctx, s.redisWebhookIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	pipe := s.redisClient.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.redisWebhookKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	webhooks := make([]Webhook, 0, len(ids))
	for _, cmd := range cmds {
		hash, err := cmd.Result()
		if err != nil {
			return nil, err
		}
		if len(hash) == 0 {
			continue
		}
		webhook := Webhook{}
		if err := webhook.parseRedisHash(hash); err != nil {
			return nil, err
		}
		webhooks = append(webhooks, webhook)
	}
	return webhooks, nil
}

func (s *webhookStoreImpl) FindWebhookByURL(ctx context.Context, url string) (*Webhook, error) {
	id, err := s.redisClient.HGet(ctx, s.redisWebhookURLKey(), url).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrWebhookNotFound
		}
		return nil, err
	}
	return s.RetrieveWebhook(ctx, id)
}

func (s *webhookStoreImpl) UpdateHealth(ctx context.Context, webhookID string, apply func(*Webhook) error) (*Webhook, error) {
	lock := s.lockFor(webhookID)
	lock.Lock()
	defer lock.Unlock()

	webhook, err := s.RetrieveWebhook(ctx, webhookID)
	if err != nil {
		return nil, err
	}

	if err := apply(webhook); err != nil {
		return nil, err
	}
	webhook.UpdatedAt = time.Now()

	key := s.redisWebhookKey(webhookID)
	_, err = s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		writeWebhookHash(ctx, pipe, key, webhook)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return webhook, nil
}

// writeWebhookHash writes the full webhook hash. Optional timestamp fields
// are deleted when absent so parseRedisHash round-trips them as nil.
func writeWebhookHash(ctx context.Context, pipe redis.Pipeliner, key string, webhook *Webhook) {
	pipe.HSet(ctx, key,
		"id", webhook.ID,
		"url", webhook.URL,
		"disabled", strconv.FormatBool(webhook.Disabled),
		"circuit_state", string(webhook.CircuitState),
		"consecutive_failures", webhook.ConsecutiveFailures,
		"half_open_tests", webhook.HalfOpenTests,
		"total_successes", webhook.TotalSuccesses,
		"total_failures", webhook.TotalFailures,
		"created_at", webhook.CreatedAt.UnixMilli(),
		"updated_at", webhook.UpdatedAt.UnixMilli(),
	)
	if webhook.Metadata != nil {
		pipe.HSet(ctx, key, "metadata", &webhook.Metadata)
	} else {
		pipe.HDel(ctx, key, "metadata")
	}
	writeOptionalTime(ctx, pipe, key, "paused_until", webhook.PausedUntil)
	writeOptionalTime(ctx, pipe, key, "circuit_opened_at", webhook.CircuitOpenedAt)
	writeOptionalTime(ctx, pipe, key, "last_failure_time", webhook.LastFailureTime)
}

func writeOptionalTime(ctx context.Context, pipe redis.Pipeliner, key, field string, t *time.Time) {
	if t != nil {
		pipe.HSet(ctx, key, field, t.UnixMilli())
	} else {
		pipe.HDel(ctx, key, field)
	}
}

func (w *Webhook) parseRedisHash(hash map[string]string) error {
	w.ID = hash["id"]
	w.URL = hash["url"]
	w.Disabled = hash["disabled"] == "true"
	w.CircuitState = CircuitState(hash["circuit_state"])
	if !w.CircuitState.Valid() {
		return fmt.Errorf("invalid circuit state: %q", hash["circuit_state"])
	}

	var err error
	if w.ConsecutiveFailures, err = parseHashInt(hash, "consecutive_failures"); err != nil {
		return err
	}
	if w.HalfOpenTests, err = parseHashInt(hash, "half_open_tests"); err != nil {
		return err
	}
	if w.TotalSuccesses, err = parseHashInt64(hash, "total_successes"); err != nil {
		return err
	}
	if w.TotalFailures, err = parseHashInt64(hash, "total_failures"); err != nil {
		return err
	}
	if w.CreatedAt, err = parseHashTime(hash, "created_at"); err != nil {
		return err
	}
	if w.UpdatedAt, err = parseHashTime(hash, "updated_at"); err != nil {
		return err
	}
	if w.PausedUntil, err = parseHashOptionalTime(hash, "paused_until"); err != nil {
		return err
	}
	if w.CircuitOpenedAt, err = parseHashOptionalTime(hash, "circuit_opened_at"); err != nil {
		return err
	}
	if w.LastFailureTime, err = parseHashOptionalTime(hash, "last_failure_time"); err != nil {
		return err
	}

	if metadata, ok := hash["metadata"]; ok {
		if err := w.Metadata.UnmarshalBinary([]byte(metadata)); err != nil {
			return fmt.Errorf("invalid webhook metadata: %w", err)
		}
	}
	return nil
}

func parseHashInt(hash map[string]string, field string) (int, error) {
	value, ok := hash[field]
	if !ok || value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	return n, nil
}

func parseHashInt64(hash map[string]string, field string) (int64, error) {
	value, ok := hash[field]
	if !ok || value == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	return n, nil
}

func parseHashTime(hash map[string]string, field string) (time.Time, error) {
	ms, err := parseHashInt64(hash, field)
	if err != nil {
		return time.Time{}, err
	}
	if ms == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

func parseHashOptionalTime(hash map[string]string, field string) (*time.Time, error) {
	value, ok := hash[field]
	if !ok || value == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", field, err)
	}
	t := time.UnixMilli(ms)
	return &t, nil
}
