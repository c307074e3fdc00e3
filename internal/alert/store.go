package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/hookhub/relay/internal/redis"
)

const keyPrefixDebounce = "alert:last_alert"

// AlertStore tracks when a webhook last alerted on each topic.
type AlertStore interface {
	// TryDebounce reports whether an alert may be sent now. It records the
	// send time when it returns true.
	TryDebounce(ctx context.Context, webhookID, topic string, interval time.Duration) (bool, error)
}

type redisAlertStore struct {
	client redis.Cmdable
}

// NewRedisAlertStore creates a Redis-backed alert store.
func NewRedisAlertStore(client redis.Cmdable) AlertStore {
	return &redisAlertStore{client: client}
}

func (s *redisAlertStore) TryDebounce(ctx context.Context, webhookID, topic string, interval time.Duration) (bool, error) {
	key := s.debounceKey(webhookID, topic)
	now := time.Now()

	last, err := s.client.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("failed to read last alert time: %w", err)
	}
	if err == nil {
		lastTime, parseErr := time.Parse(time.RFC3339Nano, last)
		if parseErr == nil && now.Sub(lastTime) < interval {
			return false, nil
		}
	}

	if err := s.client.Set(ctx, key, now.Format(time.RFC3339Nano), 0).Err(); err != nil {
		return false, fmt.Errorf("failed to record alert time: %w", err)
	}
	return true, nil
}

func (s *redisAlertStore) debounceKey(webhookID, topic string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefixDebounce, topic, webhookID)
}
