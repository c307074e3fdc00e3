package redisauditstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hookhub/relay/internal/auditstore/driver"
	"github.com/hookhub/relay/internal/models"
	"github.com/hookhub/relay/internal/redis"
)

// maxRowsPerWebhook bounds the per-webhook audit list so a permanently
// broken endpoint cannot grow Redis without limit. Postgres is the driver
// for unbounded retention.
const maxRowsPerWebhook = 1000

type auditStore struct {
	redisClient redis.Cmdable
}

var _ driver.AuditStore = (*auditStore)(nil)

func NewAuditStore(redisClient redis.Cmdable) driver.AuditStore {
	return &auditStore{redisClient: redisClient}
}

func (s *auditStore) redisAuditKey(webhookID string) string {
	return fmt.Sprintf("audit:webhook:%s", webhookID)
}

func (s *auditStore) Insert(ctx context.Context, classification *models.ErrorClassification) error {
	data, err := json.Marshal(classification)
	if err != nil {
		return err
	}

	key := s.redisAuditKey(classification.WebhookID)
	_, err = s.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, maxRowsPerWebhook-1)
		return nil
	})
	return err
}

func (s *auditStore) ListByWebhook(ctx context.Context, webhookID string, limit int) ([]models.ErrorClassification, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	values, err := s.redisClient.LRange(ctx, s.redisAuditKey(webhookID), 0, stop).Result()
	if err != nil {
		return nil, err
	}

	rows := make([]models.ErrorClassification, 0, len(values))
	for _, value := range values {
		var classification models.ErrorClassification
		if err := json.Unmarshal([]byte(value), &classification); err != nil {
			return nil, fmt.Errorf("invalid audit row: %w", err)
		}
		rows = append(rows, classification)
	}
	return rows, nil
}
