package memauditstore

import (
	"context"
	"sync"

	"github.com/hookhub/relay/internal/auditstore/driver"
	"github.com/hookhub/relay/internal/models"
)

type auditStore struct {
	mu sync.Mutex
	// newest first, per webhook
	rows map[string][]models.ErrorClassification
}

var _ driver.AuditStore = (*auditStore)(nil)

func NewAuditStore() driver.AuditStore {
	return &auditStore{rows: make(map[string][]models.ErrorClassification)}
}

func (s *auditStore) Insert(ctx context.Context, classification *models.ErrorClassification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.rows[classification.WebhookID]
	s.rows[classification.WebhookID] = append([]models.ErrorClassification{*classification}, rows...)
	return nil
}

func (s *auditStore) ListByWebhook(ctx context.Context, webhookID string, limit int) ([]models.ErrorClassification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.rows[webhookID]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]models.ErrorClassification, len(rows))
	copy(out, rows)
	return out, nil
}
