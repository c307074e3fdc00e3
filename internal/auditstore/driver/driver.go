package driver

import (
	"context"

	"github.com/hookhub/relay/internal/models"
)

// AuditStore persists the append-only classification rows written after
// every failed delivery attempt. Rows are never updated or deleted by the
// core.
type AuditStore interface {
	// Insert appends one classification row.
	Insert(ctx context.Context, classification *models.ErrorClassification) error
	// ListByWebhook returns the webhook's rows newest first, capped at limit
	// (0 means no cap).
	ListByWebhook(ctx context.Context, webhookID string, limit int) ([]models.ErrorClassification, error)
}
