package pgauditstore

import (
	"context"
	"fmt"

	"github.com/hookhub/relay/internal/auditstore/driver"
	"github.com/hookhub/relay/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type auditStore struct {
	db *pgxpool.Pool
}

var _ driver.AuditStore = (*auditStore)(nil)

func NewAuditStore(db *pgxpool.Pool) driver.AuditStore {
	return &auditStore{db: db}
}

func (s *auditStore) Insert(ctx context.Context, classification *models.ErrorClassification) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO error_classifications (
			id,
			event_id,
			webhook_id,
			http_status_code,
			error_message,
			decision,
			explanation,
			error_type,
			retry_after_seconds,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		classification.ID,
		classification.EventID,
		classification.WebhookID,
		classification.HTTPStatusCode,
		classification.ErrorMessage,
		string(classification.Decision),
		classification.Explanation,
		string(classification.ErrorType),
		classification.RetryAfterSeconds,
		classification.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert classification: %w", err)
	}
	return nil
}

func (s *auditStore) ListByWebhook(ctx context.Context, webhookID string, limit int) ([]models.ErrorClassification, error) {
	query := `
		SELECT
			id,
			event_id,
			webhook_id,
			http_status_code,
			error_message,
			decision,
			explanation,
			error_type,
			retry_after_seconds,
			created_at
		FROM error_classifications
		WHERE webhook_id = $1
		ORDER BY created_at DESC, id DESC
	`
	args := []any{webhookID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query classifications: %w", err)
	}
	defer rows.Close()

	return scanClassifications(rows)
}

func scanClassifications(rows pgx.Rows) ([]models.ErrorClassification, error) {
	classifications := make([]models.ErrorClassification, 0)
	for rows.Next() {
		var (
			classification models.ErrorClassification
			decision       string
			errorType      string
		)
		if err := rows.Scan(
			&classification.ID,
			&classification.EventID,
			&classification.WebhookID,
			&classification.HTTPStatusCode,
			&classification.ErrorMessage,
			&decision,
			&classification.Explanation,
			&errorType,
			&classification.RetryAfterSeconds,
			&classification.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan classification: %w", err)
		}
		classification.Decision = models.Decision(decision)
		classification.ErrorType = models.ErrorType(errorType)
		classifications = append(classifications, classification)
	}
	return classifications, rows.Err()
}
