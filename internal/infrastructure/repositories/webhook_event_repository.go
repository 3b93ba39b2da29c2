package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/optionpay/payout-service/internal/domain/entities"
)

// WebhookEventRepository records every inbound provider callback attempt
// with its handling outcome, whether or not it mutated anything.
type WebhookEventRepository struct {
	db *sqlx.DB
}

// NewWebhookEventRepository creates a new webhook event repository.
func NewWebhookEventRepository(db *sqlx.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Record appends a webhook event audit row.
func (r *WebhookEventRepository) Record(ctx context.Context, e *entities.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (
			id, provider, event_type, event_id, request_id, outcome, detail, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Provider, e.EventType, e.EventID, e.RequestID, e.Outcome, e.Detail, e.ReceivedAt)
	if err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}
