package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// WebhookEventRepositoryInterface records which provider deliveries were already applied.
type WebhookEventRepositoryInterface interface {
	// MarkProcessed returns false when the event was recorded before.
	MarkProcessed(ctx context.Context, provider, eventID, eventType string) (bool, error)
	// Unmark forgets an event so a redelivery is applied again.
	Unmark(ctx context.Context, provider, eventID string) error
}

type WebhookEventRepository struct {
	DB *sql.DB
}

func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, provider, eventID, eventType string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO billing_webhook_events (provider, provider_event_id, event_type, processed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, provider, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("mark webhook event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *WebhookEventRepository) Unmark(ctx context.Context, provider, eventID string) error {
	_, err := r.DB.ExecContext(ctx,
		`DELETE FROM billing_webhook_events WHERE provider=$1 AND provider_event_id=$2`, provider, eventID)
	if err != nil {
		return fmt.Errorf("unmark webhook event: %w", err)
	}
	return nil
}

var _ WebhookEventRepositoryInterface = (*WebhookEventRepository)(nil)
