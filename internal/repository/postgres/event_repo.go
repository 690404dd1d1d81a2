// internal/repository/postgres/event_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"billing-service/internal/domain/billing"

	"github.com/jackc/pgx/v5/pgxpool"
)

type EventRepository struct {
	db *pgxpool.Pool
}

func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Append records a domain event in the outbox. Only the writer that won the
// guarded state transition appends, which keeps the outbox at exactly one
// event per transition.
func (r *EventRepository) Append(ctx context.Context, ev *billing.Event) error {
	var payloadJSON []byte
	var err error

	if ev.Payload != nil {
		payloadJSON, err = json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal event payload: %w", err)
		}
	}

	query := `
		INSERT INTO billing_events (id, type, account_id, subscription_id, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := r.db.Exec(ctx, query, ev.ID, ev.Type, ev.AccountID, ev.SubscriptionID, payloadJSON); err != nil {
		return fmt.Errorf("failed to append billing event: %w", err)
	}

	return nil
}

// ListUnpublished retrieves outbox rows not yet delivered, oldest first.
func (r *EventRepository) ListUnpublished(ctx context.Context, limit int) ([]billing.Event, error) {
	query := `
		SELECT id, type, account_id, subscription_id, payload, published_at, created_at
		FROM billing_events
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unpublished events: %w", err)
	}
	defer rows.Close()

	var events []billing.Event
	for rows.Next() {
		var ev billing.Event
		var payloadJSON []byte

		if err := rows.Scan(&ev.ID, &ev.Type, &ev.AccountID, &ev.SubscriptionID, &payloadJSON, &ev.PublishedAt, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan billing event: %w", err)
		}
		if len(payloadJSON) > 0 {
			_ = json.Unmarshal(payloadJSON, &ev.Payload)
		}

		events = append(events, ev)
	}

	return events, rows.Err()
}

// MarkPublished stamps delivered events.
func (r *EventRepository) MarkPublished(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE billing_events
		SET published_at = NOW()
		WHERE id = ANY($1) AND published_at IS NULL
	`

	if _, err := r.db.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("failed to mark events published: %w", err)
	}

	return nil
}
