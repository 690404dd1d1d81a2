// internal/domain/billing/events.go
package billing

import (
	"database/sql"
	"time"
)

type EventType string

const (
	EventPaymentSucceeded     EventType = "payment.succeeded"
	EventPaymentFailed        EventType = "payment.failed"
	EventGraceOpened          EventType = "grace.opened"
	EventAccountSuspended     EventType = "account.suspended"
	EventSubscriptionCanceled EventType = "subscription.canceled"
)

// Event is an outbox row recorded once per state transition and published
// to notification collaborators after the fact.
type Event struct {
	ID             string                 `json:"id" db:"id"`
	Type           EventType              `json:"type" db:"type"`
	AccountID      int64                  `json:"account_id" db:"account_id"`
	SubscriptionID sql.NullInt64          `json:"subscription_id,omitempty" db:"subscription_id"`
	Payload        map[string]interface{} `json:"payload,omitempty" db:"payload"`
	PublishedAt    sql.NullTime           `json:"published_at,omitempty" db:"published_at"`
	CreatedAt      time.Time              `json:"created_at" db:"created_at"`
}
