// internal/domain/billing/entity.go
package billing

import (
	"database/sql"
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
)

type BillingCycle string

const (
	CycleDaily     BillingCycle = "daily"
	CycleWeekly    BillingCycle = "weekly"
	CycleMonthly   BillingCycle = "monthly"
	CycleQuarterly BillingCycle = "quarterly"
	CycleYearly    BillingCycle = "yearly"
)

// NextPeriodEnd returns the end of a billing period starting at start.
func (c BillingCycle) NextPeriodEnd(start time.Time) time.Time {
	switch c {
	case CycleDaily:
		return start.AddDate(0, 0, 1)
	case CycleWeekly:
		return start.AddDate(0, 0, 7)
	case CycleMonthly:
		return start.AddDate(0, 1, 0)
	case CycleQuarterly:
		return start.AddDate(0, 3, 0)
	case CycleYearly:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}

// Subscription is one (account, tier) billing relationship. Canceled
// subscriptions are terminal; re-subscribing creates a new row.
type Subscription struct {
	ID        int64  `json:"id" db:"id"`
	Reference string `json:"reference" db:"reference"`
	AccountID int64  `json:"account_id" db:"account_id"`
	Tier      string `json:"tier" db:"tier"`

	Status SubscriptionStatus `json:"status" db:"status"`

	MonthlyPrice float64      `json:"monthly_price" db:"monthly_price"`
	Currency     string       `json:"currency" db:"currency"`
	BillingCycle BillingCycle `json:"billing_cycle" db:"billing_cycle"`

	CurrentPeriodStart time.Time    `json:"current_period_start" db:"current_period_start"`
	CurrentPeriodEnd   time.Time    `json:"current_period_end" db:"current_period_end"`
	NextBillingDate    sql.NullTime `json:"next_billing_date,omitempty" db:"next_billing_date"`

	// ConsecutiveFailures is a derived cache over the payment attempt log;
	// the log is the source of truth.
	ConsecutiveFailures int `json:"consecutive_failures" db:"consecutive_failures"`

	CanceledAt         sql.NullTime   `json:"canceled_at,omitempty" db:"canceled_at"`
	CancellationReason sql.NullString `json:"cancellation_reason,omitempty" db:"cancellation_reason"`

	Version int64 `json:"-" db:"version"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type InvoiceStatus string

const (
	InvoiceStatusUnpaid  InvoiceStatus = "unpaid"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
)

// Invoice is one billing period's charge. Immutable once paid; exactly one
// exists per (subscription, period start).
type Invoice struct {
	ID             int64  `json:"id" db:"id"`
	SubscriptionID int64  `json:"subscription_id" db:"subscription_id"`
	AccountID      int64  `json:"account_id" db:"account_id"`
	InvoiceNumber  string `json:"invoice_number" db:"invoice_number"`

	TotalAmount float64       `json:"total_amount" db:"total_amount"`
	Currency    string        `json:"currency" db:"currency"`
	Status      InvoiceStatus `json:"status" db:"status"`

	PeriodStart time.Time    `json:"period_start" db:"period_start"`
	PeriodEnd   time.Time    `json:"period_end" db:"period_end"`
	InvoiceDate time.Time    `json:"invoice_date" db:"invoice_date"`
	DueDate     time.Time    `json:"due_date" db:"due_date"`
	PaidDate    sql.NullTime `json:"paid_date,omitempty" db:"paid_date"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type AttemptOutcome string

const (
	AttemptSucceeded AttemptOutcome = "succeeded"
	AttemptFailed    AttemptOutcome = "failed"
)

// PaymentAttempt is an append-only log entry per charge try. Rows are never
// mutated or deleted; the grace period engine reads this log.
type PaymentAttempt struct {
	ID               int64          `json:"id" db:"id"`
	SubscriptionID   int64          `json:"subscription_id" db:"subscription_id"`
	InvoiceID        int64          `json:"invoice_id" db:"invoice_id"`
	AccountID        int64          `json:"account_id" db:"account_id"`
	Outcome          AttemptOutcome `json:"outcome" db:"outcome"`
	FailureReason    sql.NullString `json:"failure_reason,omitempty" db:"failure_reason"`
	GatewayReference string         `json:"gateway_reference" db:"gateway_reference"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
}
