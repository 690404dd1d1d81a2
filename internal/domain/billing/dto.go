// internal/domain/billing/dto.go
package billing

import "time"

// CheckoutRequest starts a subscription for the authenticated account.
type CheckoutRequest struct {
	Tier      string `json:"tier" binding:"required"`
	AutoRenew bool   `json:"auto_renew"`
}

// CancelSubscriptionRequest is a user-initiated cancel. Access is retained
// until the end of the already-paid period.
type CancelSubscriptionRequest struct {
	Reason string `json:"reason"`
}

// SettlementResult is the normalized outcome of one settlement attempt.
type SettlementResult struct {
	Succeeded     bool   `json:"succeeded"`
	AlreadyPaid   bool   `json:"already_paid"`
	DeclineReason string `json:"decline_reason,omitempty"`
	InvoiceID     int64  `json:"invoice_id"`
	AttemptID     int64  `json:"attempt_id,omitempty"`
}

type GraceState string

const (
	GraceNone    GraceState = "none"
	GraceActive  GraceState = "active"
	GraceExpired GraceState = "expired"
)

// GraceStatus is the evaluator's read-only view of an account's grace
// window. The deadline is server-computed; clients only display it.
type GraceStatus struct {
	State              GraceState `json:"state"`
	OpenedAt           *time.Time `json:"opened_at,omitempty"`
	SuspensionDeadline *time.Time `json:"suspension_deadline,omitempty"`
	DaysRemaining      int        `json:"days_remaining"`
	HoursRemaining     int        `json:"hours_remaining"`
	MinutesRemaining   int        `json:"minutes_remaining"`
	IsCritical         bool       `json:"is_critical"`
}

// InGrace reports whether a countdown is currently running.
func (g *GraceStatus) InGrace() bool {
	return g != nil && g.State == GraceActive
}

// AccessDecision is the access gate's answer for one (account, feature).
type AccessDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`

	// Warning carries the grace countdown when access is still allowed but
	// the caller should render a non-blocking banner.
	Warning *GraceStatus `json:"warning,omitempty"`
}

type StatusSeverity string

const (
	SeverityOK       StatusSeverity = "ok"
	SeverityWarning  StatusSeverity = "warning"
	SeverityCritical StatusSeverity = "critical"
	SeverityBlocked  StatusSeverity = "blocked"
)

// BillingStatus is the poll-friendly projection consumed by banner/modal UIs.
type BillingStatus struct {
	AccountID     int64          `json:"account_id"`
	AccountStatus string         `json:"account_status"`
	Severity      StatusSeverity `json:"severity"`
	Grace         *GraceStatus   `json:"grace,omitempty"`
	Subscription  *Subscription  `json:"subscription,omitempty"`
	GeneratedAt   time.Time      `json:"generated_at"`
}

// InvoiceListResponse pages immutable invoice records.
type InvoiceListResponse struct {
	Invoices []Invoice `json:"invoices"`
	Total    int64     `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}
