// internal/domain/account/entity.go
package account

import (
	"database/sql"
	"time"
)

type AccountStatus string

const (
	StatusPendingPayment   AccountStatus = "pending_payment"
	StatusActiveUnverified AccountStatus = "active_unverified"
	StatusActiveVerified   AccountStatus = "active_verified"
	StatusSuspended        AccountStatus = "suspended"
	StatusCancelled        AccountStatus = "cancelled"
	StatusInactive         AccountStatus = "inactive"
)

// Account is the billable entity. Status transitions are owned by the
// settlement processor and the suspension sweep; handlers never write
// status directly.
type Account struct {
	ID                   int64         `json:"id" db:"id"`
	Status               AccountStatus `json:"status" db:"status"`
	GracePeriodStartedAt sql.NullTime  `json:"grace_period_started_at,omitempty" db:"grace_period_started_at"`
	EmailVerifiedAt      sql.NullTime  `json:"email_verified_at,omitempty" db:"email_verified_at"`

	// PaymentMethodToken is the tokenized payment method reference managed
	// by the external payment-method UI.
	PaymentMethodToken sql.NullString `json:"-" db:"payment_method_token"`

	// Version guards optimistic updates; every write bumps it.
	Version int64 `json:"-" db:"version"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the account is in one of the active states.
func (a *Account) IsActive() bool {
	return a.Status == StatusActiveVerified || a.Status == StatusActiveUnverified
}

// ActiveStatusFor picks the active status matching the email-verification
// state recorded on the account.
func (a *Account) ActiveStatusFor() AccountStatus {
	if a.EmailVerifiedAt.Valid {
		return StatusActiveVerified
	}
	return StatusActiveUnverified
}
