// internal/service/billing/store.go
package billing

import (
	"context"
	"database/sql"
	"time"

	"billing-service/internal/domain/account"
	"billing-service/internal/domain/billing"
)

// Ledger store interfaces. The postgres repositories implement these; tests
// substitute in-memory fakes. Every mutation is version-guarded so that the
// sweep, the scheduled billing run and user actions can race safely on the
// same rows.

type AccountStore interface {
	FindByID(ctx context.Context, id int64) (*account.Account, error)
	UpdateStatus(ctx context.Context, id, version int64, status account.AccountStatus, graceStartedAt sql.NullTime) error
	ListInGraceWindow(ctx context.Context) ([]account.Account, error)
}

type SubscriptionStore interface {
	Create(ctx context.Context, sub *billing.Subscription) error
	FindByID(ctx context.Context, id int64) (*billing.Subscription, error)
	FindCurrentByAccount(ctx context.Context, accountID int64) (*billing.Subscription, error)
	Update(ctx context.Context, sub *billing.Subscription) error
	FindDueForBilling(ctx context.Context, asOf time.Time) ([]billing.Subscription, error)
	FindCanceledExpired(ctx context.Context, asOf time.Time) ([]billing.Subscription, error)
}

type InvoiceStore interface {
	CreateForPeriod(ctx context.Context, inv *billing.Invoice) (*billing.Invoice, bool, error)
	FindByID(ctx context.Context, id int64) (*billing.Invoice, error)
	FindByNumber(ctx context.Context, number string) (*billing.Invoice, error)
	ListByAccount(ctx context.Context, accountID int64, page, pageSize int) ([]billing.Invoice, int64, error)
	MarkPaid(ctx context.Context, id int64, paidAt time.Time) (bool, error)
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
	AcquireSettlementLock(ctx context.Context, invoiceID int64) (release func(), ok bool, err error)
}

type AttemptStore interface {
	Append(ctx context.Context, att *billing.PaymentAttempt) (bool, error)
	LatestFailedByAccount(ctx context.Context, accountID int64) (*billing.PaymentAttempt, error)
	ListByInvoice(ctx context.Context, invoiceID int64) ([]billing.PaymentAttempt, error)
}

type EventStore interface {
	Append(ctx context.Context, ev *billing.Event) error
	ListUnpublished(ctx context.Context, limit int) ([]billing.Event, error)
	MarkPublished(ctx context.Context, ids []string) error
}
