// internal/repository/postgres/subscription_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billing-service/internal/domain/billing"
	xerrors "billing-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SubscriptionRepository struct {
	db *pgxpool.Pool
}

func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `
	id, reference, account_id, tier, status,
	monthly_price, currency, billing_cycle,
	current_period_start, current_period_end, next_billing_date,
	consecutive_failures, canceled_at, cancellation_reason,
	version, created_at, updated_at
`

func scanSubscription(row pgx.Row) (*billing.Subscription, error) {
	var s billing.Subscription
	err := row.Scan(
		&s.ID, &s.Reference, &s.AccountID, &s.Tier, &s.Status,
		&s.MonthlyPrice, &s.Currency, &s.BillingCycle,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.NextBillingDate,
		&s.ConsecutiveFailures, &s.CanceledAt, &s.CancellationReason,
		&s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	return &s, nil
}

// Create inserts a new subscription. The partial unique index on
// (account_id, tier) for non-canceled rows enforces the single live
// subscription invariant; violations surface as ErrConflict.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *billing.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			reference, account_id, tier, status,
			monthly_price, currency, billing_cycle,
			current_period_start, current_period_end, next_billing_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, version, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		sub.Reference, sub.AccountID, sub.Tier, sub.Status,
		sub.MonthlyPrice, sub.Currency, sub.BillingCycle,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.NextBillingDate,
	).Scan(&sub.ID, &sub.Version, &sub.CreatedAt, &sub.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return xerrors.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	return nil
}

// FindByID retrieves a subscription by ID
func (r *SubscriptionRepository) FindByID(ctx context.Context, id int64) (*billing.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	return scanSubscription(r.db.QueryRow(ctx, query, id))
}

// FindCurrentByAccount retrieves the newest non-canceled subscription for
// an account, or the most recently canceled one while its paid period is
// still running.
func (r *SubscriptionRepository) FindCurrentByAccount(ctx context.Context, accountID int64) (*billing.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE account_id = $1
		  AND (status <> 'canceled' OR current_period_end > NOW())
		ORDER BY (status <> 'canceled') DESC, created_at DESC
		LIMIT 1
	`
	return scanSubscription(r.db.QueryRow(ctx, query, accountID))
}

// Update performs a version-guarded write of the mutable fields.
func (r *SubscriptionRepository) Update(ctx context.Context, sub *billing.Subscription) error {
	query := `
		UPDATE subscriptions
		SET status = $3,
		    current_period_start = $4, current_period_end = $5,
		    next_billing_date = $6, consecutive_failures = $7,
		    canceled_at = $8, cancellation_reason = $9,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`

	tag, err := r.db.Exec(
		ctx, query,
		sub.ID, sub.Version, sub.Status,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.NextBillingDate, sub.ConsecutiveFailures,
		sub.CanceledAt, sub.CancellationReason,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrVersionConflict
	}

	sub.Version++
	return nil
}

// FindDueForBilling retrieves subscriptions whose next billing date has
// arrived and that are still renewable.
func (r *SubscriptionRepository) FindDueForBilling(ctx context.Context, asOf time.Time) ([]billing.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status IN ('active', 'past_due')
		  AND next_billing_date IS NOT NULL
		  AND next_billing_date <= $1
		ORDER BY next_billing_date ASC
	`

	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []billing.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}

	return subs, rows.Err()
}

// FindCanceledExpired retrieves canceled subscriptions whose paid period has
// fully elapsed; the worker rolls their accounts over to inactive.
func (r *SubscriptionRepository) FindCanceledExpired(ctx context.Context, asOf time.Time) ([]billing.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions s
		WHERE s.status = 'canceled'
		  AND s.current_period_end <= $1
		  AND EXISTS (
			SELECT 1 FROM accounts a
			WHERE a.id = s.account_id AND a.status = 'cancelled'
		  )
		ORDER BY s.current_period_end ASC
	`

	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired canceled subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []billing.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}

	return subs, rows.Err()
}
