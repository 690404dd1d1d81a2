// internal/repository/postgres/payment_attempt_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"billing-service/internal/domain/billing"
	xerrors "billing-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PaymentAttemptRepository struct {
	db *pgxpool.Pool
}

func NewPaymentAttemptRepository(db *pgxpool.Pool) *PaymentAttemptRepository {
	return &PaymentAttemptRepository{db: db}
}

const attemptColumns = `
	id, subscription_id, invoice_id, account_id,
	outcome, failure_reason, gateway_reference, created_at
`

func scanAttempt(row pgx.Row) (*billing.PaymentAttempt, error) {
	var att billing.PaymentAttempt
	err := row.Scan(
		&att.ID, &att.SubscriptionID, &att.InvoiceID, &att.AccountID,
		&att.Outcome, &att.FailureReason, &att.GatewayReference, &att.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment attempt: %w", err)
	}
	return &att, nil
}

// Append writes one charge-try log entry. The gateway reference is the
// idempotency key: a duplicate callback lands on the existing row and the
// method reports inserted=false without erroring.
func (r *PaymentAttemptRepository) Append(ctx context.Context, att *billing.PaymentAttempt) (bool, error) {
	query := `
		INSERT INTO payment_attempts (
			subscription_id, invoice_id, account_id,
			outcome, failure_reason, gateway_reference
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (gateway_reference) DO NOTHING
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		att.SubscriptionID, att.InvoiceID, att.AccountID,
		att.Outcome, att.FailureReason, att.GatewayReference,
	).Scan(&att.ID, &att.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		existing, ferr := r.FindByGatewayReference(ctx, att.GatewayReference)
		if ferr != nil {
			return false, ferr
		}
		*att = *existing
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to append payment attempt: %w", err)
	}

	return true, nil
}

// FindByGatewayReference retrieves an attempt by its gateway reference.
func (r *PaymentAttemptRepository) FindByGatewayReference(ctx context.Context, ref string) (*billing.PaymentAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM payment_attempts WHERE gateway_reference = $1`
	return scanAttempt(r.db.QueryRow(ctx, query, ref))
}

// LatestFailedByAccount retrieves the most recent failed attempt across all
// of the account's subscriptions. The grace window opens at this row's
// timestamp.
func (r *PaymentAttemptRepository) LatestFailedByAccount(ctx context.Context, accountID int64) (*billing.PaymentAttempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM payment_attempts
		WHERE account_id = $1 AND outcome = 'failed'
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	return scanAttempt(r.db.QueryRow(ctx, query, accountID))
}

// ListByInvoice retrieves all attempts for an invoice, oldest first.
func (r *PaymentAttemptRepository) ListByInvoice(ctx context.Context, invoiceID int64) ([]billing.PaymentAttempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM payment_attempts
		WHERE invoice_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment attempts: %w", err)
	}
	defer rows.Close()

	var attempts []billing.PaymentAttempt
	for rows.Next() {
		att, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *att)
	}

	return attempts, rows.Err()
}
