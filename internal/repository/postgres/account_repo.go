// internal/repository/postgres/account_repo.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"billing-service/internal/domain/account"
	xerrors "billing-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AccountRepository struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `
	id, status, grace_period_started_at, email_verified_at,
	payment_method_token, version, created_at, updated_at
`

func scanAccount(row pgx.Row) (*account.Account, error) {
	var a account.Account
	err := row.Scan(
		&a.ID, &a.Status, &a.GracePeriodStartedAt, &a.EmailVerifiedAt,
		&a.PaymentMethodToken, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &a, nil
}

// FindByID retrieves an account by ID
func (r *AccountRepository) FindByID(ctx context.Context, id int64) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRow(ctx, query, id))
}

// UpdateStatus performs a version-guarded status write. The write only
// lands if the row version is unchanged since the caller's read; otherwise
// ErrVersionConflict is returned and the caller re-reads and retries once.
func (r *AccountRepository) UpdateStatus(ctx context.Context, id, version int64, status account.AccountStatus, graceStartedAt sql.NullTime) error {
	query := `
		UPDATE accounts
		SET status = $3, grace_period_started_at = $4,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`

	tag, err := r.db.Exec(ctx, query, id, version, status, graceStartedAt)
	if err != nil {
		return fmt.Errorf("failed to update account status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrVersionConflict
	}

	return nil
}

// ListInGraceWindow retrieves accounts with an open failure-tracking window
// that are still in an active state; these are the sweep's candidates.
func (r *AccountRepository) ListInGraceWindow(ctx context.Context) ([]account.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE grace_period_started_at IS NOT NULL
		  AND status IN ('active_verified', 'active_unverified')
		ORDER BY grace_period_started_at ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts in grace window: %w", err)
	}
	defer rows.Close()

	var accounts []account.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}

	return accounts, rows.Err()
}
