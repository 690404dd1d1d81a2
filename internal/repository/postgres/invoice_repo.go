// internal/repository/postgres/invoice_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billing-service/internal/domain/billing"
	xerrors "billing-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type InvoiceRepository struct {
	db *pgxpool.Pool
}

func NewInvoiceRepository(db *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceColumns = `
	id, subscription_id, account_id, invoice_number,
	total_amount, currency, status,
	period_start, period_end, invoice_date, due_date, paid_date,
	created_at, updated_at
`

func scanInvoice(row pgx.Row) (*billing.Invoice, error) {
	var inv billing.Invoice
	err := row.Scan(
		&inv.ID, &inv.SubscriptionID, &inv.AccountID, &inv.InvoiceNumber,
		&inv.TotalAmount, &inv.Currency, &inv.Status,
		&inv.PeriodStart, &inv.PeriodEnd, &inv.InvoiceDate, &inv.DueDate, &inv.PaidDate,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan invoice: %w", err)
	}
	return &inv, nil
}

// CreateForPeriod inserts one invoice per (subscription, period start).
// A re-invocation for the same period returns the existing row unchanged
// with created=false; the generator never double-bills. Number allocation
// and insert share one transaction so numbers stay monotonic per account
// without gaps from lost races.
func (r *InvoiceRepository) CreateForPeriod(ctx context.Context, inv *billing.Invoice) (*billing.Invoice, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Existing invoice for this period wins; the lock on the counter row
	// below serializes concurrent generators for the same account.
	existing, err := scanInvoiceTx(tx, ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE subscription_id = $1 AND period_start = $2
	`, inv.SubscriptionID, inv.PeriodStart)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, false, err
	}

	var seq int64
	err = tx.QueryRow(ctx, `
		INSERT INTO invoice_counters (account_id, next_number)
		VALUES ($1, 2)
		ON CONFLICT (account_id)
		DO UPDATE SET next_number = invoice_counters.next_number + 1
		RETURNING next_number - 1
	`, inv.AccountID).Scan(&seq)
	if err != nil {
		return nil, false, fmt.Errorf("failed to allocate invoice number: %w", err)
	}

	inv.InvoiceNumber = fmt.Sprintf("INV-%d-%06d", inv.AccountID, seq)

	err = tx.QueryRow(ctx, `
		INSERT INTO invoices (
			subscription_id, account_id, invoice_number,
			total_amount, currency, status,
			period_start, period_end, invoice_date, due_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (subscription_id, period_start) DO NOTHING
		RETURNING id, created_at, updated_at
	`,
		inv.SubscriptionID, inv.AccountID, inv.InvoiceNumber,
		inv.TotalAmount, inv.Currency, inv.Status,
		inv.PeriodStart, inv.PeriodEnd, inv.InvoiceDate, inv.DueDate,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		// Lost a race with another generator after the existence check.
		existing, err = scanInvoiceTx(tx, ctx, `
			SELECT `+invoiceColumns+`
			FROM invoices
			WHERE subscription_id = $1 AND period_start = $2
		`, inv.SubscriptionID, inv.PeriodStart)
		if err != nil {
			return nil, false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create invoice: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return inv, true, nil
}

func scanInvoiceTx(tx pgx.Tx, ctx context.Context, query string, args ...interface{}) (*billing.Invoice, error) {
	return scanInvoice(tx.QueryRow(ctx, query, args...))
}

// FindByID retrieves an invoice by ID
func (r *InvoiceRepository) FindByID(ctx context.Context, id int64) (*billing.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	return scanInvoice(r.db.QueryRow(ctx, query, id))
}

// FindByNumber retrieves an invoice by its human-shareable number.
func (r *InvoiceRepository) FindByNumber(ctx context.Context, number string) (*billing.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE invoice_number = $1`
	return scanInvoice(r.db.QueryRow(ctx, query, number))
}

// ListByAccount retrieves invoices for an account, newest first.
func (r *InvoiceRepository) ListByAccount(ctx context.Context, accountID int64, page, pageSize int) ([]billing.Invoice, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE account_id = $1`, accountID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count invoices: %w", err)
	}

	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE account_id = $1
		ORDER BY invoice_date DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, accountID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, *inv)
	}

	return invoices, total, rows.Err()
}

// MarkPaid flips an unsettled invoice to paid. The status precondition makes
// the write idempotent: the second of two racing settlements affects zero
// rows and reports paid=false, which callers treat as "already settled".
func (r *InvoiceRepository) MarkPaid(ctx context.Context, id int64, paidAt time.Time) (bool, error) {
	query := `
		UPDATE invoices
		SET status = 'paid', paid_date = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('unpaid', 'overdue')
	`

	tag, err := r.db.Exec(ctx, query, id, paidAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark invoice paid: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// MarkOverdue flips unpaid invoices past their due date to overdue and
// returns how many rows changed. Paid invoices are immutable and untouched.
func (r *InvoiceRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	query := `
		UPDATE invoices
		SET status = 'overdue', updated_at = NOW()
		WHERE status = 'unpaid' AND due_date < $1
	`

	tag, err := r.db.Exec(ctx, query, asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to mark invoices overdue: %w", err)
	}

	return tag.RowsAffected(), nil
}

// AcquireSettlementLock takes a session-scoped advisory lock on the invoice
// so at most one settlement attempt is in flight per invoice. The returned
// release function must be called when acquired; ok=false means another
// attempt holds the lock.
func (r *InvoiceRepository) AcquireSettlementLock(ctx context.Context, invoiceID int64) (release func(), ok bool, err error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, invoiceID).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("failed to take settlement lock: %w", err)
	}

	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	release = func() {
		// Unlock on a background context so a canceled request still
		// releases the advisory lock before the connection goes back.
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, invoiceID)
		conn.Release()
	}

	return release, true, nil
}
