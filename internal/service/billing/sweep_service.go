// internal/service/billing/sweep_service.go
package billing

import (
	"context"
	"database/sql"
	"time"

	"billing-service/internal/domain/account"
	"billing-service/internal/domain/billing"
	xerrors "billing-service/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// SweepService is the only writer of the suspended status. It converts
// expired grace windows into enforced suspensions with a version-guarded
// write, so a payment landing between evaluation and write always wins.
type SweepService struct {
	accounts AccountStore
	subs     SubscriptionStore
	invoices InvoiceStore
	events   EventStore
	grace    *GraceEngine
	logger   *zap.Logger

	now func() time.Time
}

func NewSweepService(
	accounts AccountStore,
	subs SubscriptionStore,
	invoices InvoiceStore,
	events EventStore,
	grace *GraceEngine,
	logger *zap.Logger,
) *SweepService {
	return &SweepService{
		accounts: accounts,
		subs:     subs,
		invoices: invoices,
		events:   events,
		grace:    grace,
		logger:   logger,
		now:      time.Now,
	}
}

// Run suspends every account whose grace deadline has passed without an
// intervening success. Re-running on already-suspended accounts is a no-op
// because they no longer match the candidate listing.
func (s *SweepService) Run(ctx context.Context) (int, error) {
	candidates, err := s.accounts.ListInGraceWindow(ctx)
	if err != nil {
		return 0, err
	}

	suspended := 0
	for i := range candidates {
		acct := candidates[i]
		if s.suspendIfExpired(ctx, &acct) {
			suspended++
		}
	}

	if suspended > 0 {
		s.logger.Info("suspension sweep completed",
			zap.Int("candidates", len(candidates)),
			zap.Int("suspended", suspended),
		)
	}

	return suspended, nil
}

func (s *SweepService) suspendIfExpired(ctx context.Context, acct *account.Account) bool {
	status, err := s.grace.Evaluate(ctx, acct)
	if err != nil {
		s.logger.Error("grace evaluation failed during sweep",
			zap.Int64("account_id", acct.ID),
			zap.Error(err),
		)
		return false
	}

	if status.State != billing.GraceExpired {
		return false
	}

	err = s.accounts.UpdateStatus(ctx, acct.ID, acct.Version, account.StatusSuspended, acct.GracePeriodStartedAt)
	if xerrors.Is(err, xerrors.ErrVersionConflict) {
		// The row moved under us, almost always because a payment just
		// cleared. Re-read and re-evaluate once; if the account paid, the
		// conflict did its job.
		fresh, ferr := s.accounts.FindByID(ctx, acct.ID)
		if ferr != nil {
			s.logger.Error("failed to re-read account after sweep conflict", zap.Int64("account_id", acct.ID), zap.Error(ferr))
			return false
		}
		if !fresh.IsActive() || !fresh.GracePeriodStartedAt.Valid {
			return false
		}

		restatus, rerr := s.grace.Evaluate(ctx, fresh)
		if rerr != nil || restatus.State != billing.GraceExpired {
			return false
		}

		if uerr := s.accounts.UpdateStatus(ctx, fresh.ID, fresh.Version, account.StatusSuspended, fresh.GracePeriodStartedAt); uerr != nil {
			return false
		}
		acct = fresh
	} else if err != nil {
		s.logger.Error("failed to suspend account", zap.Int64("account_id", acct.ID), zap.Error(err))
		return false
	}

	ev := &billing.Event{
		ID:        ulid.Make().String(),
		Type:      billing.EventAccountSuspended,
		AccountID: acct.ID,
		Payload: map[string]interface{}{
			"suspended_at":        s.now(),
			"suspension_deadline": status.SuspensionDeadline,
		},
	}
	if err := s.events.Append(ctx, ev); err != nil {
		s.logger.Error("failed to append suspension event", zap.Error(err))
	}

	s.logger.Warn("account suspended for non-payment",
		zap.Int64("account_id", acct.ID),
		zap.Timep("deadline", status.SuspensionDeadline),
	)

	return true
}

// RolloverCanceled flips accounts whose canceled subscription period has
// fully elapsed from cancelled to inactive.
func (s *SweepService) RolloverCanceled(ctx context.Context) (int, error) {
	expired, err := s.subs.FindCanceledExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}

	rolled := 0
	for i := range expired {
		sub := expired[i]

		acct, err := s.accounts.FindByID(ctx, sub.AccountID)
		if err != nil {
			s.logger.Error("failed to load account for rollover", zap.Int64("account_id", sub.AccountID), zap.Error(err))
			continue
		}
		if acct.Status != account.StatusCancelled {
			continue
		}

		if err := s.accounts.UpdateStatus(ctx, acct.ID, acct.Version, account.StatusInactive, sql.NullTime{}); err != nil {
			if !xerrors.Is(err, xerrors.ErrVersionConflict) {
				s.logger.Error("failed to roll account to inactive", zap.Int64("account_id", acct.ID), zap.Error(err))
			}
			continue
		}

		rolled++
		s.logger.Info("canceled account rolled to inactive",
			zap.Int64("account_id", acct.ID),
			zap.Int64("subscription_id", sub.ID),
			zap.Time("period_ended", sub.CurrentPeriodEnd),
		)
	}

	return rolled, nil
}

// MarkOverdueInvoices flips unpaid invoices past their due date to overdue.
func (s *SweepService) MarkOverdueInvoices(ctx context.Context) (int64, error) {
	return s.invoices.MarkOverdue(ctx, s.now())
}
