// internal/service/billing/grace.go
package billing

import (
	"context"
	"time"

	"billing-service/internal/domain/account"
	"billing-service/internal/domain/billing"
	xerrors "billing-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// GraceEngine derives suspension deadlines from the payment attempt log.
// Evaluate is side-effect-free and safe to call on every page load; the
// suspension sweep is the only component that acts on an expired result.
type GraceEngine struct {
	subs     SubscriptionStore
	attempts AttemptStore
	logger   *zap.Logger

	threshold int
	duration  time.Duration
	now       func() time.Time
}

func NewGraceEngine(subs SubscriptionStore, attempts AttemptStore, threshold int, duration time.Duration, logger *zap.Logger) *GraceEngine {
	return &GraceEngine{
		subs:      subs,
		attempts:  attempts,
		logger:    logger,
		threshold: threshold,
		duration:  duration,
		now:       time.Now,
	}
}

// Evaluate computes the grace state for an account. The window opens at the
// timestamp of the failed attempt that crossed the failure threshold and
// stays fixed there; retries after the threshold never move the deadline.
func (e *GraceEngine) Evaluate(ctx context.Context, acct *account.Account) (*billing.GraceStatus, error) {
	var openedAt time.Time

	switch {
	case acct.GracePeriodStartedAt.Valid:
		openedAt = acct.GracePeriodStartedAt.Time

	default:
		sub, err := e.subs.FindCurrentByAccount(ctx, acct.ID)
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return &billing.GraceStatus{State: billing.GraceNone}, nil
		}
		if err != nil {
			return nil, err
		}

		if sub.ConsecutiveFailures < e.threshold {
			return &billing.GraceStatus{State: billing.GraceNone}, nil
		}

		// The counter crossed the threshold but the account write that
		// pins the window start was lost. Recover the opening instant from
		// the attempt log rather than inventing a deadline.
		att, err := e.attempts.LatestFailedByAccount(ctx, acct.ID)
		if xerrors.Is(err, xerrors.ErrNotFound) {
			e.logger.Warn("failure counter has no matching attempt log entry",
				zap.Int64("account_id", acct.ID),
				zap.Int64("subscription_id", sub.ID),
				zap.Int("consecutive_failures", sub.ConsecutiveFailures),
			)
			return &billing.GraceStatus{State: billing.GraceNone}, nil
		}
		if err != nil {
			return nil, err
		}
		openedAt = att.CreatedAt
	}

	deadline := openedAt.Add(e.duration)
	now := e.now()

	status := &billing.GraceStatus{
		OpenedAt:           &openedAt,
		SuspensionDeadline: &deadline,
	}

	if !now.Before(deadline) {
		status.State = billing.GraceExpired
		return status, nil
	}

	remaining := deadline.Sub(now)
	status.State = billing.GraceActive
	status.DaysRemaining = int(remaining / (24 * time.Hour))
	status.HoursRemaining = int(remaining/time.Hour) % 24
	status.MinutesRemaining = int(remaining/time.Minute) % 60
	status.IsCritical = status.DaysRemaining <= 1

	return status, nil
}
