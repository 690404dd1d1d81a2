// internal/service/billing/access_service.go
package billing

import (
	"context"
	"time"

	"billing-service/internal/domain/account"
	"billing-service/internal/domain/billing"
	xerrors "billing-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// FeatureBilling is the one feature never denied: a locked-out user must
// always be able to reach the pay-now flow.
const FeatureBilling = "billing"

// AccessService answers "may this account use feature X right now". It is
// a pure read over account status and the grace engine; it never mutates.
// The policy is graduated: warn while a grace window runs, block only once
// the sweep has enforced suspension.
type AccessService struct {
	accounts AccountStore
	subs     SubscriptionStore
	grace    *GraceEngine
	logger   *zap.Logger

	now func() time.Time
}

func NewAccessService(accounts AccountStore, subs SubscriptionStore, grace *GraceEngine, logger *zap.Logger) *AccessService {
	return &AccessService{
		accounts: accounts,
		subs:     subs,
		grace:    grace,
		logger:   logger,
		now:      time.Now,
	}
}

// CanAccess decides access for one (account, feature) pair.
func (s *AccessService) CanAccess(ctx context.Context, accountID int64, feature string) (*billing.AccessDecision, error) {
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	switch acct.Status {
	case account.StatusSuspended:
		return s.denyExceptBilling(feature, "account suspended for non-payment"), nil

	case account.StatusPendingPayment:
		return s.denyExceptBilling(feature, "payment required to activate account"), nil

	case account.StatusInactive:
		return s.denyExceptBilling(feature, "subscription has ended"), nil

	case account.StatusCancelled:
		// Canceled keeps access through the already-paid period.
		sub, err := s.subs.FindCurrentByAccount(ctx, accountID)
		if err == nil && s.now().Before(sub.CurrentPeriodEnd) {
			return &billing.AccessDecision{Allowed: true}, nil
		}
		if err != nil && !xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
		return s.denyExceptBilling(feature, "subscription has ended"), nil

	case account.StatusActiveVerified, account.StatusActiveUnverified:
		status, err := s.grace.Evaluate(ctx, acct)
		if err != nil {
			return nil, err
		}
		// The banner is informational prior to actual suspension; even an
		// expired window stays allow-with-warning until the sweep, the
		// sole writer of suspended, enforces it.
		if status.State != billing.GraceNone {
			return &billing.AccessDecision{Allowed: true, Warning: status}, nil
		}
		return &billing.AccessDecision{Allowed: true}, nil

	default:
		s.logger.Warn("access check on unknown account status",
			zap.Int64("account_id", accountID),
			zap.String("status", string(acct.Status)),
		)
		return s.denyExceptBilling(feature, "account is not in an active state"), nil
	}
}

func (s *AccessService) denyExceptBilling(feature, reason string) *billing.AccessDecision {
	if feature == FeatureBilling {
		return &billing.AccessDecision{Allowed: true}
	}
	return &billing.AccessDecision{Allowed: false, Reason: reason}
}
