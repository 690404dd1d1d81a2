// internal/service/billing/projection_service.go
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"billing-service/internal/domain/account"
	"billing-service/internal/domain/billing"
	xerrors "billing-service/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ProjectionService builds the poll-friendly banner view. Results are
// cached in redis for the poll interval; the cache is an optimization, so
// redis being down degrades to direct reads, never to an error.
type ProjectionService struct {
	accounts AccountStore
	subs     SubscriptionStore
	grace    *GraceEngine
	rdb      *redis.Client
	logger   *zap.Logger

	cacheTTL time.Duration
	now      func() time.Time
}

func NewProjectionService(
	accounts AccountStore,
	subs SubscriptionStore,
	grace *GraceEngine,
	rdb *redis.Client,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *ProjectionService {
	return &ProjectionService{
		accounts: accounts,
		subs:     subs,
		grace:    grace,
		rdb:      rdb,
		logger:   logger,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

func statusCacheKey(accountID int64) string {
	return fmt.Sprintf("billing:status:%d", accountID)
}

// Status returns the banner projection for an account.
func (s *ProjectionService) Status(ctx context.Context, accountID int64) (*billing.BillingStatus, error) {
	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, statusCacheKey(accountID)).Bytes(); err == nil {
			var cached billing.BillingStatus
			if jerr := json.Unmarshal(raw, &cached); jerr == nil {
				return &cached, nil
			}
		}
	}

	status, err := s.build(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if s.rdb != nil {
		if raw, jerr := json.Marshal(status); jerr == nil {
			if err := s.rdb.Set(ctx, statusCacheKey(accountID), raw, s.cacheTTL).Err(); err != nil {
				s.logger.Warn("failed to cache billing status", zap.Int64("account_id", accountID), zap.Error(err))
			}
		}
	}

	return status, nil
}

// Invalidate drops the cached projection so the next poll sees a fresh
// state transition immediately instead of after the TTL.
func (s *ProjectionService) Invalidate(ctx context.Context, accountID int64) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, statusCacheKey(accountID)).Err(); err != nil {
		s.logger.Warn("failed to invalidate billing status cache", zap.Int64("account_id", accountID), zap.Error(err))
	}
}

func (s *ProjectionService) build(ctx context.Context, accountID int64) (*billing.BillingStatus, error) {
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	status := &billing.BillingStatus{
		AccountID:     accountID,
		AccountStatus: string(acct.Status),
		Severity:      billing.SeverityOK,
		GeneratedAt:   s.now(),
	}

	sub, err := s.subs.FindCurrentByAccount(ctx, accountID)
	if err == nil {
		status.Subscription = sub
	} else if !xerrors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	switch acct.Status {
	case account.StatusSuspended, account.StatusPendingPayment, account.StatusInactive:
		status.Severity = billing.SeverityBlocked

	case account.StatusCancelled:
		if sub == nil || !s.now().Before(sub.CurrentPeriodEnd) {
			status.Severity = billing.SeverityBlocked
		} else {
			status.Severity = billing.SeverityWarning
		}

	case account.StatusActiveVerified, account.StatusActiveUnverified:
		gs, err := s.grace.Evaluate(ctx, acct)
		if err != nil {
			return nil, err
		}
		if gs.State != billing.GraceNone {
			status.Grace = gs
			status.Severity = billing.SeverityWarning
			if gs.IsCritical || gs.State == billing.GraceExpired {
				status.Severity = billing.SeverityCritical
			}
		}
	}

	return status, nil
}
