// internal/service/billing/subscription_service.go
package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"billing-service/internal/domain/account"
	"billing-service/internal/domain/billing"
	xerrors "billing-service/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// SubscriptionService owns the subscription lifecycle: first checkout,
// cancel, and reads. Canceled subscriptions are never resurrected; a new
// checkout creates a new row.
type SubscriptionService struct {
	accounts   AccountStore
	subs       SubscriptionStore
	events     EventStore
	invoiceSvc *InvoiceService
	settlement *SettlementService
	logger     *zap.Logger

	plans map[string]float64
	cycle billing.BillingCycle
	now   func() time.Time
}

func NewSubscriptionService(
	accounts AccountStore,
	subs SubscriptionStore,
	events EventStore,
	invoiceSvc *InvoiceService,
	settlement *SettlementService,
	plans map[string]float64,
	logger *zap.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		accounts:   accounts,
		subs:       subs,
		events:     events,
		invoiceSvc: invoiceSvc,
		settlement: settlement,
		logger:     logger,
		plans:      plans,
		cycle:      billing.CycleMonthly,
		now:        time.Now,
	}
}

// Checkout creates an incomplete subscription, generates the first invoice
// and attempts settlement immediately. The subscription turns active only
// on the first successful settlement.
func (s *SubscriptionService) Checkout(ctx context.Context, accountID int64, req *billing.CheckoutRequest) (*billing.Subscription, *billing.SettlementResult, error) {
	price, ok := s.plans[req.Tier]
	if !ok {
		return nil, nil, fmt.Errorf("unknown tier %q: %w", req.Tier, xerrors.ErrInvalidInput)
	}

	if _, err := s.accounts.FindByID(ctx, accountID); err != nil {
		return nil, nil, fmt.Errorf("account not found: %w", err)
	}

	start := s.now()
	sub := &billing.Subscription{
		Reference:          fmt.Sprintf("SUB-%s", ulid.Make().String()),
		AccountID:          accountID,
		Tier:               req.Tier,
		Status:             billing.SubscriptionStatusIncomplete,
		MonthlyPrice:       price,
		Currency:           "USD",
		BillingCycle:       s.cycle,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   s.cycle.NextPeriodEnd(start),
	}
	if req.AutoRenew {
		sub.NextBillingDate = sql.NullTime{Time: sub.CurrentPeriodEnd, Valid: true}
	}

	if err := s.subs.Create(ctx, sub); err != nil {
		if xerrors.Is(err, xerrors.ErrConflict) {
			return nil, nil, fmt.Errorf("account already has a live subscription for tier %q: %w", req.Tier, err)
		}
		return nil, nil, err
	}

	inv, err := s.invoiceSvc.Generate(ctx, sub.ID, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
	if err != nil {
		return nil, nil, err
	}

	result, err := s.settlement.Attempt(ctx, inv.ID)
	if err != nil {
		return nil, nil, err
	}

	sub, err = s.subs.FindByID(ctx, sub.ID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("checkout completed",
		zap.Int64("subscription_id", sub.ID),
		zap.String("reference", sub.Reference),
		zap.Int64("account_id", accountID),
		zap.String("tier", req.Tier),
		zap.Bool("settled", result.Succeeded),
	)

	return sub, result, nil
}

// Cancel marks a subscription canceled. Access is retained until the end of
// the already-paid period; the worker rolls the account to inactive after
// that instant. Suspension is never reachable from here.
func (s *SubscriptionService) Cancel(ctx context.Context, accountID, subscriptionID int64, req *billing.CancelSubscriptionRequest, isAdmin bool) error {
	sub, err := s.subs.FindByID(ctx, subscriptionID)
	if err != nil {
		return err
	}

	if !isAdmin && sub.AccountID != accountID {
		return xerrors.ErrUnauthorized
	}

	if sub.Status == billing.SubscriptionStatusCanceled {
		return fmt.Errorf("subscription is already canceled")
	}

	canceledAt := s.now()
	err = s.updateSubscription(ctx, sub, func(fresh *billing.Subscription) {
		fresh.Status = billing.SubscriptionStatusCanceled
		fresh.CanceledAt = sql.NullTime{Time: canceledAt, Valid: true}
		if req.Reason != "" {
			fresh.CancellationReason = sql.NullString{String: req.Reason, Valid: true}
		}
		fresh.NextBillingDate = sql.NullTime{}
	})
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}

	acct, err := s.accounts.FindByID(ctx, sub.AccountID)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdateStatus(ctx, acct.ID, acct.Version, account.StatusCancelled, sql.NullTime{}); err != nil {
		if !xerrors.Is(err, xerrors.ErrVersionConflict) {
			return fmt.Errorf("failed to update account on cancel: %w", err)
		}
		fresh, ferr := s.accounts.FindByID(ctx, acct.ID)
		if ferr != nil {
			return ferr
		}
		if uerr := s.accounts.UpdateStatus(ctx, fresh.ID, fresh.Version, account.StatusCancelled, sql.NullTime{}); uerr != nil {
			return fmt.Errorf("failed to update account on cancel: %w", uerr)
		}
	}

	ev := &billing.Event{
		ID:             ulid.Make().String(),
		Type:           billing.EventSubscriptionCanceled,
		AccountID:      sub.AccountID,
		SubscriptionID: sql.NullInt64{Int64: sub.ID, Valid: true},
		Payload: map[string]interface{}{
			"reason":             req.Reason,
			"canceled_at":        canceledAt,
			"current_period_end": sub.CurrentPeriodEnd,
		},
	}
	if err := s.events.Append(ctx, ev); err != nil {
		s.logger.Error("failed to append cancel event", zap.Error(err))
	}

	s.logger.Info("subscription canceled",
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("account_id", sub.AccountID),
		zap.String("reason", req.Reason),
		zap.Time("access_until", sub.CurrentPeriodEnd),
	)

	return nil
}

// GetCurrent retrieves the account's current subscription.
func (s *SubscriptionService) GetCurrent(ctx context.Context, accountID int64) (*billing.Subscription, error) {
	return s.subs.FindCurrentByAccount(ctx, accountID)
}

func (s *SubscriptionService) updateSubscription(ctx context.Context, sub *billing.Subscription, mutate func(*billing.Subscription)) error {
	mutate(sub)
	err := s.subs.Update(ctx, sub)
	if !xerrors.Is(err, xerrors.ErrVersionConflict) {
		return err
	}

	fresh, ferr := s.subs.FindByID(ctx, sub.ID)
	if ferr != nil {
		return ferr
	}
	mutate(fresh)
	if uerr := s.subs.Update(ctx, fresh); uerr != nil {
		return uerr
	}
	*sub = *fresh
	return nil
}
