// internal/service/billing/settlement_service.go
package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"billing-service/internal/domain/account"
	"billing-service/internal/domain/billing"
	"billing-service/internal/gateway"
	xerrors "billing-service/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// SettlementService attempts to charge an invoice, records the attempt in
// the append-only log and updates the subscription failure counter. The
// advisory lock on the invoice keeps at most one attempt in flight; the
// version-guarded writes resolve races with the sweep and with duplicate
// triggers.
type SettlementService struct {
	accounts AccountStore
	subs     SubscriptionStore
	invoices InvoiceStore
	attempts AttemptStore
	events   EventStore
	charger  gateway.Charger
	logger   *zap.Logger

	threshold int
	now       func() time.Time
}

func NewSettlementService(
	accounts AccountStore,
	subs SubscriptionStore,
	invoices InvoiceStore,
	attempts AttemptStore,
	events EventStore,
	charger gateway.Charger,
	threshold int,
	logger *zap.Logger,
) *SettlementService {
	return &SettlementService{
		accounts:  accounts,
		subs:      subs,
		invoices:  invoices,
		attempts:  attempts,
		events:    events,
		charger:   charger,
		logger:    logger,
		threshold: threshold,
		now:       time.Now,
	}
}

// Attempt settles one invoice. An already-paid invoice is an idempotent
// no-op reported as succeeded; no second gateway call or attempt row is
// produced for it.
func (s *SettlementService) Attempt(ctx context.Context, invoiceID int64) (*billing.SettlementResult, error) {
	release, ok, err := s.invoices.AcquireSettlementLock(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock invoice: %w", err)
	}
	if !ok {
		// Another attempt holds the lock. If it already settled the
		// invoice, report success; otherwise let the caller retry later.
		inv, ferr := s.invoices.FindByID(ctx, invoiceID)
		if ferr == nil && inv.Status == billing.InvoiceStatusPaid {
			return &billing.SettlementResult{Succeeded: true, AlreadyPaid: true, InvoiceID: invoiceID}, nil
		}
		return nil, xerrors.ErrSettlementInFlight
	}
	defer release()

	inv, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("invoice not found: %w", err)
	}

	if inv.Status == billing.InvoiceStatusPaid {
		return &billing.SettlementResult{Succeeded: true, AlreadyPaid: true, InvoiceID: inv.ID}, nil
	}

	sub, err := s.subs.FindByID(ctx, inv.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("subscription not found: %w", err)
	}

	acct, err := s.accounts.FindByID(ctx, inv.AccountID)
	if err != nil {
		return nil, fmt.Errorf("account not found: %w", err)
	}

	result := s.charge(ctx, acct, inv)

	if result.Status == gateway.ChargeSucceeded {
		return s.applySuccess(ctx, acct, sub, inv, result)
	}
	return s.applyFailure(ctx, acct, sub, inv, result)
}

// charge calls the gateway with the account's stored payment token. A
// missing token never reaches the gateway; it is normalized to a decline.
func (s *SettlementService) charge(ctx context.Context, acct *account.Account, inv *billing.Invoice) *gateway.ChargeResult {
	if !acct.PaymentMethodToken.Valid || acct.PaymentMethodToken.String == "" {
		return &gateway.ChargeResult{
			Status:           gateway.ChargeDeclined,
			GatewayReference: ulid.Make().String(),
			DeclineReason:    xerrors.ErrNoPaymentMethod.Error(),
		}
	}

	res, err := s.charger.Charge(ctx, gateway.ChargeRequest{
		Token:       acct.PaymentMethodToken.String,
		Amount:      inv.TotalAmount,
		Currency:    inv.Currency,
		Reference:   ulid.Make().String(),
		Description: "invoice " + inv.InvoiceNumber,
	})
	if err != nil {
		// Adapter contract: transport problems come back as ChargeError
		// results. A hard error here is a programming fault; count it as a
		// failed attempt all the same so the tracked window keeps moving.
		s.logger.Error("gateway charge returned error", zap.Error(err), zap.Int64("invoice_id", inv.ID))
		return &gateway.ChargeResult{
			Status:           gateway.ChargeError,
			GatewayReference: ulid.Make().String(),
			DeclineReason:    "gateway failure",
		}
	}

	return res
}

func (s *SettlementService) applySuccess(ctx context.Context, acct *account.Account, sub *billing.Subscription, inv *billing.Invoice, res *gateway.ChargeResult) (*billing.SettlementResult, error) {
	att := &billing.PaymentAttempt{
		SubscriptionID:   sub.ID,
		InvoiceID:        inv.ID,
		AccountID:        acct.ID,
		Outcome:          billing.AttemptSucceeded,
		GatewayReference: res.GatewayReference,
	}
	if _, err := s.attempts.Append(ctx, att); err != nil {
		return nil, fmt.Errorf("failed to record payment attempt: %w", err)
	}

	paidAt := s.now()
	paid, err := s.invoices.MarkPaid(ctx, inv.ID, paidAt)
	if err != nil {
		return nil, fmt.Errorf("failed to mark invoice paid: %w", err)
	}
	if !paid {
		// A concurrent writer settled first; nothing left to apply.
		return &billing.SettlementResult{Succeeded: true, AlreadyPaid: true, InvoiceID: inv.ID, AttemptID: att.ID}, nil
	}

	// Cancel is terminal. Settling a leftover invoice pays the debt but
	// never reschedules billing or reactivates the account; a new checkout
	// is the only way back.
	if sub.Status == billing.SubscriptionStatusCanceled {
		s.appendEvent(ctx, billing.EventPaymentSucceeded, acct.ID, sub.ID, map[string]interface{}{
			"invoice_id":     inv.ID,
			"invoice_number": inv.InvoiceNumber,
			"amount":         inv.TotalAmount,
			"currency":       inv.Currency,
		})

		s.logger.Info("leftover invoice settled on canceled subscription",
			zap.Int64("invoice_id", inv.ID),
			zap.Int64("subscription_id", sub.ID),
			zap.Int64("account_id", acct.ID),
		)

		return &billing.SettlementResult{Succeeded: true, InvoiceID: inv.ID, AttemptID: att.ID}, nil
	}

	// Extend the period from the payment time, not the old due date, so
	// late payments do not accumulate schedule drift.
	err = s.updateSubscription(ctx, sub, func(fresh *billing.Subscription) {
		fresh.Status = billing.SubscriptionStatusActive
		fresh.ConsecutiveFailures = 0
		fresh.CurrentPeriodStart = paidAt
		fresh.CurrentPeriodEnd = fresh.BillingCycle.NextPeriodEnd(paidAt)
		fresh.NextBillingDate = sql.NullTime{Time: fresh.CurrentPeriodEnd, Valid: true}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extend subscription period: %w", err)
	}

	if err := s.updateAccountStatus(ctx, acct, acct.ActiveStatusFor(), sql.NullTime{}); err != nil {
		return nil, fmt.Errorf("failed to activate account: %w", err)
	}

	s.appendEvent(ctx, billing.EventPaymentSucceeded, acct.ID, sub.ID, map[string]interface{}{
		"invoice_id":     inv.ID,
		"invoice_number": inv.InvoiceNumber,
		"amount":         inv.TotalAmount,
		"currency":       inv.Currency,
	})

	s.logger.Info("invoice settled",
		zap.Int64("invoice_id", inv.ID),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("account_id", acct.ID),
		zap.Float64("amount", inv.TotalAmount),
	)

	return &billing.SettlementResult{Succeeded: true, InvoiceID: inv.ID, AttemptID: att.ID}, nil
}

func (s *SettlementService) applyFailure(ctx context.Context, acct *account.Account, sub *billing.Subscription, inv *billing.Invoice, res *gateway.ChargeResult) (*billing.SettlementResult, error) {
	reason := res.DeclineReason
	if reason == "" {
		reason = "payment failed"
	}

	att := &billing.PaymentAttempt{
		SubscriptionID:   sub.ID,
		InvoiceID:        inv.ID,
		AccountID:        acct.ID,
		Outcome:          billing.AttemptFailed,
		FailureReason:    sql.NullString{String: reason, Valid: true},
		GatewayReference: res.GatewayReference,
	}
	if _, err := s.attempts.Append(ctx, att); err != nil {
		return nil, fmt.Errorf("failed to record payment attempt: %w", err)
	}

	var failures int
	err := s.updateSubscription(ctx, sub, func(fresh *billing.Subscription) {
		fresh.ConsecutiveFailures++
		failures = fresh.ConsecutiveFailures
		if fresh.Status == billing.SubscriptionStatusActive {
			fresh.Status = billing.SubscriptionStatusPastDue
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record subscription failure: %w", err)
	}

	// Only the increment that first crosses the threshold opens the grace
	// window; later failures leave the original deadline untouched.
	if failures >= s.threshold && !acct.GracePeriodStartedAt.Valid {
		graceStart := sql.NullTime{Time: att.CreatedAt, Valid: true}
		if err := s.updateAccountStatus(ctx, acct, acct.Status, graceStart); err != nil {
			return nil, fmt.Errorf("failed to open grace window: %w", err)
		}

		s.appendEvent(ctx, billing.EventGraceOpened, acct.ID, sub.ID, map[string]interface{}{
			"opened_at":            att.CreatedAt,
			"consecutive_failures": failures,
		})

		s.logger.Warn("grace window opened",
			zap.Int64("account_id", acct.ID),
			zap.Int64("subscription_id", sub.ID),
			zap.Int("consecutive_failures", failures),
			zap.Time("opened_at", att.CreatedAt),
		)
	}

	s.appendEvent(ctx, billing.EventPaymentFailed, acct.ID, sub.ID, map[string]interface{}{
		"invoice_id":           inv.ID,
		"invoice_number":       inv.InvoiceNumber,
		"reason":               reason,
		"consecutive_failures": failures,
	})

	s.logger.Info("settlement attempt failed",
		zap.Int64("invoice_id", inv.ID),
		zap.Int64("subscription_id", sub.ID),
		zap.Int64("account_id", acct.ID),
		zap.String("reason", reason),
		zap.Int("consecutive_failures", failures),
	)

	return &billing.SettlementResult{Succeeded: false, DeclineReason: reason, InvoiceID: inv.ID, AttemptID: att.ID}, nil
}

// updateSubscription applies mutate under the version guard, retrying once
// against fresh row state on a conflict.
func (s *SettlementService) updateSubscription(ctx context.Context, sub *billing.Subscription, mutate func(*billing.Subscription)) error {
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

// updateAccountStatus applies a version-guarded account write, retrying
// once against fresh row state on a conflict.
func (s *SettlementService) updateAccountStatus(ctx context.Context, acct *account.Account, status account.AccountStatus, graceStartedAt sql.NullTime) error {
	err := s.accounts.UpdateStatus(ctx, acct.ID, acct.Version, status, graceStartedAt)
	if !xerrors.Is(err, xerrors.ErrVersionConflict) {
		if err == nil {
			acct.Status = status
			acct.GracePeriodStartedAt = graceStartedAt
			acct.Version++
		}
		return err
	}

	fresh, ferr := s.accounts.FindByID(ctx, acct.ID)
	if ferr != nil {
		return ferr
	}
	if uerr := s.accounts.UpdateStatus(ctx, fresh.ID, fresh.Version, status, graceStartedAt); uerr != nil {
		return uerr
	}
	*acct = *fresh
	acct.Status = status
	acct.GracePeriodStartedAt = graceStartedAt
	acct.Version++
	return nil
}

// appendEvent records a domain event; delivery failures are logged and left
// for the outbox publisher, never surfaced to the payment flow.
func (s *SettlementService) appendEvent(ctx context.Context, typ billing.EventType, accountID, subscriptionID int64, payload map[string]interface{}) {
	ev := &billing.Event{
		ID:             ulid.Make().String(),
		Type:           typ,
		AccountID:      accountID,
		SubscriptionID: sql.NullInt64{Int64: subscriptionID, Valid: true},
		Payload:        payload,
	}
	if err := s.events.Append(ctx, ev); err != nil {
		s.logger.Error("failed to append billing event", zap.String("type", string(typ)), zap.Error(err))
	}
}
