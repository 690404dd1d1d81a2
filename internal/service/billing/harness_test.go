// internal/service/billing/harness_test.go
package billing

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"billing-service/internal/domain/account"
	"billing-service/internal/domain/billing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testThreshold = 3
	testGrace     = 7 * 24 * time.Hour
)

// fixture wires every billing service against the in-memory fakes with a
// controllable clock.
type fixture struct {
	clock    *fakeClock
	accounts *fakeAccountStore
	subs     *fakeSubscriptionStore
	invoices *fakeInvoiceStore
	attempts *fakeAttemptStore
	events   *fakeEventStore
	charger  *fakeCharger

	grace      *GraceEngine
	invoiceSvc *InvoiceService
	settlement *SettlementService
	sweep      *SweepService
	access     *AccessService
	subSvc     *SubscriptionService
	projection *ProjectionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	logger := zap.NewNop()

	fx := &fixture{
		clock:    clock,
		accounts: newFakeAccountStore(),
		subs:     newFakeSubscriptionStore(),
		invoices: newFakeInvoiceStore(),
		attempts: newFakeAttemptStore(clock.Now),
		events:   newFakeEventStore(),
		charger:  &fakeCharger{},
	}

	fx.grace = NewGraceEngine(fx.subs, fx.attempts, testThreshold, testGrace, logger)
	fx.grace.now = clock.Now

	fx.invoiceSvc = NewInvoiceService(fx.subs, fx.invoices, 0, 0, logger)
	fx.invoiceSvc.now = clock.Now

	fx.settlement = NewSettlementService(fx.accounts, fx.subs, fx.invoices, fx.attempts, fx.events, fx.charger, testThreshold, logger)
	fx.settlement.now = clock.Now

	fx.sweep = NewSweepService(fx.accounts, fx.subs, fx.invoices, fx.events, fx.grace, logger)
	fx.sweep.now = clock.Now

	fx.access = NewAccessService(fx.accounts, fx.subs, fx.grace, logger)
	fx.access.now = clock.Now

	fx.subSvc = NewSubscriptionService(fx.accounts, fx.subs, fx.events, fx.invoiceSvc, fx.settlement, map[string]float64{
		"starter":    49.99,
		"team":       99.99,
		"enterprise": 299.99,
	}, logger)
	fx.subSvc.now = clock.Now

	fx.projection = NewProjectionService(fx.accounts, fx.subs, fx.grace, nil, 30*time.Second, logger)
	fx.projection.now = clock.Now

	return fx
}

func (fx *fixture) seedAccount(id int64, status account.AccountStatus, token string) *account.Account {
	acct := &account.Account{
		ID:              id,
		Status:          status,
		EmailVerifiedAt: sql.NullTime{Time: fx.clock.Now(), Valid: true},
		CreatedAt:       fx.clock.Now(),
	}
	if token != "" {
		acct.PaymentMethodToken = sql.NullString{String: token, Valid: true}
	}
	fx.accounts.put(acct)
	return acct
}

func (fx *fixture) seedSubscription(t *testing.T, accountID int64, status billing.SubscriptionStatus) *billing.Subscription {
	t.Helper()

	start := fx.clock.Now()
	sub := &billing.Subscription{
		Reference:          fmt.Sprintf("SUB-TEST-%d", accountID),
		AccountID:          accountID,
		Tier:               "team",
		Status:             status,
		MonthlyPrice:       99.99,
		Currency:           "USD",
		BillingCycle:       billing.CycleMonthly,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   billing.CycleMonthly.NextPeriodEnd(start),
		NextBillingDate:    sql.NullTime{Time: billing.CycleMonthly.NextPeriodEnd(start), Valid: true},
	}
	require.NoError(t, fx.subs.Create(context.Background(), sub))
	return sub
}

func (fx *fixture) generateInvoice(t *testing.T, sub *billing.Subscription) *billing.Invoice {
	t.Helper()

	inv, err := fx.invoiceSvc.Generate(context.Background(), sub.ID, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
	require.NoError(t, err)
	return inv
}

// driveFailures runs n declined settlement attempts against the invoice,
// advancing the clock one day between tries, and returns the timestamps of
// the failed attempts.
func (fx *fixture) driveFailures(t *testing.T, invoiceID int64, n int) []time.Time {
	t.Helper()

	var stamps []time.Time
	for i := 0; i < n; i++ {
		if i > 0 {
			fx.clock.Advance(24 * time.Hour)
		}
		fx.charger.enqueue(declined("card_declined"))

		stamps = append(stamps, fx.clock.Now())
		res, err := fx.settlement.Attempt(context.Background(), invoiceID)
		require.NoError(t, err)
		require.False(t, res.Succeeded)
	}
	return stamps
}
