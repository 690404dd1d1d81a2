// internal/service/billing/lifecycle_test.go
package billing

import (
	"context"
	"testing"
	"time"

	"billing-service/internal/domain/account"
	"billing-service/internal/domain/billing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runBillingCycle mirrors the scheduled billing run: invoice every due
// subscription and attempt settlement.
func runBillingCycle(t *testing.T, fx *fixture) []*billing.SettlementResult {
	t.Helper()
	ctx := context.Background()

	due, err := fx.subs.FindDueForBilling(ctx, fx.clock.Now())
	require.NoError(t, err)

	var results []*billing.SettlementResult
	for i := range due {
		sub := due[i]
		periodStart := sub.CurrentPeriodEnd
		inv, err := fx.invoiceSvc.Generate(ctx, sub.ID, periodStart, sub.BillingCycle.NextPeriodEnd(periodStart))
		require.NoError(t, err)

		res, err := fx.settlement.Attempt(ctx, inv.ID)
		require.NoError(t, err)
		results = append(results, res)
	}
	return results
}

func TestRenewalThroughSuspensionAndRecovery(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.seedAccount(1, account.StatusPendingPayment, "tok_visa")

	// Signup: first charge succeeds in line with checkout.
	sub, result, err := fx.subSvc.Checkout(ctx, 1, &billing.CheckoutRequest{Tier: "team", AutoRenew: true})
	require.NoError(t, err)
	require.True(t, result.Succeeded)

	// Renewal day: the card has gone bad.
	fx.clock.Advance(sub.CurrentPeriodEnd.Sub(fx.clock.Now()))
	fx.charger.enqueue(declined("expired_card"))

	results := runBillingCycle(t, fx)
	require.Len(t, results, 1)
	assert.False(t, results[0].Succeeded)
	renewalInvoiceID := results[0].InvoiceID

	// Two more nightly retries on the same invoice cross the threshold.
	var graceOpened time.Time
	for i := 0; i < 2; i++ {
		fx.clock.Advance(24 * time.Hour)
		fx.charger.enqueue(declined("expired_card"))
		graceOpened = fx.clock.Now()
		results = runBillingCycle(t, fx)
		require.Len(t, results, 1)
		assert.False(t, results[0].Succeeded)
		assert.Equal(t, renewalInvoiceID, results[0].InvoiceID, "retries must hit the same invoice, never a duplicate")
	}

	acct, err := fx.accounts.FindByID(ctx, 1)
	require.NoError(t, err)
	require.True(t, acct.GracePeriodStartedAt.Valid)
	assert.True(t, acct.GracePeriodStartedAt.Time.Equal(graceOpened))
	assert.True(t, acct.IsActive(), "grace keeps the account usable")

	// The window lapses with no payment; the sweep enforces suspension.
	fx.clock.Advance(testGrace + time.Hour)
	suspended, err := fx.sweep.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, suspended)

	blocked, err := fx.access.CanAccess(ctx, 1, "reports")
	require.NoError(t, err)
	assert.False(t, blocked.Allowed)

	payGate, err := fx.access.CanAccess(ctx, 1, FeatureBilling)
	require.NoError(t, err)
	assert.True(t, payGate.Allowed)

	// Pay-now with a working card restores everything.
	recoveredAt := fx.clock.Now()
	res, err := fx.settlement.Attempt(ctx, renewalInvoiceID)
	require.NoError(t, err)
	require.True(t, res.Succeeded)

	acct, err = fx.accounts.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, account.StatusActiveVerified, acct.Status)
	assert.False(t, acct.GracePeriodStartedAt.Valid)

	fresh, err := fx.subs.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.SubscriptionStatusActive, fresh.Status)
	assert.Equal(t, 0, fresh.ConsecutiveFailures)
	assert.True(t, fresh.CurrentPeriodStart.Equal(recoveredAt), "paid period restarts at the payment instant")

	restored, err := fx.access.CanAccess(ctx, 1, "reports")
	require.NoError(t, err)
	assert.True(t, restored.Allowed)
	assert.Nil(t, restored.Warning)
}
