// internal/service/billing/access_service_test.go
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

func TestAccessBlockedStatusesAllowOnlyBilling(t *testing.T) {
	tests := []struct {
		name   string
		status account.AccountStatus
	}{
		{"suspended", account.StatusSuspended},
		{"pending payment", account.StatusPendingPayment},
		{"inactive", account.StatusInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			ctx := context.Background()

			fx.seedAccount(1, tt.status, "tok_visa")

			reports, err := fx.access.CanAccess(ctx, 1, "reports")
			require.NoError(t, err)
			assert.False(t, reports.Allowed)
			assert.NotEmpty(t, reports.Reason)

			pay, err := fx.access.CanAccess(ctx, 1, FeatureBilling)
			require.NoError(t, err)
			assert.True(t, pay.Allowed, "the pay-now flow must stay reachable")
		})
	}
}

func TestAccessActiveAccountNoWarning(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.seedAccount(1, account.StatusActiveVerified, "tok_visa")
	fx.seedSubscription(t, 1, billing.SubscriptionStatusActive)

	decision, err := fx.access.CanAccess(ctx, 1, "reports")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Nil(t, decision.Warning)
}

func TestAccessDuringGraceAllowsWithWarning(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.seedAccount(1, account.StatusActiveVerified, "tok_visa")
	sub := fx.seedSubscription(t, 1, billing.SubscriptionStatusActive)
	inv := fx.generateInvoice(t, sub)
	fx.driveFailures(t, inv.ID, 3)

	decision, err := fx.access.CanAccess(ctx, 1, "reports")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	require.NotNil(t, decision.Warning)
	assert.Equal(t, billing.GraceActive, decision.Warning.State)
}

func TestAccessExpiredGraceStillAllowsUntilSweep(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.seedAccount(1, account.StatusActiveVerified, "tok_visa")
	sub := fx.seedSubscription(t, 1, billing.SubscriptionStatusActive)
	inv := fx.generateInvoice(t, sub)
	fx.driveFailures(t, inv.ID, 3)
	fx.clock.Advance(testGrace + time.Hour)

	// The sweep has not run yet; the gate warns but only the sweep's
	// status write actually blocks.
	decision, err := fx.access.CanAccess(ctx, 1, "reports")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	require.NotNil(t, decision.Warning)
	assert.Equal(t, billing.GraceExpired, decision.Warning.State)

	_, err = fx.sweep.Run(ctx)
	require.NoError(t, err)

	after, err := fx.access.CanAccess(ctx, 1, "reports")
	require.NoError(t, err)
	assert.False(t, after.Allowed)
}

func TestAccessCancelledRunsToPeriodEnd(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.seedAccount(1, account.StatusActiveVerified, "tok_visa")
	sub := fx.seedSubscription(t, 1, billing.SubscriptionStatusActive)

	err := fx.subSvc.Cancel(ctx, 1, sub.ID, &billing.CancelSubscriptionRequest{Reason: "too expensive"}, false)
	require.NoError(t, err)

	during, err := fx.access.CanAccess(ctx, 1, "reports")
	require.NoError(t, err)
	assert.True(t, during.Allowed, "cancel keeps the already-paid period")

	fx.clock.Advance(32 * 24 * time.Hour)

	after, err := fx.access.CanAccess(ctx, 1, "reports")
	require.NoError(t, err)
	assert.False(t, after.Allowed)

	pay, err := fx.access.CanAccess(ctx, 1, FeatureBilling)
	require.NoError(t, err)
	assert.True(t, pay.Allowed)
}
