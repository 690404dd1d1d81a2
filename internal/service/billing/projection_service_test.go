// internal/service/billing/projection_service_test.go
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

func TestStatusProjectionSeverityOK(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.seedAccount(1, account.StatusActiveVerified, "tok_visa")
	fx.seedSubscription(t, 1, billing.SubscriptionStatusActive)

	status, err := fx.projection.Status(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, billing.SeverityOK, status.Severity)
	assert.Nil(t, status.Grace)
	require.NotNil(t, status.Subscription)
}

func TestStatusProjectionGraceWarningThenCritical(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.seedAccount(1, account.StatusActiveVerified, "tok_visa")
	sub := fx.seedSubscription(t, 1, billing.SubscriptionStatusActive)
	inv := fx.generateInvoice(t, sub)
	fx.driveFailures(t, inv.ID, 3)

	status, err := fx.projection.Status(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, billing.SeverityWarning, status.Severity)
	require.NotNil(t, status.Grace)
	assert.Equal(t, billing.GraceActive, status.Grace.State)

	// Final day of the window.
	fx.clock.Advance(6*24*time.Hour + time.Hour)

	status, err = fx.projection.Status(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, billing.SeverityCritical, status.Severity)
	assert.True(t, status.Grace.IsCritical)
}

func TestStatusProjectionBlockedStatuses(t *testing.T) {
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
			fx.seedAccount(1, tt.status, "tok_visa")

			status, err := fx.projection.Status(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, billing.SeverityBlocked, status.Severity)
		})
	}
}

func TestStatusProjectionCancelledDependsOnPeriod(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.seedAccount(1, account.StatusActiveVerified, "tok_visa")
	sub := fx.seedSubscription(t, 1, billing.SubscriptionStatusActive)
	require.NoError(t, fx.subSvc.Cancel(ctx, 1, sub.ID, &billing.CancelSubscriptionRequest{}, false))

	status, err := fx.projection.Status(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, billing.SeverityWarning, status.Severity, "paid period still running")

	fx.clock.Advance(32 * 24 * time.Hour)

	status, err = fx.projection.Status(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, billing.SeverityBlocked, status.Severity)
}
