// internal/worker/jobs.go
package worker

import (
	"context"
	"time"

	"billing-service/internal/events"
	xerrors "billing-service/internal/pkg/errors"
	billingsvc "billing-service/internal/service/billing"

	"go.uber.org/zap"
)

// Jobs holds the periodic work driven by the cron scheduler: the billing
// run, the suspension sweep and outbox delivery. Every job is idempotent;
// replaying a tick is always safe.
type Jobs struct {
	subs       billingsvc.SubscriptionStore
	eventStore billingsvc.EventStore
	invoiceSvc *billingsvc.InvoiceService
	settlement *billingsvc.SettlementService
	sweep      *billingsvc.SweepService
	publisher  *events.Publisher
	logger     *zap.Logger

	now func() time.Time
}

func NewJobs(
	subs billingsvc.SubscriptionStore,
	eventStore billingsvc.EventStore,
	invoiceSvc *billingsvc.InvoiceService,
	settlement *billingsvc.SettlementService,
	sweep *billingsvc.SweepService,
	publisher *events.Publisher,
	logger *zap.Logger,
) *Jobs {
	return &Jobs{
		subs:       subs,
		eventStore: eventStore,
		invoiceSvc: invoiceSvc,
		settlement: settlement,
		sweep:      sweep,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
	}
}

// RunBillingCycle invoices every due subscription and attempts settlement.
// Failed invoices stay due, so the next tick retries the same invoice; the
// generator's period idempotency prevents double-billing.
func (j *Jobs) RunBillingCycle(ctx context.Context) {
	due, err := j.subs.FindDueForBilling(ctx, j.now())
	if err != nil {
		j.logger.Error("failed to list due subscriptions", zap.Error(err))
		return
	}

	settled, failed := 0, 0
	for i := range due {
		sub := due[i]

		periodStart := sub.CurrentPeriodEnd
		periodEnd := sub.BillingCycle.NextPeriodEnd(periodStart)

		inv, err := j.invoiceSvc.Generate(ctx, sub.ID, periodStart, periodEnd)
		if err != nil {
			j.logger.Error("invoice generation failed",
				zap.Int64("subscription_id", sub.ID),
				zap.Error(err),
			)
			continue
		}

		result, err := j.settlement.Attempt(ctx, inv.ID)
		if xerrors.Is(err, xerrors.ErrSettlementInFlight) {
			// A manual pay-now beat us to this invoice; leave it alone.
			continue
		}
		if err != nil {
			j.logger.Error("settlement attempt failed",
				zap.Int64("invoice_id", inv.ID),
				zap.Error(err),
			)
			continue
		}

		if result.Succeeded {
			settled++
		} else {
			failed++
		}
	}

	j.logger.Info("billing run completed",
		zap.Int("due", len(due)),
		zap.Int("settled", settled),
		zap.Int("failed", failed),
	)
}

// RunSuspensionSweep enforces expired grace windows, ages unpaid invoices
// to overdue and rolls fully-elapsed canceled accounts to inactive.
func (j *Jobs) RunSuspensionSweep(ctx context.Context) {
	suspended, err := j.sweep.Run(ctx)
	if err != nil {
		j.logger.Error("suspension sweep failed", zap.Error(err))
	}

	overdue, err := j.sweep.MarkOverdueInvoices(ctx)
	if err != nil {
		j.logger.Error("overdue marking failed", zap.Error(err))
	}

	rolled, err := j.sweep.RolloverCanceled(ctx)
	if err != nil {
		j.logger.Error("canceled rollover failed", zap.Error(err))
	}

	j.logger.Info("sweep tick completed",
		zap.Int("suspended", suspended),
		zap.Int64("invoices_overdue", overdue),
		zap.Int("rolled_inactive", rolled),
	)
}

// PublishOutbox delivers unpublished domain events to the redis channel.
func (j *Jobs) PublishOutbox(ctx context.Context) {
	pending, err := j.eventStore.ListUnpublished(ctx, 100)
	if err != nil {
		j.logger.Error("failed to list outbox events", zap.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}

	published := make([]string, 0, len(pending))
	for i := range pending {
		ev := pending[i]
		if err := j.publisher.Publish(ctx, &ev); err != nil {
			j.logger.Warn("event publish failed, will retry",
				zap.String("event_id", ev.ID),
				zap.Error(err),
			)
			continue
		}
		published = append(published, ev.ID)
	}

	if err := j.eventStore.MarkPublished(ctx, published); err != nil {
		j.logger.Error("failed to mark events published", zap.Error(err))
	}
}
