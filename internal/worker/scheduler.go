// internal/worker/scheduler.go
package worker

import (
	"context"
	"time"

	"billing-service/internal/config"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler drives the billing jobs on cron schedules. Overlapping runs of
// the same job are skipped rather than queued.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *zap.Logger
}

func NewScheduler(jobs *Jobs, cfg *config.AppConfig, logger *zap.Logger) (*Scheduler, error) {
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DiscardLogger),
	))

	entries := []struct {
		name     string
		schedule string
		timeout  time.Duration
		run      func(context.Context)
	}{
		{"billing_run", cfg.BillingRunSchedule, 30 * time.Minute, jobs.RunBillingCycle},
		{"suspension_sweep", cfg.SweepSchedule, 10 * time.Minute, jobs.RunSuspensionSweep},
		{"outbox_publish", cfg.OutboxSchedule, time.Minute, jobs.PublishOutbox},
	}

	for _, e := range entries {
		e := e
		_, err := c.AddFunc(e.schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
			defer cancel()

			started := time.Now()
			e.run(ctx)
			logger.Debug("job finished",
				zap.String("job", e.name),
				zap.Duration("took", time.Since(started)),
			)
		})
		if err != nil {
			return nil, err
		}
		logger.Info("job scheduled", zap.String("job", e.name), zap.String("schedule", e.schedule))
	}

	return &Scheduler{cron: c, jobs: jobs, logger: logger}, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts scheduling and returns once running jobs complete.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}
