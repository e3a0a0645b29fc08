/**
 * @description
 * Cron scheduler setup for the payout jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/marketvend/payout-service/internal/config"
	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.PayoutSweepSchedule, s.jobs.RunScheduledSweep); err != nil {
		s.logger.Error("failed to schedule payout sweep job", "error", err)
	} else {
		s.logger.Info("scheduled payout sweep job", "schedule", s.config.PayoutSweepSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.StaleReservationSchedule, s.jobs.ReleaseStaleReservations); err != nil {
		s.logger.Error("failed to schedule stale reservation job", "error", err)
	} else {
		s.logger.Info("scheduled stale reservation job", "schedule", s.config.StaleReservationSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.ReconciliationSchedule, s.jobs.ReconcilePendingPayouts); err != nil {
		s.logger.Error("failed to schedule reconciliation poll job", "error", err)
	} else {
		s.logger.Info("scheduled reconciliation poll job", "schedule", s.config.ReconciliationSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
