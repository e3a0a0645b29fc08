/**
 * @description
 * Scheduled job implementations for the payout-service: the payout sweep
 * that executes due vendor schedules, the stale reservation release, and the
 * reconciliation poll that resolves payouts stuck in processing and
 * redispatches pending payouts left behind by transient submit failures.
 */

package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/marketvend/payout-service/internal/domain"
	"github.com/marketvend/payout-service/internal/processor"
)

const (
	staleReservationAge  = 24 * time.Hour
	stuckProcessingAge   = 2 * time.Hour
	stuckProcessingBatch = 100
	stalePendingAge      = 10 * time.Minute
	stalePendingBatch    = 100
)

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	service *Service
	logger  *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(service *Service, logger *slog.Logger) *Jobs {
	return &Jobs{service: service, logger: logger}
}

// RunScheduledSweep executes every due vendor schedule. Each vendor is
// processed in isolation: one vendor's failure advances their schedule and
// moves on so it cannot block the rest of the sweep.
func (j *Jobs) RunScheduledSweep() {
	j.logger.Info("starting scheduled payout sweep")
	ctx := context.Background()
	now := time.Now().UTC()

	schedules, err := j.service.repo.FindDueSchedules(ctx, now)
	if err != nil {
		j.logger.Error("failed to load due schedules", "error", err)
		return
	}

	result := domain.SweepResult{}
	for _, schedule := range schedules {
		outcome := j.sweepVendor(ctx, schedule)
		switch outcome {
		case sweepProcessed:
			result.Processed++
		case sweepSkipped:
			result.Skipped++
		case sweepFailed:
			result.Failed++
		}

		// The schedule advances regardless of outcome so a persistent
		// failure cannot make the sweep retry the vendor every run.
		var next *time.Time
		if interval := domain.CadenceInterval(schedule.ScheduleType); interval > 0 {
			d := now.AddDate(0, 0, interval)
			next = &d
		}
		if err := j.service.repo.AdvanceSchedule(ctx, schedule.VendorID, next, now); err != nil {
			j.logger.Error("failed to advance schedule", "vendor_id", schedule.VendorID, "error", err)
		}
	}

	j.logger.Info("scheduled payout sweep finished",
		"due", len(schedules), "processed", result.Processed,
		"skipped", result.Skipped, "failed", result.Failed)
}

type sweepOutcome int

const (
	sweepProcessed sweepOutcome = iota
	sweepSkipped
	sweepFailed
)

// sweepVendor creates and dispatches one vendor's scheduled payout. Vendors
// below their minimum or without a verified primary account are skipped, not
// failed.
func (j *Jobs) sweepVendor(ctx context.Context, schedule domain.PayoutSchedule) sweepOutcome {
	balance, err := j.service.ledger.Balance(ctx, schedule.VendorID)
	if err != nil {
		j.logger.Error("sweep: failed to read balance", "vendor_id", schedule.VendorID, "error", err)
		return sweepFailed
	}
	if balance.Available < schedule.MinimumAmount || balance.Available <= 0 {
		j.logger.Info("sweep: balance below schedule minimum",
			"vendor_id", schedule.VendorID, "available", balance.Available, "minimum", schedule.MinimumAmount)
		return sweepSkipped
	}

	account, err := j.service.repo.FindPrimaryPayoutAccount(ctx, schedule.VendorID)
	if err != nil {
		j.logger.Warn("sweep: no primary payout account", "vendor_id", schedule.VendorID, "error", err)
		return sweepSkipped
	}
	if account.VerificationStatus != domain.VerificationVerified {
		j.logger.Warn("sweep: primary account not verified", "vendor_id", schedule.VendorID, "account_id", account.ID)
		return sweepSkipped
	}

	payout, err := j.service.CreatePayout(ctx, schedule.VendorID, domain.CreatePayoutRequest{
		PayoutAccountID: account.ID,
		Amount:          balance.Available,
	})
	if err != nil {
		j.logger.Error("sweep: failed to create payout", "vendor_id", schedule.VendorID, "error", err)
		return sweepFailed
	}

	if _, err := j.service.SubmitPayout(ctx, payout.ID); err != nil {
		j.logger.Error("sweep: failed to submit payout", "vendor_id", schedule.VendorID, "payout_id", payout.ID, "error", err)
		return sweepFailed
	}

	j.logger.Info("sweep: payout dispatched",
		"vendor_id", schedule.VendorID, "payout_id", payout.ID,
		"reference", payout.ReferenceNumber, "amount", payout.Amount)
	return sweepProcessed
}

// ReleaseStaleReservations settles reservations orphaned by crashes so held
// funds find their way back to vendors.
func (j *Jobs) ReleaseStaleReservations() {
	j.logger.Info("starting stale reservation release job")
	ctx := context.Background()

	released, err := j.service.ledger.ReleaseStale(ctx, staleReservationAge)
	if err != nil {
		j.logger.Error("failed to release stale reservations", "error", err)
		return
	}
	j.logger.Info("stale reservation release finished", "settled", released)
}

// ReconcilePendingPayouts polls the processor for payouts stuck in
// processing, covering the case where a webhook was lost.
func (j *Jobs) ReconcilePendingPayouts() {
	j.logger.Info("starting payout reconciliation poll")
	ctx := context.Background()

	stuck, err := j.service.repo.FindStuckProcessingPayouts(ctx, time.Now().Add(-stuckProcessingAge), stuckProcessingBatch)
	if err != nil {
		j.logger.Error("failed to load stuck payouts", "error", err)
		return
	}

	resolved := 0
	for _, payout := range stuck {
		if payout.ProcessorReference == nil {
			continue
		}
		account, err := j.service.repo.FindPayoutAccountByID(ctx, payout.PayoutAccountID, payout.VendorID)
		if err != nil {
			j.logger.Error("reconcile: failed to load account", "payout_id", payout.ID, "error", err)
			continue
		}
		adapter, err := j.service.processors.ForAccountType(account.AccountType)
		if err != nil {
			j.logger.Error("reconcile: no adapter", "payout_id", payout.ID, "error", err)
			continue
		}

		result, err := adapter.QueryStatus(ctx, *payout.ProcessorReference)
		if err != nil {
			j.logger.Warn("reconcile: status query failed", "payout_id", payout.ID, "processor", adapter.Name(), "error", err)
			continue
		}

		p := payout
		switch result.Status {
		case processor.StatusSucceeded:
			err = j.service.completePayout(ctx, &p, result.ProcessorReference)
		case processor.StatusFailed:
			reason := result.Detail
			if reason == "" {
				reason = "processor reported failure during reconciliation"
			}
			err = j.service.failPayout(ctx, &p, reason)
		default:
			continue
		}
		if err != nil {
			j.logger.Error("reconcile: failed to apply outcome", "payout_id", payout.ID, "error", err)
			continue
		}
		resolved++
	}

	j.logger.Info("payout reconciliation poll finished", "stuck", len(stuck), "resolved", resolved)

	j.redispatchStalePending(ctx)
}

// redispatchStalePending resubmits pending payouts whose dispatch bounced off
// a transient processor error. SubmitPayout fails the payout and returns the
// funds once the retry budget is spent, so this loop cannot retry forever.
func (j *Jobs) redispatchStalePending(ctx context.Context) {
	stale, err := j.service.repo.FindStalePendingPayouts(ctx, time.Now().Add(-stalePendingAge), stalePendingBatch)
	if err != nil {
		j.logger.Error("failed to load stale pending payouts", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	dispatched := 0
	for _, payout := range stale {
		if _, err := j.service.SubmitPayout(ctx, payout.ID); err != nil {
			j.logger.Error("redispatch: failed to submit payout", "payout_id", payout.ID, "error", err)
			continue
		}
		dispatched++
	}
	j.logger.Info("stale pending payouts redispatched", "stale", len(stale), "dispatched", dispatched)
}
