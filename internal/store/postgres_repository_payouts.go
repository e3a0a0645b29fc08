/**
 * @description
 * PostgreSQL implementation of the payout record methods: creation, lookup,
 * history listing, the compare-and-swap status transitions, and the vendor
 * summary aggregate. Transitions are conditional updates guarded on the
 * current status so that replayed webhooks and concurrent confirmations
 * cannot double-apply an outcome.
 */

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/marketvend/payout-service/internal/domain"
)

const payoutColumns = `
	id, vendor_id, payout_account_id, reservation_id, amount, currency, method,
	status, commission_fee, processing_fee, net_amount, reference_number,
	processor_reference, retry_count, failure_reason, requested_at,
	processed_at, completed_at, created_at, updated_at
`

func scanPayout(row pgx.Row) (*domain.Payout, error) {
	var p domain.Payout
	err := row.Scan(
		&p.ID, &p.VendorID, &p.PayoutAccountID, &p.ReservationID, &p.Amount,
		&p.Currency, &p.Method, &p.Status, &p.CommissionFee, &p.ProcessingFee,
		&p.NetAmount, &p.ReferenceNumber, &p.ProcessorReference, &p.RetryCount,
		&p.FailureReason, &p.RequestedAt, &p.ProcessedAt, &p.CompletedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePayout inserts a new payout record in its initial state.
func (r *PostgresRepository) CreatePayout(ctx context.Context, payout *domain.Payout) error {
	query := `
		INSERT INTO payouts (
			id, vendor_id, payout_account_id, reservation_id, amount, currency,
			method, status, commission_fee, processing_fee, net_amount,
			reference_number, retry_count, requested_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 0, $13, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		payout.ID, payout.VendorID, payout.PayoutAccountID, payout.ReservationID,
		payout.Amount, payout.Currency, payout.Method, payout.Status,
		payout.CommissionFee, payout.ProcessingFee, payout.NetAmount,
		payout.ReferenceNumber, payout.RequestedAt,
	).Scan(&payout.CreatedAt, &payout.UpdatedAt)
}

// FindPayoutByID retrieves a single payout by its primary key.
func (r *PostgresRepository) FindPayoutByID(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error) {
	query := fmt.Sprintf(`SELECT %s FROM payouts WHERE id = $1`, payoutColumns)
	p, err := scanPayout(r.db.QueryRow(ctx, query, payoutID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return p, nil
}

// FindPayoutByProcessorReference looks up a payout by the identifier the
// external processor assigned when the submission was accepted. Webhook
// correlation happens on this reference.
func (r *PostgresRepository) FindPayoutByProcessorReference(ctx context.Context, processorReference string) (*domain.Payout, error) {
	query := fmt.Sprintf(`SELECT %s FROM payouts WHERE processor_reference = $1`, payoutColumns)
	p, err := scanPayout(r.db.QueryRow(ctx, query, processorReference))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListPayoutsByVendorID returns a vendor's payout history, newest first.
func (r *PostgresRepository) ListPayoutsByVendorID(ctx context.Context, vendorID uuid.UUID, opts domain.PayoutListOptions) ([]domain.Payout, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT %s FROM payouts
		WHERE vendor_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, payoutColumns)

	rows, err := r.db.Query(ctx, query, vendorID, opts.Status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []domain.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, *p)
	}
	return payouts, rows.Err()
}

// FindStuckProcessingPayouts returns payouts that have sat in `processing`
// beyond the threshold, meaning the processor never sent a webhook. These are
// resolved by the reconciliation poll.
func (r *PostgresRepository) FindStuckProcessingPayouts(ctx context.Context, olderThan time.Time, limit int) ([]domain.Payout, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
		SELECT %s FROM payouts
		WHERE status = $1 AND processed_at < $2
		ORDER BY processed_at ASC
		LIMIT $3
	`, payoutColumns)

	rows, err := r.db.Query(ctx, query, domain.PayoutStatusProcessing, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []domain.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, *p)
	}
	return payouts, rows.Err()
}

// FindStalePendingPayouts returns pending payouts with an open reservation
// that have not been touched since the threshold. These are payouts whose
// dispatch never happened or bounced off a transient processor error; the
// sweep resubmits them.
func (r *PostgresRepository) FindStalePendingPayouts(ctx context.Context, olderThan time.Time, limit int) ([]domain.Payout, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
		SELECT %s FROM payouts
		WHERE status = $1 AND reservation_id IS NOT NULL AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`, payoutColumns)

	rows, err := r.db.Query(ctx, query, domain.PayoutStatusPending, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []domain.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, *p)
	}
	return payouts, rows.Err()
}

// MarkPayoutProcessing transitions pending -> processing and stamps
// processed_at. Returns false when the payout is no longer pending.
func (r *PostgresRepository) MarkPayoutProcessing(ctx context.Context, payoutID uuid.UUID, processorReference *string) (bool, error) {
	query := `
		UPDATE payouts
		SET status = $2,
		    processor_reference = COALESCE($3, processor_reference),
		    processed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = $4
	`
	result, err := r.db.Exec(ctx, query, payoutID, domain.PayoutStatusProcessing, processorReference, domain.PayoutStatusPending)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// MarkPayoutCompleted transitions processing -> completed. Returns false when
// the payout already reached a terminal state or was never submitted.
func (r *PostgresRepository) MarkPayoutCompleted(ctx context.Context, payoutID uuid.UUID, processorReference string) (bool, error) {
	query := `
		UPDATE payouts
		SET status = $2,
		    processor_reference = COALESCE(NULLIF($3, ''), processor_reference),
		    completed_at = NOW(),
		    failure_reason = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status = $4
	`
	result, err := r.db.Exec(ctx, query, payoutID, domain.PayoutStatusCompleted, processorReference, domain.PayoutStatusProcessing)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// MarkPayoutFailed transitions pending/processing -> failed with a reason.
func (r *PostgresRepository) MarkPayoutFailed(ctx context.Context, payoutID uuid.UUID, failureReason string) (bool, error) {
	query := `
		UPDATE payouts
		SET status = $2, failure_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ($4, $5)
	`
	result, err := r.db.Exec(ctx, query, payoutID, domain.PayoutStatusFailed, failureReason,
		domain.PayoutStatusPending, domain.PayoutStatusProcessing)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// MarkPayoutCancelled transitions pending/processing -> cancelled. Payouts
// that already settled cannot be cancelled.
func (r *PostgresRepository) MarkPayoutCancelled(ctx context.Context, payoutID uuid.UUID) (bool, error) {
	query := `
		UPDATE payouts
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)
	`
	result, err := r.db.Exec(ctx, query, payoutID, domain.PayoutStatusCancelled,
		domain.PayoutStatusPending, domain.PayoutStatusProcessing)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// IncrementPayoutRetryCount bumps the retry counter and returns the new value.
func (r *PostgresRepository) IncrementPayoutRetryCount(ctx context.Context, payoutID uuid.UUID) (int, error) {
	var count int
	query := `
		UPDATE payouts
		SET retry_count = retry_count + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING retry_count
	`
	if err := r.db.QueryRow(ctx, query, payoutID).Scan(&count); err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrPayoutNotFound
		}
		return 0, err
	}
	return count, nil
}

// RevertPayoutToPending rolls a processing payout back to pending after a
// transient submit failure, counting the attempt. Returns the new retry count.
func (r *PostgresRepository) RevertPayoutToPending(ctx context.Context, payoutID uuid.UUID) (int, error) {
	var count int
	query := `
		UPDATE payouts
		SET status = $2, retry_count = retry_count + 1, updated_at = NOW()
		WHERE id = $1 AND status = $3
		RETURNING retry_count
	`
	if err := r.db.QueryRow(ctx, query, payoutID, domain.PayoutStatusPending, domain.PayoutStatusProcessing).Scan(&count); err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrPayoutNotFound
		}
		return 0, err
	}
	return count, nil
}

// RequeuePayoutForRetry moves a failed payout back to pending with a fresh
// reservation attached, provided the retry budget is not exhausted. The
// status guard and retry ceiling live in the same statement so two concurrent
// retry requests cannot both succeed.
func (r *PostgresRepository) RequeuePayoutForRetry(ctx context.Context, payoutID, reservationID uuid.UUID, maxRetries int) (bool, error) {
	query := `
		UPDATE payouts
		SET status = $2,
		    reservation_id = $3,
		    retry_count = retry_count + 1,
		    failure_reason = NULL,
		    processor_reference = NULL,
		    processed_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status = $4 AND retry_count < $5
	`
	result, err := r.db.Exec(ctx, query, payoutID, domain.PayoutStatusPending, reservationID,
		domain.PayoutStatusFailed, maxRetries)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// UpdatePayoutProcessorReference records the processor-assigned identifier.
func (r *PostgresRepository) UpdatePayoutProcessorReference(ctx context.Context, payoutID uuid.UUID, processorReference string) error {
	result, err := r.db.Exec(ctx,
		`UPDATE payouts SET processor_reference = $2, updated_at = NOW() WHERE id = $1`,
		payoutID, processorReference)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPayoutNotFound
	}
	return nil
}

// PayoutSummaryByVendorID aggregates payout history for the vendor dashboard.
func (r *PostgresRepository) PayoutSummaryByVendorID(ctx context.Context, vendorID uuid.UUID) (*domain.PayoutSummary, error) {
	var summary domain.PayoutSummary
	query := `
		SELECT
			COALESCE(SUM(net_amount) FILTER (WHERE status = 'completed'), 0),
			COALESCE(SUM(amount) FILTER (WHERE status IN ('pending', 'processing')), 0)
		FROM payouts
		WHERE vendor_id = $1
	`
	if err := r.db.QueryRow(ctx, query, vendorID).Scan(&summary.TotalPayouts, &summary.PendingPayouts); err != nil {
		return nil, err
	}

	lastQuery := `
		SELECT net_amount, completed_at
		FROM payouts
		WHERE vendor_id = $1 AND status = 'completed'
		ORDER BY completed_at DESC
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, lastQuery, vendorID).Scan(&summary.LastPayoutAmount, &summary.LastPayoutDate)
	if err != nil && err != pgx.ErrNoRows {
		return nil, err
	}

	scheduleQuery := `
		SELECT next_payout_date
		FROM payout_schedules
		WHERE vendor_id = $1 AND is_active = TRUE
	`
	err = r.db.QueryRow(ctx, scheduleQuery, vendorID).Scan(&summary.NextScheduledPayout)
	if err != nil && err != pgx.ErrNoRows {
		return nil, err
	}
	return &summary, nil
}
