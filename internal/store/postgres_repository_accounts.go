/**
 * @description
 * PostgreSQL implementation of the payout account registry and the per-vendor
 * schedule settings. Primary-account reassignment demotes the previous
 * primary in the same transaction so the single-primary invariant holds under
 * concurrency.
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

const payoutAccountColumns = `
	id, vendor_id, account_type, account_name, is_primary, verification_status,
	bank_name, account_number, routing_number, iban, swift_code, email,
	wallet_id, stripe_account_id, paypal_merchant_id, verified_at,
	verification_attempts, created_at, updated_at
`

func scanPayoutAccount(row pgx.Row) (*domain.PayoutAccount, error) {
	var a domain.PayoutAccount
	err := row.Scan(
		&a.ID, &a.VendorID, &a.AccountType, &a.AccountName, &a.IsPrimary,
		&a.VerificationStatus, &a.BankName, &a.AccountNumber, &a.RoutingNumber,
		&a.IBAN, &a.SwiftCode, &a.Email, &a.WalletID, &a.StripeAccountID,
		&a.PayPalMerchantID, &a.VerifiedAt, &a.VerificationAttempts,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreatePayoutAccount inserts a new disbursement destination. When the new
// account is flagged primary, any existing primary for the vendor is demoted
// in the same transaction. A vendor's first account always becomes primary.
func (r *PostgresRepository) CreatePayoutAccount(ctx context.Context, account *domain.PayoutAccount) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create account tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var existing int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM payout_accounts WHERE vendor_id = $1`, account.VendorID).Scan(&existing); err != nil {
		return err
	}
	if existing == 0 {
		account.IsPrimary = true
	}
	if account.IsPrimary {
		if _, err := tx.Exec(ctx,
			`UPDATE payout_accounts SET is_primary = FALSE, updated_at = NOW() WHERE vendor_id = $1 AND is_primary = TRUE`,
			account.VendorID); err != nil {
			return fmt.Errorf("demote existing primary: %w", err)
		}
	}

	insertQuery := `
		INSERT INTO payout_accounts (
			id, vendor_id, account_type, account_name, is_primary,
			verification_status, bank_name, account_number, routing_number,
			iban, swift_code, email, wallet_id, verification_attempts,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 0, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(ctx, insertQuery,
		account.ID, account.VendorID, account.AccountType, account.AccountName,
		account.IsPrimary, account.VerificationStatus, account.BankName,
		account.AccountNumber, account.RoutingNumber, account.IBAN,
		account.SwiftCode, account.Email, account.WalletID,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payout account: %w", err)
	}

	return tx.Commit(ctx)
}

// FindPayoutAccountByID retrieves an account scoped to its owning vendor.
func (r *PostgresRepository) FindPayoutAccountByID(ctx context.Context, accountID, vendorID uuid.UUID) (*domain.PayoutAccount, error) {
	query := fmt.Sprintf(`SELECT %s FROM payout_accounts WHERE id = $1 AND vendor_id = $2`, payoutAccountColumns)
	a, err := scanPayoutAccount(r.db.QueryRow(ctx, query, accountID, vendorID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutAccountNotFound
		}
		return nil, err
	}
	return a, nil
}

// FindPayoutAccountsByVendorID lists a vendor's accounts, primary first.
func (r *PostgresRepository) FindPayoutAccountsByVendorID(ctx context.Context, vendorID uuid.UUID) ([]domain.PayoutAccount, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM payout_accounts
		WHERE vendor_id = $1
		ORDER BY is_primary DESC, created_at ASC
	`, payoutAccountColumns)

	rows, err := r.db.Query(ctx, query, vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.PayoutAccount
	for rows.Next() {
		a, err := scanPayoutAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// FindPrimaryPayoutAccount returns the vendor's primary account.
func (r *PostgresRepository) FindPrimaryPayoutAccount(ctx context.Context, vendorID uuid.UUID) (*domain.PayoutAccount, error) {
	query := fmt.Sprintf(`SELECT %s FROM payout_accounts WHERE vendor_id = $1 AND is_primary = TRUE`, payoutAccountColumns)
	a, err := scanPayoutAccount(r.db.QueryRow(ctx, query, vendorID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutAccountNotFound
		}
		return nil, err
	}
	return a, nil
}

// SetPrimaryPayoutAccount promotes an account to primary, demoting the
// current one in the same transaction.
func (r *PostgresRepository) SetPrimaryPayoutAccount(ctx context.Context, vendorID, accountID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin set primary tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE payout_accounts SET is_primary = FALSE, updated_at = NOW() WHERE vendor_id = $1 AND is_primary = TRUE`,
		vendorID); err != nil {
		return fmt.Errorf("demote existing primary: %w", err)
	}

	result, err := tx.Exec(ctx,
		`UPDATE payout_accounts SET is_primary = TRUE, updated_at = NOW() WHERE id = $1 AND vendor_id = $2`,
		accountID, vendorID)
	if err != nil {
		return fmt.Errorf("promote account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrPayoutAccountNotFound
	}

	return tx.Commit(ctx)
}

// MarkAccountVerified records a successful processor verification along with
// any processor-side identifiers it produced.
func (r *PostgresRepository) MarkAccountVerified(ctx context.Context, accountID uuid.UUID, stripeAccountID, paypalMerchantID *string) error {
	query := `
		UPDATE payout_accounts
		SET verification_status = $2,
		    stripe_account_id = COALESCE($3, stripe_account_id),
		    paypal_merchant_id = COALESCE($4, paypal_merchant_id),
		    verified_at = NOW(),
		    verification_attempts = verification_attempts + 1,
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, accountID, domain.VerificationVerified, stripeAccountID, paypalMerchantID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPayoutAccountNotFound
	}
	return nil
}

// MarkAccountVerificationFailed records a failed verification attempt.
func (r *PostgresRepository) MarkAccountVerificationFailed(ctx context.Context, accountID uuid.UUID) error {
	query := `
		UPDATE payout_accounts
		SET verification_status = $2,
		    verification_attempts = verification_attempts + 1,
		    updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, accountID, domain.VerificationFailed)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPayoutAccountNotFound
	}
	return nil
}

// DeletePayoutAccount removes an account unless it is the vendor's only one
// while being primary, or has payouts still in flight. Returns whether a row
// was deleted.
func (r *PostgresRepository) DeletePayoutAccount(ctx context.Context, accountID, vendorID uuid.UUID) (bool, error) {
	query := `
		DELETE FROM payout_accounts
		WHERE id = $1 AND vendor_id = $2
		  AND NOT EXISTS (
			SELECT 1 FROM payouts
			WHERE payout_account_id = $1 AND status IN ('pending', 'processing')
		  )
	`
	result, err := r.db.Exec(ctx, query, accountID, vendorID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// GetOrCreateSchedule fetches the vendor's schedule settings, creating the
// default manual schedule on first access.
func (r *PostgresRepository) GetOrCreateSchedule(ctx context.Context, vendorID uuid.UUID) (*domain.PayoutSchedule, error) {
	query := `
		INSERT INTO payout_schedules (vendor_id, schedule_type, is_active, auto_process, minimum_amount, created_at, updated_at)
		VALUES ($1, $2, FALSE, FALSE, $3, NOW(), NOW())
		ON CONFLICT (vendor_id) DO UPDATE SET vendor_id = EXCLUDED.vendor_id
		RETURNING vendor_id, schedule_type, is_active, auto_process, minimum_amount,
		          next_payout_date, last_processed_at, created_at, updated_at
	`
	var s domain.PayoutSchedule
	err := r.db.QueryRow(ctx, query, vendorID, domain.ScheduleManual, int64(5000)).Scan(
		&s.VendorID, &s.ScheduleType, &s.IsActive, &s.AutoProcess, &s.MinimumAmount,
		&s.NextPayoutDate, &s.LastProcessedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSchedule applies the non-nil fields of the request and recomputes the
// next payout date when the cadence changes.
func (r *PostgresRepository) UpdateSchedule(ctx context.Context, vendorID uuid.UUID, req domain.UpdateScheduleRequest) (*domain.PayoutSchedule, error) {
	current, err := r.GetOrCreateSchedule(ctx, vendorID)
	if err != nil {
		return nil, err
	}

	scheduleType := current.ScheduleType
	if req.ScheduleType != nil {
		scheduleType = *req.ScheduleType
	}
	isActive := current.IsActive
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	autoProcess := current.AutoProcess
	if req.AutoProcess != nil {
		autoProcess = *req.AutoProcess
	}
	minimumAmount := current.MinimumAmount
	if req.MinimumAmount != nil {
		minimumAmount = *req.MinimumAmount
	}

	next := current.NextPayoutDate
	if interval := domain.CadenceInterval(scheduleType); interval > 0 && isActive {
		if scheduleType != current.ScheduleType || next == nil {
			d := time.Now().UTC().AddDate(0, 0, interval)
			next = &d
		}
	} else {
		next = nil
	}

	query := `
		UPDATE payout_schedules
		SET schedule_type = $2, is_active = $3, auto_process = $4,
		    minimum_amount = $5, next_payout_date = $6, updated_at = NOW()
		WHERE vendor_id = $1
		RETURNING vendor_id, schedule_type, is_active, auto_process, minimum_amount,
		          next_payout_date, last_processed_at, created_at, updated_at
	`
	var s domain.PayoutSchedule
	err = r.db.QueryRow(ctx, query, vendorID, scheduleType, isActive, autoProcess, minimumAmount, next).Scan(
		&s.VendorID, &s.ScheduleType, &s.IsActive, &s.AutoProcess, &s.MinimumAmount,
		&s.NextPayoutDate, &s.LastProcessedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	return &s, nil
}

// FindDueSchedules returns the active auto-process schedules whose next payout
// date has arrived.
func (r *PostgresRepository) FindDueSchedules(ctx context.Context, asOf time.Time) ([]domain.PayoutSchedule, error) {
	query := `
		SELECT vendor_id, schedule_type, is_active, auto_process, minimum_amount,
		       next_payout_date, last_processed_at, created_at, updated_at
		FROM payout_schedules
		WHERE is_active = TRUE AND auto_process = TRUE
		  AND next_payout_date IS NOT NULL AND next_payout_date <= $1
		ORDER BY next_payout_date ASC
	`
	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []domain.PayoutSchedule
	for rows.Next() {
		var s domain.PayoutSchedule
		if err := rows.Scan(&s.VendorID, &s.ScheduleType, &s.IsActive, &s.AutoProcess,
			&s.MinimumAmount, &s.NextPayoutDate, &s.LastProcessedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// AdvanceSchedule stamps a sweep run and moves the schedule to its next
// occurrence. A nil next date deactivates further auto-processing for the
// vendor until they reconfigure.
func (r *PostgresRepository) AdvanceSchedule(ctx context.Context, vendorID uuid.UUID, next *time.Time, processedAt time.Time) error {
	query := `
		UPDATE payout_schedules
		SET next_payout_date = $2, last_processed_at = $3, updated_at = NOW()
		WHERE vendor_id = $1
	`
	result, err := r.db.Exec(ctx, query, vendorID, next, processedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}
