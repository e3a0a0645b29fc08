/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface
 * for the ledger: vendor balances, balance reservations and their settlement.
 * All balance mutations are conditional single-statement updates (or short
 * transactions) so that concurrent operations on the same vendor serialize at
 * the row level and `available` can never go negative.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/marketvend/payout-service/internal/domain"
)

var (
	ErrVendorBalanceNotFound = errors.New("vendor balance not found")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrReservationNotFound   = errors.New("reservation not found")
	ErrPayoutNotFound        = errors.New("payout not found")
	ErrPayoutAccountNotFound = errors.New("payout account not found")
	ErrScheduleNotFound      = errors.New("payout schedule not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetVendorBalance retrieves a vendor's balance record.
func (r *PostgresRepository) GetVendorBalance(ctx context.Context, vendorID uuid.UUID) (*domain.VendorBalance, error) {
	var balance domain.VendorBalance
	query := `
		SELECT vendor_id, available, pending, on_hold, hold_reason,
		       total_earnings, total_payouts, currency, updated_at
		FROM vendor_balances
		WHERE vendor_id = $1
	`
	err := r.db.QueryRow(ctx, query, vendorID).Scan(
		&balance.VendorID, &balance.Available, &balance.Pending, &balance.OnHold,
		&balance.HoldReason, &balance.TotalEarnings, &balance.TotalPayouts,
		&balance.Currency, &balance.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrVendorBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// ReserveBalance atomically debits `available` and records an open reservation.
// The conditional UPDATE is the linearization point: two concurrent reservations
// for the same vendor cannot both observe the same available window, so the sum
// of successful reservations never exceeds the starting balance.
func (r *PostgresRepository) ReserveBalance(ctx context.Context, vendorID uuid.UUID, amount int64) (*domain.BalanceReservation, error) {
	if amount <= 0 {
		return nil, ErrInsufficientBalance
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reserve tx: %w", err)
	}
	defer tx.Rollback(ctx)

	debitQuery := `
		UPDATE vendor_balances
		SET available = available - $2, updated_at = NOW()
		WHERE vendor_id = $1 AND available >= $2
	`
	result, err := tx.Exec(ctx, debitQuery, vendorID, amount)
	if err != nil {
		return nil, fmt.Errorf("debit available balance: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Distinguish an unknown vendor from a genuine shortfall.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM vendor_balances WHERE vendor_id = $1)`, vendorID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrVendorBalanceNotFound
		}
		return nil, ErrInsufficientBalance
	}

	reservation := &domain.BalanceReservation{
		ID:       uuid.New(),
		VendorID: vendorID,
		Amount:   amount,
		State:    domain.ReservationOpen,
	}
	insertQuery := `
		INSERT INTO balance_reservations (id, vendor_id, amount, state, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING created_at
	`
	if err := tx.QueryRow(ctx, insertQuery, reservation.ID, vendorID, amount, reservation.State).Scan(&reservation.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return reservation, nil
}

// CommitReservation settles an open reservation into a completed payout and
// adds the reserved amount to total_payouts. Committing an already-settled
// reservation is a no-op, so confirmation replays cannot double-increment.
func (r *PostgresRepository) CommitReservation(ctx context.Context, reservationID uuid.UUID) error {
	return r.settleReservation(ctx, reservationID, domain.ReservationCommitted)
}

// ReleaseReservation restores the reserved amount to `available`. Idempotent.
func (r *PostgresRepository) ReleaseReservation(ctx context.Context, reservationID uuid.UUID) error {
	return r.settleReservation(ctx, reservationID, domain.ReservationReleased)
}

func (r *PostgresRepository) settleReservation(ctx context.Context, reservationID uuid.UUID, toState string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin settle tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		vendorID uuid.UUID
		amount   int64
	)
	flipQuery := `
		UPDATE balance_reservations
		SET state = $2, settled_at = NOW()
		WHERE id = $1 AND state = $3
		RETURNING vendor_id, amount
	`
	err = tx.QueryRow(ctx, flipQuery, reservationID, toState, domain.ReservationOpen).Scan(&vendorID, &amount)
	if err != nil {
		if err == pgx.ErrNoRows {
			// Either the reservation does not exist, or it is already settled.
			var state string
			lookupErr := tx.QueryRow(ctx, `SELECT state FROM balance_reservations WHERE id = $1`, reservationID).Scan(&state)
			if lookupErr == pgx.ErrNoRows {
				return ErrReservationNotFound
			}
			if lookupErr != nil {
				return lookupErr
			}
			// Already settled: settling twice is a no-op.
			return tx.Commit(ctx)
		}
		return fmt.Errorf("flip reservation state: %w", err)
	}

	var balanceQuery string
	switch toState {
	case domain.ReservationCommitted:
		balanceQuery = `UPDATE vendor_balances SET total_payouts = total_payouts + $2, updated_at = NOW() WHERE vendor_id = $1`
	case domain.ReservationReleased:
		balanceQuery = `UPDATE vendor_balances SET available = available + $2, updated_at = NOW() WHERE vendor_id = $1`
	default:
		return fmt.Errorf("invalid reservation settle state %q", toState)
	}
	if _, err := tx.Exec(ctx, balanceQuery, vendorID, amount); err != nil {
		return fmt.Errorf("apply reservation settlement: %w", err)
	}

	return tx.Commit(ctx)
}

// AttachReservationPayout links a reservation to the payout it backs.
func (r *PostgresRepository) AttachReservationPayout(ctx context.Context, reservationID, payoutID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `UPDATE balance_reservations SET payout_id = $2 WHERE id = $1`, reservationID, payoutID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrReservationNotFound
	}
	return nil
}

// FindStaleOpenReservations returns reservations that were never settled within
// the timeout window. These indicate a crash mid-transaction and are released
// by the safety-net sweep.
func (r *PostgresRepository) FindStaleOpenReservations(ctx context.Context, olderThan time.Time) ([]domain.BalanceReservation, error) {
	query := `
		SELECT id, vendor_id, amount, state, payout_id, created_at, settled_at
		FROM balance_reservations
		WHERE state = $1 AND created_at < $2
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, domain.ReservationOpen, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []domain.BalanceReservation
	for rows.Next() {
		var res domain.BalanceReservation
		if err := rows.Scan(&res.ID, &res.VendorID, &res.Amount, &res.State, &res.PayoutID, &res.CreatedAt, &res.SettledAt); err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

// CreditEarnings accrues new earnings into the pending bucket, creating the
// balance row on first credit.
func (r *PostgresRepository) CreditEarnings(ctx context.Context, vendorID uuid.UUID, amount int64, currency string) error {
	if amount <= 0 {
		return nil
	}
	query := `
		INSERT INTO vendor_balances (vendor_id, available, pending, on_hold, total_earnings, total_payouts, currency, updated_at)
		VALUES ($1, 0, $2, 0, $2, 0, $3, NOW())
		ON CONFLICT (vendor_id)
		DO UPDATE SET
			pending = vendor_balances.pending + $2,
			total_earnings = vendor_balances.total_earnings + $2,
			updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, vendorID, amount, currency)
	return err
}

// SettlePendingBalance moves accrued earnings from pending to available once
// the platform's clearing window has elapsed.
func (r *PostgresRepository) SettlePendingBalance(ctx context.Context, vendorID uuid.UUID, amount int64) error {
	query := `
		UPDATE vendor_balances
		SET pending = pending - $2, available = available + $2, updated_at = NOW()
		WHERE vendor_id = $1 AND pending >= $2
	`
	result, err := r.db.Exec(ctx, query, vendorID, amount)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// HoldBalance freezes part of the available balance with a reason.
func (r *PostgresRepository) HoldBalance(ctx context.Context, vendorID uuid.UUID, amount int64, reason string) error {
	query := `
		UPDATE vendor_balances
		SET available = available - $2, on_hold = on_hold + $2, hold_reason = $3, updated_at = NOW()
		WHERE vendor_id = $1 AND available >= $2
	`
	result, err := r.db.Exec(ctx, query, vendorID, amount, reason)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// ReleaseHold restores frozen funds to available and clears the hold reason
// once the hold bucket is drained.
func (r *PostgresRepository) ReleaseHold(ctx context.Context, vendorID uuid.UUID, amount int64) error {
	query := `
		UPDATE vendor_balances
		SET on_hold = on_hold - $2,
		    available = available + $2,
		    hold_reason = CASE WHEN on_hold - $2 <= 0 THEN NULL ELSE hold_reason END,
		    updated_at = NOW()
		WHERE vendor_id = $1 AND on_hold >= $2
	`
	result, err := r.db.Exec(ctx, query, vendorID, amount)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}
	return nil
}
