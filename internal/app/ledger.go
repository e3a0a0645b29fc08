/**
 * @description
 * The Ledger wraps the balance and reservation operations of the repository
 * behind the invariants the payout engine relies on: funds move between the
 * pending, available, on-hold and reserved buckets but are never created or
 * destroyed here, and a reservation is settled by exactly one of commit or
 * release.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and data access.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/marketvend/payout-service/internal/domain"
	"github.com/marketvend/payout-service/internal/store"
)

// Ledger coordinates vendor balance movements.
type Ledger struct {
	repo store.Repository
}

// NewLedger creates a ledger over the given repository.
func NewLedger(repo store.Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Balance returns the vendor's current balance record. Vendors that have
// never earned get a zero balance rather than an error.
func (l *Ledger) Balance(ctx context.Context, vendorID uuid.UUID) (*domain.VendorBalance, error) {
	balance, err := l.repo.GetVendorBalance(ctx, vendorID)
	if err == store.ErrVendorBalanceNotFound {
		return &domain.VendorBalance{VendorID: vendorID, Currency: "USD"}, nil
	}
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// Reserve places a hold on the vendor's available balance for a payout. The
// underlying update is conditional, so concurrent reservations cannot
// oversubscribe the balance.
func (l *Ledger) Reserve(ctx context.Context, vendorID uuid.UUID, amount int64) (*domain.BalanceReservation, error) {
	reservation, err := l.repo.ReserveBalance(ctx, vendorID, amount)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=ledger op=reserve vendor_id=%s reservation_id=%s amount=%d", vendorID, reservation.ID, amount)
	return reservation, nil
}

// Commit settles a reservation into a completed payout. Idempotent.
func (l *Ledger) Commit(ctx context.Context, reservationID uuid.UUID) error {
	if err := l.repo.CommitReservation(ctx, reservationID); err != nil {
		return fmt.Errorf("failed to commit reservation %s: %w", reservationID, err)
	}
	log.Printf("level=info component=ledger op=commit reservation_id=%s", reservationID)
	return nil
}

// Release returns reserved funds to the available balance. Idempotent.
func (l *Ledger) Release(ctx context.Context, reservationID uuid.UUID) error {
	if err := l.repo.ReleaseReservation(ctx, reservationID); err != nil {
		return fmt.Errorf("failed to release reservation %s: %w", reservationID, err)
	}
	log.Printf("level=info component=ledger op=release reservation_id=%s", reservationID)
	return nil
}

// CreditEarnings accrues new marketplace earnings into the vendor's pending
// bucket.
func (l *Ledger) CreditEarnings(ctx context.Context, vendorID uuid.UUID, amount int64, currency string) error {
	return l.repo.CreditEarnings(ctx, vendorID, amount, currency)
}

// SettlePending moves cleared earnings from pending to available.
func (l *Ledger) SettlePending(ctx context.Context, vendorID uuid.UUID, amount int64) error {
	return l.repo.SettlePendingBalance(ctx, vendorID, amount)
}

// Hold freezes part of the available balance, e.g. during a dispute.
func (l *Ledger) Hold(ctx context.Context, vendorID uuid.UUID, amount int64, reason string) error {
	return l.repo.HoldBalance(ctx, vendorID, amount, reason)
}

// ReleaseHold unfreezes held funds back into the available balance.
func (l *Ledger) ReleaseHold(ctx context.Context, vendorID uuid.UUID, amount int64) error {
	return l.repo.ReleaseHold(ctx, vendorID, amount)
}

// ReleaseStale settles reservations left open past the threshold, returning
// the number settled. Orphans with no payout attached are crashes between
// reserving and creating the payout and are released outright. Reservations
// whose payout already reached a terminal state are settled to match the
// payout's outcome. Reservations backing in-flight payouts are left alone.
func (l *Ledger) ReleaseStale(ctx context.Context, threshold time.Duration) (int, error) {
	stale, err := l.repo.FindStaleOpenReservations(ctx, time.Now().Add(-threshold))
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, reservation := range stale {
		settle := l.repo.ReleaseReservation
		if reservation.PayoutID != nil {
			payout, err := l.repo.FindPayoutByID(ctx, *reservation.PayoutID)
			if err != nil {
				log.Printf("level=error component=ledger op=release_stale reservation_id=%s payout_id=%s err=%v", reservation.ID, *reservation.PayoutID, err)
				continue
			}
			if !payout.IsTerminal() {
				continue
			}
			if payout.Status == domain.PayoutStatusCompleted {
				settle = l.repo.CommitReservation
			}
		}
		if err := settle(ctx, reservation.ID); err != nil {
			log.Printf("level=error component=ledger op=release_stale reservation_id=%s err=%v", reservation.ID, err)
			continue
		}
		log.Printf("level=warn component=ledger op=release_stale reservation_id=%s vendor_id=%s amount=%d age=%s", reservation.ID, reservation.VendorID, reservation.Amount, time.Since(reservation.CreatedAt).Round(time.Second))
		settled++
	}
	return settled, nil
}
