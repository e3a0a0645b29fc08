/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the payout-service. By defining an interface,
 * we decouple the application's business logic from the specific database
 * implementation (PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation and handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marketvend/payout-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Balance and reservation methods (the ledger).
	// Balance mutations for a single vendor are linearizable: ReserveBalance
	// uses a conditional update so that no two reservations can observe the
	// same available-balance window.
	GetVendorBalance(ctx context.Context, vendorID uuid.UUID) (*domain.VendorBalance, error)
	ReserveBalance(ctx context.Context, vendorID uuid.UUID, amount int64) (*domain.BalanceReservation, error)
	CommitReservation(ctx context.Context, reservationID uuid.UUID) error
	ReleaseReservation(ctx context.Context, reservationID uuid.UUID) error
	AttachReservationPayout(ctx context.Context, reservationID, payoutID uuid.UUID) error
	FindStaleOpenReservations(ctx context.Context, olderThan time.Time) ([]domain.BalanceReservation, error)
	CreditEarnings(ctx context.Context, vendorID uuid.UUID, amount int64, currency string) error
	SettlePendingBalance(ctx context.Context, vendorID uuid.UUID, amount int64) error
	HoldBalance(ctx context.Context, vendorID uuid.UUID, amount int64, reason string) error
	ReleaseHold(ctx context.Context, vendorID uuid.UUID, amount int64) error

	// Payout account registry methods.
	CreatePayoutAccount(ctx context.Context, account *domain.PayoutAccount) error
	FindPayoutAccountByID(ctx context.Context, accountID, vendorID uuid.UUID) (*domain.PayoutAccount, error)
	FindPayoutAccountsByVendorID(ctx context.Context, vendorID uuid.UUID) ([]domain.PayoutAccount, error)
	FindPrimaryPayoutAccount(ctx context.Context, vendorID uuid.UUID) (*domain.PayoutAccount, error)
	SetPrimaryPayoutAccount(ctx context.Context, vendorID, accountID uuid.UUID) error
	MarkAccountVerified(ctx context.Context, accountID uuid.UUID, stripeAccountID, paypalMerchantID *string) error
	MarkAccountVerificationFailed(ctx context.Context, accountID uuid.UUID) error
	DeletePayoutAccount(ctx context.Context, accountID, vendorID uuid.UUID) (bool, error)

	// Payout methods. Status transitions are compare-and-swap updates so that
	// concurrent confirmations and replays cannot double-apply an outcome.
	CreatePayout(ctx context.Context, payout *domain.Payout) error
	FindPayoutByID(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error)
	FindPayoutByProcessorReference(ctx context.Context, processorReference string) (*domain.Payout, error)
	ListPayoutsByVendorID(ctx context.Context, vendorID uuid.UUID, opts domain.PayoutListOptions) ([]domain.Payout, error)
	FindStuckProcessingPayouts(ctx context.Context, olderThan time.Time, limit int) ([]domain.Payout, error)
	MarkPayoutProcessing(ctx context.Context, payoutID uuid.UUID, processorReference *string) (bool, error)
	MarkPayoutCompleted(ctx context.Context, payoutID uuid.UUID, processorReference string) (bool, error)
	MarkPayoutFailed(ctx context.Context, payoutID uuid.UUID, failureReason string) (bool, error)
	MarkPayoutCancelled(ctx context.Context, payoutID uuid.UUID) (bool, error)
	IncrementPayoutRetryCount(ctx context.Context, payoutID uuid.UUID) (int, error)
	RevertPayoutToPending(ctx context.Context, payoutID uuid.UUID) (int, error)
	FindStalePendingPayouts(ctx context.Context, olderThan time.Time, limit int) ([]domain.Payout, error)
	RequeuePayoutForRetry(ctx context.Context, payoutID, reservationID uuid.UUID, maxRetries int) (bool, error)
	UpdatePayoutProcessorReference(ctx context.Context, payoutID uuid.UUID, processorReference string) error
	PayoutSummaryByVendorID(ctx context.Context, vendorID uuid.UUID) (*domain.PayoutSummary, error)

	// Schedule methods.
	GetOrCreateSchedule(ctx context.Context, vendorID uuid.UUID) (*domain.PayoutSchedule, error)
	UpdateSchedule(ctx context.Context, vendorID uuid.UUID, req domain.UpdateScheduleRequest) (*domain.PayoutSchedule, error)
	FindDueSchedules(ctx context.Context, asOf time.Time) ([]domain.PayoutSchedule, error)
	AdvanceSchedule(ctx context.Context, vendorID uuid.UUID, next *time.Time, processedAt time.Time) error
}
