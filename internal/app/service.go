/**
 * @description
 * This file contains the core business logic for the payout-service. The
 * `Service` struct orchestrates the payout lifecycle, coordinating between
 * the ledger, the processor adapters, the vendor directory, and the message
 * broker.
 *
 * Key features:
 * - Implements the payout state machine: pending -> processing ->
 *   {completed | failed}, with cancellation before settlement and explicit
 *   retry of failed payouts.
 * - Reserves vendor balance before any processor call and settles the
 *   reservation exactly once per outcome, so funds are never double-spent.
 * - Never holds a balance lock across a processor network call: the
 *   reservation row is committed before the adapter is invoked.
 * - Publishes lifecycle events to RabbitMQ for notification delivery.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store, internal/processor: Domain models, data
 *   access and processor integrations.
 * - pkg/rabbitmq: For event publication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/marketvend/payout-service/internal/domain"
	"github.com/marketvend/payout-service/internal/processor"
	"github.com/marketvend/payout-service/internal/store"
	"github.com/marketvend/payout-service/pkg/rabbitmq"
)

const (
	// MaxPayoutRetries bounds how many times a failed payout can be requeued.
	MaxPayoutRetries = 3

	// MinimumPayoutAmount is the platform floor for on-demand payouts, in cents.
	MinimumPayoutAmount = 100
)

var (
	ErrVendorNotPayable     = errors.New("vendor is not eligible for payouts")
	ErrAccountNotVerified   = errors.New("payout account is not verified")
	ErrAmountBelowMinimum   = errors.New("amount is below the minimum payout")
	ErrNetAmountNotPositive = errors.New("net amount after fees is not positive")
	ErrPayoutNotCancellable = errors.New("payout can no longer be cancelled")
	ErrPayoutNotRetryable   = errors.New("payout is not in a retryable state")
	ErrRetriesExhausted     = errors.New("payout retry limit reached")
	ErrNotOwned             = errors.New("payout does not belong to vendor")
	ErrInvalidSchedule      = errors.New("invalid schedule type")
	ErrPayoutNotSettleable  = errors.New("payout is not awaiting settlement")
)

// VendorDirectory resolves vendor status and commission rates.
type VendorDirectory interface {
	GetVendor(ctx context.Context, vendorID uuid.UUID) (*domain.Vendor, error)
}

// Service provides the core business logic for payouts.
type Service struct {
	repo       store.Repository
	ledger     *Ledger
	vendors    VendorDirectory
	processors *processor.Registry
	producer   rabbitmq.Publisher
	feePolicy  domain.FeePolicy
	retry      processor.RetryPolicy
}

// NewService creates a new payout service instance.
func NewService(repo store.Repository, vendors VendorDirectory, processors *processor.Registry, producer rabbitmq.Publisher) *Service {
	return &Service{
		repo:       repo,
		ledger:     NewLedger(repo),
		vendors:    vendors,
		processors: processors,
		producer:   producer,
		feePolicy:  domain.DefaultFeePolicy(),
		retry:      processor.DefaultRetryPolicy(),
	}
}

// Ledger exposes the service's ledger for jobs that act on balances directly.
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// CreatePayout validates the request, reserves the vendor's balance and
// records a pending payout.
func (s *Service) CreatePayout(ctx context.Context, vendorID uuid.UUID, req domain.CreatePayoutRequest) (*domain.Payout, error) {
	if req.Amount < MinimumPayoutAmount {
		return nil, ErrAmountBelowMinimum
	}

	// 1. The vendor must be active to receive funds.
	vendor, err := s.vendors.GetVendor(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vendor: %w", err)
	}
	if vendor.Status != "active" {
		return nil, ErrVendorNotPayable
	}

	// 2. The destination account must belong to the vendor and be verified.
	account, err := s.repo.FindPayoutAccountByID(ctx, req.PayoutAccountID, vendorID)
	if err != nil {
		return nil, err
	}
	if account.VerificationStatus != domain.VerificationVerified {
		return nil, ErrAccountNotVerified
	}

	// 3. Fees are derived here; anything the caller supplied is ignored.
	payout := &domain.Payout{
		ID:              uuid.New(),
		VendorID:        vendorID,
		PayoutAccountID: account.ID,
		Amount:          req.Amount,
		Currency:        "USD",
		Method:          domain.PayoutMethodForAccountType(account.AccountType),
		Status:          domain.PayoutStatusPending,
		ReferenceNumber: domain.NewReferenceNumber(),
		RequestedAt:     time.Now().UTC(),
	}
	s.feePolicy.Apply(payout, vendor.CommissionRate)
	if payout.NetAmount <= 0 {
		return nil, ErrNetAmountNotPositive
	}

	// 4. Reserve the gross amount before anything is persisted. The payout is
	// only created once funds are locked.
	reservation, err := s.ledger.Reserve(ctx, vendorID, payout.Amount)
	if err != nil {
		return nil, err
	}
	payout.ReservationID = &reservation.ID

	if err := s.repo.CreatePayout(ctx, payout); err != nil {
		// Roll the hold back; the payout never existed.
		if relErr := s.ledger.Release(ctx, reservation.ID); relErr != nil {
			log.Printf("level=error component=payout_service op=create payout_id=%s msg=\"failed to release reservation after create failure\" err=%v", payout.ID, relErr)
		}
		return nil, fmt.Errorf("failed to create payout: %w", err)
	}
	if err := s.repo.AttachReservationPayout(ctx, reservation.ID, payout.ID); err != nil {
		log.Printf("level=warn component=payout_service op=create payout_id=%s msg=\"failed to attach reservation\" err=%v", payout.ID, err)
	}

	log.Printf("level=info component=payout_service op=create payout_id=%s vendor_id=%s reference=%s amount=%d net=%d", payout.ID, vendorID, payout.ReferenceNumber, payout.Amount, payout.NetAmount)
	s.notify(ctx, "payout.requested", payout, "")
	return payout, nil
}

// SubmitPayout dispatches a pending payout to its processor. The transition
// to processing happens first, so a concurrent submission of the same payout
// loses the compare-and-swap and returns without a second dispatch.
func (s *Service) SubmitPayout(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error) {
	payout, err := s.repo.FindPayoutByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status != domain.PayoutStatusPending {
		return payout, nil
	}

	account, err := s.repo.FindPayoutAccountByID(ctx, payout.PayoutAccountID, payout.VendorID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.processors.ForAccountType(account.AccountType)
	if err != nil {
		return nil, err
	}

	moved, err := s.repo.MarkPayoutProcessing(ctx, payout.ID, nil)
	if err != nil {
		return nil, err
	}
	if !moved {
		// Another worker won the race; nothing left to do here.
		return s.repo.FindPayoutByID(ctx, payoutID)
	}

	// The reservation is already settled in the database; no lock is held
	// while the processor call is in flight.
	submitReq := &processor.SubmitRequest{
		ReferenceNumber: payout.ReferenceNumber,
		Account:         account,
		Amount:          payout.NetAmount,
		Currency:        payout.Currency,
		Description:     fmt.Sprintf("Marketplace payout %s", payout.ReferenceNumber),
	}

	var result *processor.SubmitResult
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		var submitErr error
		result, submitErr = adapter.SubmitPayout(ctx, submitReq)
		return submitErr
	})
	if err != nil {
		log.Printf("level=error component=payout_service op=submit payout_id=%s processor=%s err=%v", payout.ID, adapter.Name(), err)
		if processor.IsTransient(err) {
			// Processor unavailable: the payout goes back to pending with
			// the attempt counted, and the sweep picks it up again later.
			// The reservation stays open so the funds remain earmarked.
			attempts, revertErr := s.repo.RevertPayoutToPending(ctx, payout.ID)
			if revertErr != nil {
				return nil, revertErr
			}
			if attempts >= MaxPayoutRetries {
				if failErr := s.failPayout(ctx, payout, fmt.Sprintf("retries exhausted: %v", err)); failErr != nil {
					return nil, failErr
				}
			}
			return s.repo.FindPayoutByID(ctx, payoutID)
		}
		if failErr := s.failPayout(ctx, payout, err.Error()); failErr != nil {
			return nil, failErr
		}
		return s.repo.FindPayoutByID(ctx, payoutID)
	}

	if result.ProcessorReference != "" {
		if err := s.repo.UpdatePayoutProcessorReference(ctx, payout.ID, result.ProcessorReference); err != nil {
			log.Printf("level=warn component=payout_service op=submit payout_id=%s msg=\"failed to record processor reference\" err=%v", payout.ID, err)
		}
	}
	log.Printf("level=info component=payout_service op=submit payout_id=%s processor=%s processor_ref=%s status=%s", payout.ID, adapter.Name(), result.ProcessorReference, result.Status)

	// Some processors settle synchronously.
	switch result.Status {
	case processor.StatusSucceeded:
		if err := s.completePayout(ctx, payout, result.ProcessorReference); err != nil {
			return nil, err
		}
	case processor.StatusFailed:
		if err := s.failPayout(ctx, payout, result.Detail); err != nil {
			return nil, err
		}
	}
	return s.repo.FindPayoutByID(ctx, payoutID)
}

// completePayout applies the terminal success outcome: the status flips via
// compare-and-swap and the reservation is committed. Replays are no-ops.
func (s *Service) completePayout(ctx context.Context, payout *domain.Payout, processorReference string) error {
	moved, err := s.repo.MarkPayoutCompleted(ctx, payout.ID, processorReference)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}
	if payout.ReservationID != nil {
		if err := s.ledger.Commit(ctx, *payout.ReservationID); err != nil {
			return err
		}
	}
	log.Printf("level=info component=payout_service op=complete payout_id=%s reference=%s net=%d", payout.ID, payout.ReferenceNumber, payout.NetAmount)
	s.notify(ctx, "payout.completed", payout, "")
	return nil
}

// failPayout applies the terminal failure outcome and returns the reserved
// funds to the vendor.
func (s *Service) failPayout(ctx context.Context, payout *domain.Payout, reason string) error {
	moved, err := s.repo.MarkPayoutFailed(ctx, payout.ID, reason)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}
	if payout.ReservationID != nil {
		if err := s.ledger.Release(ctx, *payout.ReservationID); err != nil {
			return err
		}
	}
	log.Printf("level=warn component=payout_service op=fail payout_id=%s reference=%s reason=%q", payout.ID, payout.ReferenceNumber, reason)
	s.notify(ctx, "payout.failed", payout, reason)
	return nil
}

// SettlePayoutManually records an operator-confirmed outcome for a payout in
// flight on a rail with no webhook feed (manual bank transfers). The payout
// must already be with the processor.
func (s *Service) SettlePayoutManually(ctx context.Context, payoutID uuid.UUID, succeeded bool, reason string) (*domain.Payout, error) {
	payout, err := s.repo.FindPayoutByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status != domain.PayoutStatusProcessing {
		return nil, ErrPayoutNotSettleable
	}

	reference := ""
	if payout.ProcessorReference != nil {
		reference = *payout.ProcessorReference
	}
	if succeeded {
		err = s.completePayout(ctx, payout, reference)
	} else {
		err = s.failPayout(ctx, payout, reason)
	}
	if err != nil {
		return nil, err
	}
	return s.repo.FindPayoutByID(ctx, payoutID)
}

// CancelPayout stops a payout that has not yet settled. For payouts already
// with the processor, cancellation is attempted there first; processors that
// cannot recall funds make the payout uncancellable.
func (s *Service) CancelPayout(ctx context.Context, vendorID, payoutID uuid.UUID) (*domain.Payout, error) {
	payout, err := s.repo.FindPayoutByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.VendorID != vendorID {
		return nil, ErrNotOwned
	}
	if payout.IsTerminal() {
		return nil, ErrPayoutNotCancellable
	}

	if payout.Status == domain.PayoutStatusProcessing && payout.ProcessorReference != nil {
		account, err := s.repo.FindPayoutAccountByID(ctx, payout.PayoutAccountID, payout.VendorID)
		if err != nil {
			return nil, err
		}
		adapter, err := s.processors.ForAccountType(account.AccountType)
		if err != nil {
			return nil, err
		}
		if err := adapter.CancelPayout(ctx, *payout.ProcessorReference); err != nil {
			if errors.Is(err, processor.ErrUnsupportedOperation) {
				return nil, ErrPayoutNotCancellable
			}
			return nil, fmt.Errorf("processor cancellation failed: %w", err)
		}
	}

	moved, err := s.repo.MarkPayoutCancelled(ctx, payout.ID)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, ErrPayoutNotCancellable
	}
	if payout.ReservationID != nil {
		if err := s.ledger.Release(ctx, *payout.ReservationID); err != nil {
			return nil, err
		}
	}
	log.Printf("level=info component=payout_service op=cancel payout_id=%s reference=%s", payout.ID, payout.ReferenceNumber)
	s.notify(ctx, "payout.cancelled", payout, "")
	return s.repo.FindPayoutByID(ctx, payoutID)
}

// RetryPayout requeues a failed payout with a fresh reservation and
// dispatches it again, up to MaxPayoutRetries attempts.
func (s *Service) RetryPayout(ctx context.Context, vendorID, payoutID uuid.UUID) (*domain.Payout, error) {
	payout, err := s.repo.FindPayoutByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.VendorID != vendorID {
		return nil, ErrNotOwned
	}
	if payout.Status != domain.PayoutStatusFailed {
		return nil, ErrPayoutNotRetryable
	}
	if payout.RetryCount >= MaxPayoutRetries {
		return nil, ErrRetriesExhausted
	}

	reservation, err := s.ledger.Reserve(ctx, vendorID, payout.Amount)
	if err != nil {
		return nil, err
	}

	moved, err := s.repo.RequeuePayoutForRetry(ctx, payout.ID, reservation.ID, MaxPayoutRetries)
	if err != nil {
		return nil, err
	}
	if !moved {
		// A concurrent retry or status change won; give the funds back.
		if relErr := s.ledger.Release(ctx, reservation.ID); relErr != nil {
			log.Printf("level=error component=payout_service op=retry payout_id=%s msg=\"failed to release reservation after lost requeue race\" err=%v", payout.ID, relErr)
		}
		return nil, ErrPayoutNotRetryable
	}
	if err := s.repo.AttachReservationPayout(ctx, reservation.ID, payout.ID); err != nil {
		log.Printf("level=warn component=payout_service op=retry payout_id=%s msg=\"failed to attach reservation\" err=%v", payout.ID, err)
	}

	log.Printf("level=info component=payout_service op=retry payout_id=%s reference=%s attempt=%d", payout.ID, payout.ReferenceNumber, payout.RetryCount+1)
	return s.SubmitPayout(ctx, payout.ID)
}

// GetPayout fetches a payout, enforcing vendor ownership.
func (s *Service) GetPayout(ctx context.Context, vendorID, payoutID uuid.UUID) (*domain.Payout, error) {
	payout, err := s.repo.FindPayoutByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.VendorID != vendorID {
		return nil, ErrNotOwned
	}
	return payout, nil
}

// ListPayouts returns a vendor's payout history.
func (s *Service) ListPayouts(ctx context.Context, vendorID uuid.UUID, opts domain.PayoutListOptions) ([]domain.Payout, error) {
	return s.repo.ListPayoutsByVendorID(ctx, vendorID, opts)
}

// GetBalance returns a vendor's balance.
func (s *Service) GetBalance(ctx context.Context, vendorID uuid.UUID) (*domain.VendorBalance, error) {
	return s.ledger.Balance(ctx, vendorID)
}

// PayoutSummary aggregates a vendor's payout history.
func (s *Service) PayoutSummary(ctx context.Context, vendorID uuid.UUID) (*domain.PayoutSummary, error) {
	return s.repo.PayoutSummaryByVendorID(ctx, vendorID)
}

// GetSchedule returns the vendor's schedule settings, creating defaults on
// first access.
func (s *Service) GetSchedule(ctx context.Context, vendorID uuid.UUID) (*domain.PayoutSchedule, error) {
	return s.repo.GetOrCreateSchedule(ctx, vendorID)
}

// UpdateSchedule applies schedule setting changes after validation.
func (s *Service) UpdateSchedule(ctx context.Context, vendorID uuid.UUID, req domain.UpdateScheduleRequest) (*domain.PayoutSchedule, error) {
	if req.ScheduleType != nil {
		switch *req.ScheduleType {
		case domain.ScheduleManual, domain.ScheduleWeekly, domain.ScheduleBiWeekly, domain.ScheduleMonthly:
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidSchedule, *req.ScheduleType)
		}
	}
	if req.MinimumAmount != nil && *req.MinimumAmount < MinimumPayoutAmount {
		return nil, ErrAmountBelowMinimum
	}
	return s.repo.UpdateSchedule(ctx, vendorID, req)
}

// notify publishes a fire-and-forget lifecycle event. Notification delivery
// must never fail a payout operation.
func (s *Service) notify(ctx context.Context, event string, payout *domain.Payout, reason string) {
	if s.producer == nil {
		return
	}
	notification := domain.PayoutNotification{
		Event:           event,
		VendorID:        payout.VendorID,
		PayoutID:        payout.ID,
		ReferenceNumber: payout.ReferenceNumber,
		Amount:          payout.Amount,
		NetAmount:       payout.NetAmount,
		Currency:        payout.Currency,
		Reason:          reason,
		Timestamp:       time.Now().UTC(),
	}
	if err := s.producer.PublishPayoutEvent(ctx, event, notification); err != nil {
		log.Printf("level=warn component=payout_service op=notify event=%s payout_id=%s err=%v", event, payout.ID, err)
	}
}
