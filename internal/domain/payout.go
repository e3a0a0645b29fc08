/**
 * @description
 * This file defines the core domain models for the payout-service. These structs
 * represent the main entities and data transfer objects (DTOs) used throughout the
 * service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and external processor
 *   payloads ensures clear separation of concerns and type safety.
 * - Amounts are stored as `int64` to represent the value in the smallest currency
 *   unit (cents), which avoids floating-point inaccuracies with financial data.
 */

package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Payout statuses. The lifecycle is pending -> processing -> {completed | failed},
// with cancelled reachable from pending/processing before settlement and failed
// re-enterable via an explicit retry while retry_count < max retries.
const (
	PayoutStatusPending    = "pending"
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
	PayoutStatusFailed     = "failed"
	PayoutStatusCancelled  = "cancelled"
)

// IsValidPayoutStatus reports whether s is a known payout status.
func IsValidPayoutStatus(s string) bool {
	switch s {
	case PayoutStatusPending, PayoutStatusProcessing, PayoutStatusCompleted,
		PayoutStatusFailed, PayoutStatusCancelled:
		return true
	}
	return false
}

// Payout account types, mirroring the disbursement rails we support.
const (
	AccountTypeBank   = "bank_account"
	AccountTypePayPal = "paypal"
	AccountTypeStripe = "stripe"
	AccountTypeManual = "manual"
)

// Payout methods recorded on the payout itself.
const (
	PayoutMethodBankTransfer = "bank_transfer"
	PayoutMethodPayPal       = "paypal"
	PayoutMethodStripe       = "stripe"
	PayoutMethodManual       = "manual"
)

// Verification statuses for payout accounts.
const (
	VerificationPending  = "pending"
	VerificationVerified = "verified"
	VerificationFailed   = "failed"
)

// Schedule cadences. Manual schedules are never auto-advanced.
const (
	ScheduleManual   = "manual"
	ScheduleWeekly   = "weekly"
	ScheduleBiWeekly = "bi_weekly"
	ScheduleMonthly  = "monthly"
)

// Reservation states for balance holds created by the ledger.
const (
	ReservationOpen      = "open"
	ReservationCommitted = "committed"
	ReservationReleased  = "released"
)

// Payout represents a single disbursement request. This struct maps directly to
// the `payouts` table. Payouts are an append-only financial record and are never
// deleted.
type Payout struct {
	ID                 uuid.UUID  `json:"id"`
	VendorID           uuid.UUID  `json:"vendor_id"`
	PayoutAccountID    uuid.UUID  `json:"payout_account_id"`
	ReservationID      *uuid.UUID `json:"reservation_id,omitempty"`
	Amount             int64      `json:"amount"` // in cents
	Currency           string     `json:"currency"`
	Method             string     `json:"method"`
	Status             string     `json:"status"`
	CommissionFee      int64      `json:"commission_fee"`
	ProcessingFee      int64      `json:"processing_fee"`
	NetAmount          int64      `json:"net_amount"`
	ReferenceNumber    string     `json:"reference_number"`
	ProcessorReference *string    `json:"processor_reference,omitempty"`
	RetryCount         int        `json:"retry_count"`
	FailureReason      *string    `json:"failure_reason,omitempty"`
	RequestedAt        time.Time  `json:"requested_at"`
	ProcessedAt        *time.Time `json:"processed_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the payout has settled and may no longer change
// state. Terminal outcomes win over any late status replays.
func (p *Payout) IsTerminal() bool {
	switch p.Status {
	case PayoutStatusCompleted, PayoutStatusFailed, PayoutStatusCancelled:
		return true
	}
	return false
}

// NewReferenceNumber generates a payout reference in the externally visible
// `PO-{8 uppercase hex}` format. References are generated at creation and are
// immutable afterwards.
func NewReferenceNumber() string {
	return fmt.Sprintf("PO-%s", strings.ToUpper(uuid.New().String()[:8]))
}

// PayoutAccount is a vendor-owned disbursement destination. At most one account
// per vendor carries is_primary=true; assigning a new primary demotes the
// previous one atomically.
type PayoutAccount struct {
	ID                   uuid.UUID  `json:"id"`
	VendorID             uuid.UUID  `json:"vendor_id"`
	AccountType          string     `json:"account_type"`
	AccountName          string     `json:"account_name"`
	IsPrimary            bool       `json:"is_primary"`
	VerificationStatus   string     `json:"verification_status"`
	BankName             *string    `json:"bank_name,omitempty"`
	AccountNumber        *string    `json:"account_number,omitempty"`
	RoutingNumber        *string    `json:"routing_number,omitempty"`
	IBAN                 *string    `json:"iban,omitempty"`
	SwiftCode            *string    `json:"swift_code,omitempty"`
	Email                *string    `json:"email,omitempty"`
	WalletID             *string    `json:"wallet_id,omitempty"`
	StripeAccountID      *string    `json:"stripe_account_id,omitempty"`
	PayPalMerchantID     *string    `json:"paypal_merchant_id,omitempty"`
	VerifiedAt           *time.Time `json:"verified_at,omitempty"`
	VerificationAttempts int        `json:"verification_attempts"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// PayoutMethodForAccountType maps an account type to the payout method recorded
// on payouts dispatched through it.
func PayoutMethodForAccountType(accountType string) string {
	switch accountType {
	case AccountTypeBank:
		return PayoutMethodBankTransfer
	case AccountTypePayPal:
		return PayoutMethodPayPal
	case AccountTypeStripe:
		return PayoutMethodStripe
	default:
		return PayoutMethodManual
	}
}

// VendorBalance is the per-vendor balance record, mutated only by the ledger.
type VendorBalance struct {
	VendorID      uuid.UUID `json:"vendor_id"`
	Available     int64     `json:"available"` // in cents, never negative
	Pending       int64     `json:"pending"`
	OnHold        int64     `json:"on_hold"`
	HoldReason    *string   `json:"hold_reason,omitempty"`
	TotalEarnings int64     `json:"total_earnings"`
	TotalPayouts  int64     `json:"total_payouts"`
	Currency      string    `json:"currency"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TotalBalance is the spendable plus accrued-but-unsettled amount.
func (b *VendorBalance) TotalBalance() int64 {
	return b.Available + b.Pending
}

// BalanceReservation is a temporary hold against available balance, created by
// the ledger when a payout is requested and settled by exactly one of
// commit/release. A reservation left open past the stale threshold indicates a
// crash mid-transaction and is released by the safety-net sweep.
type BalanceReservation struct {
	ID        uuid.UUID  `json:"id"`
	VendorID  uuid.UUID  `json:"vendor_id"`
	Amount    int64      `json:"amount"`
	State     string     `json:"state"`
	PayoutID  *uuid.UUID `json:"payout_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

// PayoutSchedule is the per-vendor auto-payout cadence configuration.
type PayoutSchedule struct {
	VendorID        uuid.UUID  `json:"vendor_id"`
	ScheduleType    string     `json:"schedule_type"`
	IsActive        bool       `json:"is_active"`
	AutoProcess     bool       `json:"auto_process"`
	MinimumAmount   int64      `json:"minimum_amount"` // in cents
	NextPayoutDate  *time.Time `json:"next_payout_date,omitempty"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CadenceInterval returns the number of days the schedule advances after a
// sweep run, or 0 for manual schedules.
func CadenceInterval(scheduleType string) int {
	switch scheduleType {
	case ScheduleWeekly:
		return 7
	case ScheduleBiWeekly:
		return 14
	case ScheduleMonthly:
		return 30
	default:
		return 0
	}
}

// Vendor is the simplified view of a vendor returned by the vendor identity
// service. Only the fields the payout engine needs are carried.
type Vendor struct {
	ID             uuid.UUID `json:"id"`
	BusinessName   string    `json:"business_name"`
	Status         string    `json:"status"`
	CommissionRate float64   `json:"commission_rate"`
}

// CreatePayoutRequest is the DTO for incoming payout creation API requests.
type CreatePayoutRequest struct {
	PayoutAccountID uuid.UUID `json:"payout_account_id"`
	Amount          int64     `json:"amount"` // in cents
}

// CreatePayoutAccountRequest is the DTO for registering a disbursement
// destination.
type CreatePayoutAccountRequest struct {
	AccountType   string  `json:"account_type"`
	AccountName   string  `json:"account_name"`
	IsPrimary     bool    `json:"is_primary"`
	BankName      *string `json:"bank_name,omitempty"`
	AccountNumber *string `json:"account_number,omitempty"`
	RoutingNumber *string `json:"routing_number,omitempty"`
	IBAN          *string `json:"iban,omitempty"`
	SwiftCode     *string `json:"swift_code,omitempty"`
	Email         *string `json:"email,omitempty"`
	WalletID      *string `json:"wallet_id,omitempty"`
}

// UpdateScheduleRequest is the DTO for vendor schedule settings updates. Nil
// fields are left unchanged.
type UpdateScheduleRequest struct {
	ScheduleType  *string `json:"schedule_type,omitempty"`
	IsActive      *bool   `json:"is_active,omitempty"`
	AutoProcess   *bool   `json:"auto_process,omitempty"`
	MinimumAmount *int64  `json:"minimum_amount,omitempty"`
}

// PayoutSummary aggregates a vendor's payout history for the dashboard.
type PayoutSummary struct {
	TotalPayouts        int64      `json:"total_payouts"`
	PendingPayouts      int64      `json:"pending_payouts"`
	LastPayoutAmount    int64      `json:"last_payout_amount"`
	LastPayoutDate      *time.Time `json:"last_payout_date,omitempty"`
	NextScheduledPayout *time.Time `json:"next_scheduled_payout,omitempty"`
}

// PayoutListOptions controls pagination and filtering for payout history.
type PayoutListOptions struct {
	Limit  int
	Offset int
	Status string
}

// SweepResult summarizes one scheduled sweep run.
type SweepResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}
