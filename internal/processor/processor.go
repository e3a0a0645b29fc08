/**
 * @description
 * This package defines the uniform adapter contract the payout engine uses to
 * talk to external money-movement processors (Stripe, PayPal, manual). The
 * engine never imports a processor SDK directly; it selects an adapter from
 * the registry by the payout account's type and drives the lifecycle through
 * this interface.
 *
 * Adapter errors carry a transient/permanent classification that the caller
 * uses for retry decisions. Only transient failures are retried.
 */

package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/marketvend/payout-service/internal/domain"
)

// Error kinds. Transient errors (timeouts, rate limits, processor 5xx) may be
// retried; permanent errors (invalid account, amount out of range, compliance
// rejection) must not be.
const (
	KindTransient = "transient"
	KindPermanent = "permanent"
)

// Normalized submission statuses reported by adapters.
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// ErrUnsupportedOperation is returned by adapters for operations their
// processor does not offer (e.g. cancelling an already-dispatched transfer).
var ErrUnsupportedOperation = errors.New("operation not supported by processor")

// Error is a classified processor failure.
type Error struct {
	Kind    string
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("processor error (%s): %s", e.Kind, e.Message)
}

// IsTransient reports whether err is a processor error safe to retry. Errors
// without a classification (network-level failures wrapped by adapters) are
// treated as transient.
func IsTransient(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind == KindTransient
	}
	return !errors.Is(err, ErrUnsupportedOperation)
}

// IsProcessorError reports whether err carries a processor classification.
// IsTransient's lenient default (unclassified errors are retryable) is for
// the adapter retry loop; callers mapping errors to responses should check
// this first so unrelated failures are not mistaken for processor ones.
func IsProcessorError(err error) bool {
	var perr *Error
	return errors.As(err, &perr)
}

// Transient builds a retryable processor error.
func Transient(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindTransient, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Permanent builds a non-retryable processor error.
func Permanent(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindPermanent, Code: code, Message: fmt.Sprintf(format, args...)}
}

// SubmitRequest carries everything an adapter needs to dispatch funds.
type SubmitRequest struct {
	ReferenceNumber string // our idempotency key for the processor
	Account         *domain.PayoutAccount
	Amount          int64 // net amount in cents
	Currency        string
	Description     string
}

// SubmitResult is the adapter's report of an accepted submission. Status is
// one of the normalized statuses above; ProcessorReference is the identifier
// later webhooks and status queries are correlated on.
type SubmitResult struct {
	ProcessorReference string
	Status             string
	Detail             string
}

// VerifyResult reports an account verification outcome along with any
// processor-side identifiers discovered during verification.
type VerifyResult struct {
	Verified         bool
	StripeAccountID  *string
	PayPalMerchantID *string
	Detail           string
}

// Adapter is the uniform interface a payout processor integration implements.
type Adapter interface {
	// Name returns the processor identifier used in logs and webhook routing.
	Name() string

	// VerifyAccount checks that the destination can receive funds.
	VerifyAccount(ctx context.Context, account *domain.PayoutAccount) (*VerifyResult, error)

	// SubmitPayout dispatches funds. Implementations must pass the reference
	// number as an idempotency key so a resubmission after a network failure
	// cannot double-pay.
	SubmitPayout(ctx context.Context, req *SubmitRequest) (*SubmitResult, error)

	// QueryStatus fetches the current state of a previously submitted payout.
	QueryStatus(ctx context.Context, processorReference string) (*SubmitResult, error)

	// CancelPayout attempts to stop an in-flight payout. Adapters return
	// ErrUnsupportedOperation when the processor cannot recall funds.
	CancelPayout(ctx context.Context, processorReference string) error
}

// Registry maps payout account types to their adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds an adapter to an account type, replacing any previous
// binding.
func (r *Registry) Register(accountType string, adapter Adapter) {
	r.adapters[accountType] = adapter
}

// ForAccountType returns the adapter handling the given account type.
func (r *Registry) ForAccountType(accountType string) (Adapter, error) {
	adapter, ok := r.adapters[accountType]
	if !ok {
		return nil, fmt.Errorf("no processor adapter registered for account type %q", accountType)
	}
	return adapter, nil
}

// ForProcessor returns the adapter with the given name, used when correlating
// webhook events back to the adapter that submitted the payout.
func (r *Registry) ForProcessor(name string) (Adapter, error) {
	for _, adapter := range r.adapters {
		if adapter.Name() == name {
			return adapter, nil
		}
	}
	return nil, fmt.Errorf("no processor adapter named %q", name)
}
