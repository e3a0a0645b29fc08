/**
 * @description
 * Stripe adapter. Payouts to vendors with connected Stripe accounts are
 * dispatched as platform-to-connected-account transfers. The payout reference
 * number is passed as the Stripe idempotency key, so resubmitting after a
 * network failure cannot create a second transfer.
 *
 * @dependencies
 * - github.com/stripe/stripe-go/v82: The official Stripe SDK.
 */

package processor

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/account"
	"github.com/stripe/stripe-go/v82/transfer"
	"github.com/stripe/stripe-go/v82/transferreversal"

	"github.com/marketvend/payout-service/internal/domain"
)

// StripeAdapter implements Adapter on top of Stripe Connect transfers.
type StripeAdapter struct{}

// NewStripeAdapter configures the global stripe-go client with the platform
// secret key and returns the adapter.
func NewStripeAdapter(secretKey string) *StripeAdapter {
	stripe.Key = secretKey
	return &StripeAdapter{}
}

func (a *StripeAdapter) Name() string { return "stripe" }

// VerifyAccount checks that the connected account exists and has payouts
// enabled. The account's Stripe ID must already be linked (onboarding is
// handled by the vendor service).
func (a *StripeAdapter) VerifyAccount(ctx context.Context, acct *domain.PayoutAccount) (*VerifyResult, error) {
	if acct.StripeAccountID == nil || *acct.StripeAccountID == "" {
		return &VerifyResult{Verified: false, Detail: "no connected stripe account linked"}, nil
	}

	params := &stripe.AccountParams{}
	params.Context = ctx
	connected, err := account.GetByID(*acct.StripeAccountID, params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	if !connected.PayoutsEnabled {
		return &VerifyResult{Verified: false, Detail: "connected account cannot receive payouts"}, nil
	}
	return &VerifyResult{Verified: true, StripeAccountID: acct.StripeAccountID}, nil
}

// SubmitPayout creates a transfer to the vendor's connected account.
func (a *StripeAdapter) SubmitPayout(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	if req.Account.StripeAccountID == nil || *req.Account.StripeAccountID == "" {
		return nil, Permanent("account_not_linked", "payout account has no connected stripe account")
	}

	params := &stripe.TransferParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Destination:   stripe.String(*req.Account.StripeAccountID),
		TransferGroup: stripe.String(req.ReferenceNumber),
		Description:   stripe.String(req.Description),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.ReferenceNumber)

	t, err := transfer.New(params)
	if err != nil {
		return nil, classifyStripeError(err)
	}

	// Stripe transfers settle synchronously; the balance webhook confirms.
	return &SubmitResult{
		ProcessorReference: t.ID,
		Status:             StatusPending,
	}, nil
}

// QueryStatus fetches the transfer. A fully reversed transfer counts as
// cancelled; otherwise the funds have moved.
func (a *StripeAdapter) QueryStatus(ctx context.Context, processorReference string) (*SubmitResult, error) {
	params := &stripe.TransferParams{}
	params.Context = ctx
	t, err := transfer.Get(processorReference, params)
	if err != nil {
		return nil, classifyStripeError(err)
	}

	status := StatusSucceeded
	if t.Reversed {
		status = StatusCancelled
	}
	return &SubmitResult{ProcessorReference: t.ID, Status: status}, nil
}

// CancelPayout reverses the transfer, pulling the funds back from the
// connected account. Fails permanently once the connected account has paid
// the funds out.
func (a *StripeAdapter) CancelPayout(ctx context.Context, processorReference string) error {
	params := &stripe.TransferReversalParams{
		ID: stripe.String(processorReference),
	}
	params.Context = ctx
	if _, err := transferreversal.New(params); err != nil {
		return classifyStripeError(err)
	}
	return nil
}

// classifyStripeError maps stripe-go errors onto the transient/permanent
// taxonomy. Rate limits and Stripe-side failures are retryable; request
// validation and card/account problems are not.
func classifyStripeError(err error) error {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return Transient("network", "stripe request failed: %v", err)
	}
	switch serr.Type {
	case stripe.ErrorTypeAPI:
		return Transient(string(serr.Code), "stripe api error: %s", serr.Msg)
	case stripe.ErrorTypeInvalidRequest, stripe.ErrorTypeCard:
		return Permanent(string(serr.Code), "stripe rejected request: %s", serr.Msg)
	}
	if serr.HTTPStatusCode == 429 || serr.HTTPStatusCode >= 500 {
		return Transient(string(serr.Code), "stripe unavailable (status %d): %s", serr.HTTPStatusCode, serr.Msg)
	}
	return Permanent(string(serr.Code), "stripe error: %s", serr.Msg)
}
