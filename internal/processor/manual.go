/**
 * @description
 * Manual adapter for bank accounts settled by the finance team outside any
 * API. Submissions are accepted immediately and stay pending until an
 * operator confirms the wire through the internal status endpoint.
 */

package processor

import (
	"context"
	"fmt"

	"github.com/marketvend/payout-service/internal/domain"
)

// ManualAdapter implements Adapter for operator-settled disbursements.
type ManualAdapter struct{}

// NewManualAdapter creates the manual adapter.
func NewManualAdapter() *ManualAdapter {
	return &ManualAdapter{}
}

func (a *ManualAdapter) Name() string { return "manual" }

// VerifyAccount checks that enough banking detail is present for an operator
// to execute the wire: either a domestic account/routing pair or an IBAN.
func (a *ManualAdapter) VerifyAccount(ctx context.Context, account *domain.PayoutAccount) (*VerifyResult, error) {
	hasDomestic := account.AccountNumber != nil && *account.AccountNumber != "" &&
		account.RoutingNumber != nil && *account.RoutingNumber != ""
	hasIBAN := account.IBAN != nil && *account.IBAN != ""
	if !hasDomestic && !hasIBAN {
		return &VerifyResult{Verified: false, Detail: "bank account requires account/routing numbers or an IBAN"}, nil
	}
	return &VerifyResult{Verified: true}, nil
}

// SubmitPayout queues the payout for operator settlement. The reference
// number doubles as the processor reference since there is no external
// system.
func (a *ManualAdapter) SubmitPayout(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	return &SubmitResult{
		ProcessorReference: fmt.Sprintf("manual-%s", req.ReferenceNumber),
		Status:             StatusPending,
	}, nil
}

// QueryStatus always reports pending: only an operator confirmation through
// the internal endpoint can settle a manual payout.
func (a *ManualAdapter) QueryStatus(ctx context.Context, processorReference string) (*SubmitResult, error) {
	return &SubmitResult{ProcessorReference: processorReference, Status: StatusPending}, nil
}

// CancelPayout always succeeds; the queued wire is simply not executed.
func (a *ManualAdapter) CancelPayout(ctx context.Context, processorReference string) error {
	return nil
}
