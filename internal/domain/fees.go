/**
 * @description
 * Fee computation for payouts. Fees are always derived here from the vendor's
 * commission rate and the per-method processing fee table; values supplied by
 * callers for commission, processing or net amount are ignored and recomputed
 * on every persist.
 */

package domain

import "math"

// ProcessingFeeRule describes the processor cost for one payout method: a
// fixed component plus a percentage of the gross amount.
type ProcessingFeeRule struct {
	FixedCents int64
	Percent    float64
}

// FeePolicy computes commission and processing fees for a payout. The zero
// value charges nothing; use DefaultFeePolicy for the platform fee table.
type FeePolicy struct {
	ProcessingFees map[string]ProcessingFeeRule
}

// DefaultFeePolicy returns the platform fee table. Bank and Stripe payouts
// ride the same rail and share a rule; PayPal charges a flat domestic item
// fee; manual payouts carry no processing cost.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		ProcessingFees: map[string]ProcessingFeeRule{
			PayoutMethodBankTransfer: {FixedCents: 25, Percent: 0.25},
			PayoutMethodStripe:       {FixedCents: 25, Percent: 0.25},
			PayoutMethodPayPal:       {FixedCents: 25, Percent: 0},
			PayoutMethodManual:       {},
		},
	}
}

// CommissionFee computes the platform commission for a gross amount at the
// vendor's commission rate (a percentage, e.g. 10.0). Rounds half away from
// zero to the nearest cent.
func (f FeePolicy) CommissionFee(amount int64, commissionRate float64) int64 {
	if commissionRate <= 0 || amount <= 0 {
		return 0
	}
	return int64(math.Round(float64(amount) * commissionRate / 100))
}

// ProcessingFee computes the processor cost for a gross amount dispatched via
// the given payout method.
func (f FeePolicy) ProcessingFee(amount int64, method string) int64 {
	rule, ok := f.ProcessingFees[method]
	if !ok || amount <= 0 {
		return 0
	}
	fee := rule.FixedCents
	if rule.Percent > 0 {
		fee += int64(math.Round(float64(amount) * rule.Percent / 100))
	}
	return fee
}

// Apply recomputes all fee fields on the payout in place. Called on every
// persist so the stored net amount is always amount - commission - processing
// regardless of what any caller supplied.
func (f FeePolicy) Apply(p *Payout, commissionRate float64) {
	p.CommissionFee = f.CommissionFee(p.Amount, commissionRate)
	p.ProcessingFee = f.ProcessingFee(p.Amount, p.Method)
	p.NetAmount = p.Amount - p.CommissionFee - p.ProcessingFee
}
