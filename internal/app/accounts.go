/**
 * @description
 * Payout account registry logic: registration, verification through the
 * processor adapters, primary selection and removal. Accounts start in
 * pending verification; a payout can only target a verified account.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/marketvend/payout-service/internal/domain"
)

var (
	ErrInvalidAccountDetails = errors.New("payout account details are incomplete")
	ErrCannotDeleteAccount   = errors.New("account has payouts in flight or is the active primary")
)

// CreatePayoutAccount registers a new disbursement destination and runs
// verification against the processor. Verification failure does not fail
// registration; the account stays unverified until a later attempt succeeds.
func (s *Service) CreatePayoutAccount(ctx context.Context, vendorID uuid.UUID, req domain.CreatePayoutAccountRequest) (*domain.PayoutAccount, error) {
	account := &domain.PayoutAccount{
		ID:                 uuid.New(),
		VendorID:           vendorID,
		AccountType:        req.AccountType,
		AccountName:        req.AccountName,
		IsPrimary:          req.IsPrimary,
		VerificationStatus: domain.VerificationPending,
		BankName:           req.BankName,
		AccountNumber:      req.AccountNumber,
		RoutingNumber:      req.RoutingNumber,
		IBAN:               req.IBAN,
		SwiftCode:          req.SwiftCode,
		Email:              req.Email,
		WalletID:           req.WalletID,
	}
	if err := validateAccountDetails(account); err != nil {
		return nil, err
	}

	if err := s.repo.CreatePayoutAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create payout account: %w", err)
	}
	log.Printf("level=info component=payout_service op=create_account account_id=%s vendor_id=%s type=%s primary=%v", account.ID, vendorID, account.AccountType, account.IsPrimary)

	if err := s.VerifyPayoutAccount(ctx, vendorID, account.ID); err != nil {
		log.Printf("level=warn component=payout_service op=create_account account_id=%s msg=\"initial verification attempt failed\" err=%v", account.ID, err)
	}
	return s.repo.FindPayoutAccountByID(ctx, account.ID, vendorID)
}

// validateAccountDetails checks per-type required fields before anything is
// persisted.
func validateAccountDetails(account *domain.PayoutAccount) error {
	switch account.AccountType {
	case domain.AccountTypeBank:
		hasDomestic := account.AccountNumber != nil && *account.AccountNumber != "" &&
			account.RoutingNumber != nil && *account.RoutingNumber != ""
		hasIBAN := account.IBAN != nil && *account.IBAN != ""
		if !hasDomestic && !hasIBAN {
			return ErrInvalidAccountDetails
		}
	case domain.AccountTypePayPal:
		if account.Email == nil || *account.Email == "" {
			return ErrInvalidAccountDetails
		}
	case domain.AccountTypeStripe, domain.AccountTypeManual:
		// Stripe linkage is established during verification; manual accounts
		// carry whatever the operator needs.
	default:
		return fmt.Errorf("unknown account type %q", account.AccountType)
	}
	if account.AccountName == "" {
		return ErrInvalidAccountDetails
	}
	return nil
}

// VerifyPayoutAccount runs the processor's verification for the account and
// records the outcome.
func (s *Service) VerifyPayoutAccount(ctx context.Context, vendorID, accountID uuid.UUID) error {
	account, err := s.repo.FindPayoutAccountByID(ctx, accountID, vendorID)
	if err != nil {
		return err
	}
	adapter, err := s.processors.ForAccountType(account.AccountType)
	if err != nil {
		return err
	}

	result, err := adapter.VerifyAccount(ctx, account)
	if err != nil {
		return fmt.Errorf("verification check failed: %w", err)
	}
	if !result.Verified {
		if markErr := s.repo.MarkAccountVerificationFailed(ctx, accountID); markErr != nil {
			return markErr
		}
		log.Printf("level=warn component=payout_service op=verify_account account_id=%s detail=%q", accountID, result.Detail)
		return nil
	}
	if err := s.repo.MarkAccountVerified(ctx, accountID, result.StripeAccountID, result.PayPalMerchantID); err != nil {
		return err
	}
	log.Printf("level=info component=payout_service op=verify_account account_id=%s status=verified", accountID)
	return nil
}

// ListPayoutAccounts returns the vendor's registered accounts, primary first.
func (s *Service) ListPayoutAccounts(ctx context.Context, vendorID uuid.UUID) ([]domain.PayoutAccount, error) {
	return s.repo.FindPayoutAccountsByVendorID(ctx, vendorID)
}

// GetPayoutAccount fetches one account scoped to the vendor.
func (s *Service) GetPayoutAccount(ctx context.Context, vendorID, accountID uuid.UUID) (*domain.PayoutAccount, error) {
	return s.repo.FindPayoutAccountByID(ctx, accountID, vendorID)
}

// SetPrimaryPayoutAccount promotes the account to primary, demoting any
// previous primary.
func (s *Service) SetPrimaryPayoutAccount(ctx context.Context, vendorID, accountID uuid.UUID) error {
	if err := s.repo.SetPrimaryPayoutAccount(ctx, vendorID, accountID); err != nil {
		return err
	}
	log.Printf("level=info component=payout_service op=set_primary account_id=%s vendor_id=%s", accountID, vendorID)
	return nil
}

// DeletePayoutAccount removes an account. The primary can only be removed
// when it is the vendor's last account; otherwise another must be promoted
// first. Accounts with payouts in flight are refused at the store layer.
func (s *Service) DeletePayoutAccount(ctx context.Context, vendorID, accountID uuid.UUID) error {
	account, err := s.repo.FindPayoutAccountByID(ctx, accountID, vendorID)
	if err != nil {
		return err
	}
	if account.IsPrimary {
		accounts, err := s.repo.FindPayoutAccountsByVendorID(ctx, vendorID)
		if err != nil {
			return err
		}
		if len(accounts) > 1 {
			return ErrCannotDeleteAccount
		}
	}

	deleted, err := s.repo.DeletePayoutAccount(ctx, accountID, vendorID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrCannotDeleteAccount
	}
	log.Printf("level=info component=payout_service op=delete_account account_id=%s vendor_id=%s", accountID, vendorID)
	return nil
}
