/**
 * @description
 * This file contains the HTTP handlers for payout account management:
 * registering disbursement destinations, listing them, promoting a primary
 * account, triggering re-verification, and removal.
 */

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marketvend/payout-service/internal/domain"
)

// CreatePayoutAccount handles POST /api/v1/accounts.
func (h *PayoutHandlers) CreatePayoutAccount(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := GetVendorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Vendor not authenticated")
		return
	}

	var req domain.CreatePayoutAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.service.CreatePayoutAccount(r.Context(), vendorID, req)
	if err != nil {
		h.handleServiceError(w, err, "create payout account")
		return
	}

	h.writeJSON(w, http.StatusCreated, account)
}

// ListPayoutAccounts handles GET /api/v1/accounts.
func (h *PayoutHandlers) ListPayoutAccounts(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := GetVendorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Vendor not authenticated")
		return
	}

	accounts, err := h.service.ListPayoutAccounts(r.Context(), vendorID)
	if err != nil {
		h.handleServiceError(w, err, "list payout accounts")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// GetPayoutAccount handles GET /api/v1/accounts/{accountID}.
func (h *PayoutHandlers) GetPayoutAccount(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := GetVendorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Vendor not authenticated")
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	account, err := h.service.GetPayoutAccount(r.Context(), vendorID, accountID)
	if err != nil {
		h.handleServiceError(w, err, "get payout account")
		return
	}

	h.writeJSON(w, http.StatusOK, account)
}

// SetPrimaryPayoutAccount handles PUT /api/v1/accounts/{accountID}/primary.
func (h *PayoutHandlers) SetPrimaryPayoutAccount(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := GetVendorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Vendor not authenticated")
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	if err := h.service.SetPrimaryPayoutAccount(r.Context(), vendorID, accountID); err != nil {
		h.handleServiceError(w, err, "set primary payout account")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VerifyPayoutAccount handles POST /api/v1/accounts/{accountID}/verify.
// Verification runs synchronously against the processor.
func (h *PayoutHandlers) VerifyPayoutAccount(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := GetVendorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Vendor not authenticated")
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	if err := h.service.VerifyPayoutAccount(r.Context(), vendorID, accountID); err != nil {
		h.handleServiceError(w, err, "verify payout account")
		return
	}

	account, err := h.service.GetPayoutAccount(r.Context(), vendorID, accountID)
	if err != nil {
		h.handleServiceError(w, err, "verify payout account")
		return
	}

	h.writeJSON(w, http.StatusOK, account)
}

// DeletePayoutAccount handles DELETE /api/v1/accounts/{accountID}.
func (h *PayoutHandlers) DeletePayoutAccount(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := GetVendorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Vendor not authenticated")
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	if err := h.service.DeletePayoutAccount(r.Context(), vendorID, accountID); err != nil {
		h.handleServiceError(w, err, "delete payout account")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
