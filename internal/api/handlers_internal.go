/**
 * @description
 * This file contains the service-to-service HTTP handlers, guarded by the
 * internal API key. The order service credits vendor earnings here after
 * delivery confirmation, and operators use the settlement endpoint to confirm
 * manual bank transfers that have no webhook feed.
 */

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// CreditEarningsRequest is the request body for crediting vendor earnings.
type CreditEarningsRequest struct {
	VendorID string `json:"vendor_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency,omitempty"`
}

// CreditEarnings handles POST /internal/earnings. Earnings land in the
// vendor's pending balance.
func (h *PayoutHandlers) CreditEarnings(w http.ResponseWriter, r *http.Request) {
	var req CreditEarningsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	vendorID, err := uuid.Parse(req.VendorID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid vendor ID")
		return
	}
	if req.Amount <= 0 {
		h.writeError(w, http.StatusBadRequest, "Amount must be positive")
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	if err := h.service.Ledger().CreditEarnings(r.Context(), vendorID, req.Amount, req.Currency); err != nil {
		h.handleServiceError(w, err, "credit earnings")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// BalanceAdjustmentRequest is the request body for pending settlement and
// hold endpoints.
type BalanceAdjustmentRequest struct {
	VendorID string `json:"vendor_id"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason,omitempty"`
}

func (h *PayoutHandlers) parseAdjustment(w http.ResponseWriter, r *http.Request) (uuid.UUID, *BalanceAdjustmentRequest, bool) {
	var req BalanceAdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return uuid.Nil, nil, false
	}
	vendorID, err := uuid.Parse(req.VendorID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid vendor ID")
		return uuid.Nil, nil, false
	}
	if req.Amount <= 0 {
		h.writeError(w, http.StatusBadRequest, "Amount must be positive")
		return uuid.Nil, nil, false
	}
	return vendorID, &req, true
}

// SettlePendingEarnings handles POST /internal/earnings/settle. It moves
// matured funds from pending to available once the return window closes.
func (h *PayoutHandlers) SettlePendingEarnings(w http.ResponseWriter, r *http.Request) {
	vendorID, req, ok := h.parseAdjustment(w, r)
	if !ok {
		return
	}
	if err := h.service.Ledger().SettlePending(r.Context(), vendorID, req.Amount); err != nil {
		h.handleServiceError(w, err, "settle pending earnings")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HoldBalance handles POST /internal/balance/hold. Compliance can freeze a
// portion of a vendor's available funds during a dispute.
func (h *PayoutHandlers) HoldBalance(w http.ResponseWriter, r *http.Request) {
	vendorID, req, ok := h.parseAdjustment(w, r)
	if !ok {
		return
	}
	if err := h.service.Ledger().Hold(r.Context(), vendorID, req.Amount, req.Reason); err != nil {
		h.handleServiceError(w, err, "hold balance")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReleaseHeldBalance handles POST /internal/balance/release-hold.
func (h *PayoutHandlers) ReleaseHeldBalance(w http.ResponseWriter, r *http.Request) {
	vendorID, req, ok := h.parseAdjustment(w, r)
	if !ok {
		return
	}
	if err := h.service.Ledger().ReleaseHold(r.Context(), vendorID, req.Amount); err != nil {
		h.handleServiceError(w, err, "release held balance")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SettlePayoutRequest is the request body for operator payout settlement.
type SettlePayoutRequest struct {
	Succeeded bool   `json:"succeeded"`
	Reason    string `json:"reason,omitempty"`
}

// SettlePayout handles POST /internal/payouts/{payoutID}/settle. Operators
// confirm the outcome of manual transfers here.
func (h *PayoutHandlers) SettlePayout(w http.ResponseWriter, r *http.Request) {
	payoutID, err := uuid.Parse(chi.URLParam(r, "payoutID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payout ID")
		return
	}

	var req SettlePayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !req.Succeeded && req.Reason == "" {
		h.writeError(w, http.StatusBadRequest, "Reason required for failed settlement")
		return
	}

	payout, err := h.service.SettlePayoutManually(r.Context(), payoutID, req.Succeeded, req.Reason)
	if err != nil {
		h.handleServiceError(w, err, "settle payout")
		return
	}

	h.writeJSON(w, http.StatusOK, payout)
}

// GetVendorBalance handles GET /internal/vendors/{vendorID}/balance for
// support tooling.
func (h *PayoutHandlers) GetVendorBalance(w http.ResponseWriter, r *http.Request) {
	vendorID, err := uuid.Parse(chi.URLParam(r, "vendorID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid vendor ID")
		return
	}

	balance, err := h.service.Ledger().Balance(r.Context(), vendorID)
	if err != nil {
		h.handleServiceError(w, err, "get vendor balance")
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}

// TriggerSweep handles POST /internal/sweep. It kicks off the scheduled
// payout sweep out of band, for operators who cannot wait for the next cron
// run. The sweep runs in the background; the response only acknowledges the
// trigger.
func (h *PayoutHandlers) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Sweep runner not configured")
		return
	}
	go h.sweeper.RunScheduledSweep()
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "sweep triggered"})
}
