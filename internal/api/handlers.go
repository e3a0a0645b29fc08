/**
 * @description
 * This file contains the HTTP handlers for the payout endpoints. Handlers
 * resolve the authenticated vendor from the request context, delegate to the
 * application service, and translate service-level errors into HTTP status
 * codes.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - github.com/google/uuid: Identifier parsing.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marketvend/payout-service/internal/app"
	"github.com/marketvend/payout-service/internal/domain"
	"github.com/marketvend/payout-service/internal/processor"
	"github.com/marketvend/payout-service/internal/store"
	"github.com/marketvend/payout-service/pkg/vendorclient"
)

const (
	payoutRequestLimit  = 10
	payoutRequestWindow = time.Minute
)

// PayoutHandlers holds the dependencies for the payout HTTP handlers.
// SweepRunner runs the scheduled payout sweep on demand.
type SweepRunner interface {
	RunScheduledSweep()
}

type PayoutHandlers struct {
	service *app.Service
	limiter app.RateLimiter
	sweeper SweepRunner
}

// NewPayoutHandlers creates a new PayoutHandlers instance.
func NewPayoutHandlers(service *app.Service, limiter app.RateLimiter, sweeper SweepRunner) *PayoutHandlers {
	return &PayoutHandlers{
		service: service,
		limiter: limiter,
		sweeper: sweeper,
	}
}

// CreatePayoutRequest is the request body for creating a payout.
type CreatePayoutRequest struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
}

// CreatePayout handles POST /api/v1/payouts.
func (h *PayoutHandlers) CreatePayout(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := GetVendorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Vendor not authenticated")
		return
	}

	if h.limiter != nil {
		_, retryAfter, err := h.limiter.ConsumeRateLimit(r.Context(), "payout_request", vendorID.String(), payoutRequestLimit, payoutRequestWindow)
		if err == nil && retryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			h.writeError(w, http.StatusTooManyRequests, "Too many payout requests")
			return
		}
		if err != nil {
			log.Printf("level=warn component=api msg=\"rate limiter unavailable, allowing request\" error=%v", err)
		}
	}

	var req CreatePayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	payout, err := h.service.CreatePayout(r.Context(), vendorID, domain.CreatePayoutRequest{
		PayoutAccountID: accountID,
		Amount:          req.Amount,
	})
	if err != nil {
		h.handleServiceError(w, err, "create payout")
		return
	}

	// Dispatch in-line. A submit failure does not fail the request: the
	// payout record already exists, and the state machine decides whether
	// it stays pending for redispatch or lands failed.
	if submitted, err := h.service.SubmitPayout(r.Context(), payout.ID); err != nil {
		log.Printf("level=warn component=api msg=\"payout created but dispatch failed\" payout_id=%s error=%v", payout.ID, err)
	} else {
		payout = submitted
	}

	h.writeJSON(w, http.StatusCreated, payout)
}

// ListPayouts handles GET /api/v1/payouts.
func (h *PayoutHandlers) ListPayouts(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := GetVendorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Vendor not authenticated")
		return
	}

	opts := domain.PayoutListOptions{Limit: 50}
	if status := r.URL.Query().Get("status"); status != "" {
		if !domain.IsValidPayoutStatus(status) {
			h.writeError(w, http.StatusBadRequest, "Invalid status filter")
			return
		}
		opts.Status = status
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > 200 {
			h.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		opts.Limit = limit
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			h.writeError(w, http.StatusBadRequest, "Invalid offset")
			return
		}
		opts.Offset = offset
	}

	payouts, err := h.service.ListPayouts(r.Context(), vendorID, opts)
	if err != nil {
		h.handleServiceError(w, err, "list payouts")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"payouts": payouts,
		"count":   len(payouts),
	})
}

// GetPayout handles GET /api/v1/payouts/{payoutID}.
func (h *PayoutHandlers) GetPayout(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := GetVendorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Vendor not authenticated")
		return
	}

	payoutID, err := uuid.Parse(chi.URLParam(r, "payoutID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payout ID")
		return
	}

	payout, err := h.service.GetPayout(r.Context(), vendorID, payoutID)
	if err != nil {
		h.handleServiceError(w, err, "get payout")
		return
	}

	h.writeJSON(w, http.StatusOK, payout)
}

// CancelPayout handles POST /api/v1/payouts/{payoutID}/cancel.
func (h *PayoutHandlers) CancelPayout(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := GetVendorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Vendor not authenticated")
		return
	}

	payoutID, err := uuid.Parse(chi.URLParam(r, "payoutID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payout ID")
		return
	}

	payout, err := h.service.CancelPayout(r.Context(), vendorID, payoutID)
	if err != nil {
		h.handleServiceError(w, err, "cancel payout")
		return
	}

	h.writeJSON(w, http.StatusOK, payout)
}

// RetryPayout handles POST /api/v1/payouts/{payoutID}/retry.
func (h *PayoutHandlers) RetryPayout(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := GetVendorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Vendor not authenticated")
		return
	}

	payoutID, err := uuid.Parse(chi.URLParam(r, "payoutID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payout ID")
		return
	}

	payout, err := h.service.RetryPayout(r.Context(), vendorID, payoutID)
	if err != nil {
		h.handleServiceError(w, err, "retry payout")
		return
	}

	h.writeJSON(w, http.StatusOK, payout)
}

// GetBalance handles GET /api/v1/balance.
func (h *PayoutHandlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := GetVendorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Vendor not authenticated")
		return
	}

	balance, err := h.service.GetBalance(r.Context(), vendorID)
	if err != nil {
		h.handleServiceError(w, err, "get balance")
		return
	}

	h.writeJSON(w, http.StatusOK, balance)
}

// GetSummary handles GET /api/v1/summary.
func (h *PayoutHandlers) GetSummary(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := GetVendorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Vendor not authenticated")
		return
	}

	summary, err := h.service.PayoutSummary(r.Context(), vendorID)
	if err != nil {
		h.handleServiceError(w, err, "get payout summary")
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// GetSchedule handles GET /api/v1/schedule.
func (h *PayoutHandlers) GetSchedule(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := GetVendorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Vendor not authenticated")
		return
	}

	schedule, err := h.service.GetSchedule(r.Context(), vendorID)
	if err != nil {
		h.handleServiceError(w, err, "get schedule")
		return
	}

	h.writeJSON(w, http.StatusOK, schedule)
}

// UpdateSchedule handles PUT /api/v1/schedule.
func (h *PayoutHandlers) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := GetVendorID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Vendor not authenticated")
		return
	}

	var req domain.UpdateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	schedule, err := h.service.UpdateSchedule(r.Context(), vendorID, req)
	if err != nil {
		h.handleServiceError(w, err, "update schedule")
		return
	}

	h.writeJSON(w, http.StatusOK, schedule)
}

// handleServiceError maps application and storage errors to HTTP responses.
func (h *PayoutHandlers) handleServiceError(w http.ResponseWriter, err error, operation string) {
	switch {
	case errors.Is(err, store.ErrPayoutNotFound),
		errors.Is(err, store.ErrPayoutAccountNotFound),
		errors.Is(err, store.ErrScheduleNotFound),
		errors.Is(err, app.ErrNotOwned):
		h.writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, store.ErrInsufficientBalance):
		h.writeError(w, http.StatusUnprocessableEntity, "Insufficient available balance")
	case errors.Is(err, app.ErrAmountBelowMinimum),
		errors.Is(err, app.ErrNetAmountNotPositive),
		errors.Is(err, app.ErrInvalidSchedule),
		errors.Is(err, app.ErrInvalidAccountDetails):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrVendorNotPayable),
		errors.Is(err, app.ErrAccountNotVerified):
		h.writeError(w, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, app.ErrPayoutNotCancellable),
		errors.Is(err, app.ErrPayoutNotRetryable),
		errors.Is(err, app.ErrRetriesExhausted),
		errors.Is(err, app.ErrPayoutNotSettleable),
		errors.Is(err, app.ErrCannotDeleteAccount):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, vendorclient.ErrVendorNotFound):
		h.writeError(w, http.StatusPreconditionFailed, "Vendor profile not found")
	case processor.IsProcessorError(err) && processor.IsTransient(err):
		log.Printf("level=warn component=api msg=\"transient processor error\" operation=%s error=%v", operation, err)
		h.writeError(w, http.StatusBadGateway, "Payment processor temporarily unavailable")
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" operation=%s error=%v", operation, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON writes a JSON response with the given status code.
func (h *PayoutHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" error=%v", err)
	}
}

// writeError writes an error response in JSON format.
func (h *PayoutHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
