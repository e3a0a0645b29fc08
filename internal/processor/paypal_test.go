package processor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marketvend/payout-service/internal/domain"
)

func newPayPalTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *PayPalAdapter) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "client-id" || pass != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/", handler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, NewPayPalAdapter(server.URL, "client-id", "client-secret")
}

func strPtr(s string) *string { return &s }

func TestPayPalSubmitPayout(t *testing.T) {
	var gotBatchID, gotReceiver, gotValue string
	server, adapter := newPayPalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/payouts" || r.Method != "POST" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Errorf("missing bearer token, got %q", auth)
		}
		var req payPalPayoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotBatchID = req.SenderBatchHeader.SenderBatchID
		gotReceiver = req.Items[0].Receiver
		gotValue = req.Items[0].Amount.Value

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"batch_header": map[string]interface{}{
				"payout_batch_id": "BATCH123",
				"batch_status":    "PENDING",
			},
		})
	})
	_ = server

	result, err := adapter.SubmitPayout(context.Background(), &SubmitRequest{
		ReferenceNumber: "PO-DEADBEEF",
		Account:         &domain.PayoutAccount{Email: strPtr("vendor@example.com")},
		Amount:          12345,
		Currency:        "usd",
	})
	if err != nil {
		t.Fatalf("SubmitPayout: %v", err)
	}
	if result.ProcessorReference != "BATCH123" {
		t.Errorf("processor reference = %q, want BATCH123", result.ProcessorReference)
	}
	if result.Status != StatusPending {
		t.Errorf("status = %q, want %q", result.Status, StatusPending)
	}
	if gotBatchID != "PO-DEADBEEF" {
		t.Errorf("sender_batch_id = %q, want the payout reference", gotBatchID)
	}
	if gotReceiver != "vendor@example.com" {
		t.Errorf("receiver = %q", gotReceiver)
	}
	if gotValue != "123.45" {
		t.Errorf("amount value = %q, want 123.45", gotValue)
	}
}

func TestPayPalSubmitRejectsAmountOutOfRange(t *testing.T) {
	_, adapter := newPayPalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach paypal for an out-of-range amount")
	})

	for _, amount := range []int64{0, 1_000_001} {
		_, err := adapter.SubmitPayout(context.Background(), &SubmitRequest{
			ReferenceNumber: "PO-00000001",
			Account:         &domain.PayoutAccount{Email: strPtr("vendor@example.com")},
			Amount:          amount,
			Currency:        "usd",
		})
		var perr *Error
		if !errors.As(err, &perr) || perr.Kind != KindPermanent {
			t.Errorf("amount %d: expected permanent error, got %v", amount, err)
		}
	}
}

func TestPayPalServerErrorIsTransient(t *testing.T) {
	_, adapter := newPayPalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"name": "SERVICE_UNAVAILABLE", "message": "try later"})
	})

	_, err := adapter.SubmitPayout(context.Background(), &SubmitRequest{
		ReferenceNumber: "PO-00000002",
		Account:         &domain.PayoutAccount{Email: strPtr("vendor@example.com")},
		Amount:          500,
		Currency:        "usd",
	})
	if !IsTransient(err) {
		t.Fatalf("expected transient error on 503, got %v", err)
	}
}

func TestPayPalValidationErrorIsPermanent(t *testing.T) {
	_, adapter := newPayPalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"name":    "VALIDATION_ERROR",
			"message": "receiver is invalid",
		})
	})

	_, err := adapter.SubmitPayout(context.Background(), &SubmitRequest{
		ReferenceNumber: "PO-00000003",
		Account:         &domain.PayoutAccount{Email: strPtr("not-a-receiver@example.com")},
		Amount:          500,
		Currency:        "usd",
	})
	if IsTransient(err) {
		t.Fatalf("expected permanent error on 400, got %v", err)
	}
}

func TestPayPalQueryStatusMapsItemStatus(t *testing.T) {
	cases := map[string]string{
		"SUCCESS":   StatusSucceeded,
		"DENIED":    StatusFailed,
		"CANCELED":  StatusCancelled,
		"UNCLAIMED": StatusPending,
	}
	for paypalStatus, want := range cases {
		status := paypalStatus
		_, adapter := newPayPalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"batch_header": map[string]interface{}{
					"payout_batch_id": "BATCH123",
					"batch_status":    "SUCCESS",
				},
				"items": []map[string]interface{}{
					{"payout_item_id": "ITEM1", "transaction_status": status},
				},
			})
		})

		result, err := adapter.QueryStatus(context.Background(), "BATCH123")
		if err != nil {
			t.Fatalf("QueryStatus(%s): %v", paypalStatus, err)
		}
		if result.Status != want {
			t.Errorf("status %s mapped to %q, want %q", paypalStatus, result.Status, want)
		}
	}
}

func TestPayPalCancelRefusesClaimedItems(t *testing.T) {
	_, adapter := newPayPalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"batch_header": map[string]interface{}{"payout_batch_id": "BATCH123", "batch_status": "SUCCESS"},
			"items": []map[string]interface{}{
				{"payout_item_id": "ITEM1", "transaction_status": "SUCCESS"},
			},
		})
	})

	err := adapter.CancelPayout(context.Background(), "BATCH123")
	if !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation for a claimed item, got %v", err)
	}
}

func TestPayPalVerifyAccountRequiresEmail(t *testing.T) {
	_, adapter := newPayPalTestServer(t, func(w http.ResponseWriter, r *http.Request) {})

	result, err := adapter.VerifyAccount(context.Background(), &domain.PayoutAccount{})
	if err != nil {
		t.Fatalf("VerifyAccount: %v", err)
	}
	if result.Verified {
		t.Error("account without email should not verify")
	}

	result, err = adapter.VerifyAccount(context.Background(), &domain.PayoutAccount{Email: strPtr("vendor@example.com")})
	if err != nil {
		t.Fatalf("VerifyAccount: %v", err)
	}
	if !result.Verified {
		t.Error("account with email should verify")
	}
}

func TestPayPalVerifyWebhookSignature(t *testing.T) {
	var gotWebhookID, gotTransmissionID string
	_, adapter := newPayPalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/notifications/verify-webhook-signature" || r.Method != "POST" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotWebhookID, _ = req["webhook_id"].(string)
		gotTransmissionID, _ = req["transmission_id"].(string)

		json.NewEncoder(w).Encode(map[string]string{"verification_status": "SUCCESS"})
	})

	headers := http.Header{}
	headers.Set("Paypal-Transmission-Id", "tx-123")
	headers.Set("Paypal-Transmission-Sig", "sig")
	headers.Set("Paypal-Transmission-Time", "2026-01-01T00:00:00Z")

	verified, err := adapter.VerifyWebhookSignature(context.Background(), "WH-1", headers, []byte(`{"id":"evt"}`))
	if err != nil {
		t.Fatalf("VerifyWebhookSignature: %v", err)
	}
	if !verified {
		t.Error("expected SUCCESS verification to report verified")
	}
	if gotWebhookID != "WH-1" || gotTransmissionID != "tx-123" {
		t.Errorf("verify payload mismatch: webhook_id=%q transmission_id=%q", gotWebhookID, gotTransmissionID)
	}
}

func TestPayPalVerifyWebhookSignatureFailure(t *testing.T) {
	_, adapter := newPayPalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"verification_status": "FAILURE"})
	})

	verified, err := adapter.VerifyWebhookSignature(context.Background(), "WH-1", http.Header{}, []byte(`{}`))
	if err != nil {
		t.Fatalf("VerifyWebhookSignature: %v", err)
	}
	if verified {
		t.Error("expected FAILURE verification to report unverified")
	}
}
