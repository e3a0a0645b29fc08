/**
 * @description
 * PayPal adapter. Payouts are dispatched through the PayPal Payouts API as
 * single-item batches addressed to the vendor's PayPal email. OAuth access
 * tokens are cached until shortly before expiry and refreshed on demand.
 *
 * PayPal enforces per-item limits of $0.01 to $10,000; amounts outside that
 * window are rejected locally as permanent errors so they never consume a
 * retry attempt.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, sync, time: Standard Go libraries.
 */

package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/marketvend/payout-service/internal/domain"
)

// PayPal per-item amount limits, in cents.
const (
	payPalMinAmount = 1
	payPalMaxAmount = 1_000_000
)

// PayPalAdapter implements Adapter on top of the PayPal Payouts API.
type PayPalAdapter struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalAdapter creates a PayPal adapter against the given API base URL
// (live or sandbox).
func NewPayPalAdapter(baseURL, clientID, clientSecret string) *PayPalAdapter {
	return &PayPalAdapter{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (a *PayPalAdapter) Name() string { return "paypal" }

type payPalTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type payPalErrorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (e *payPalErrorResponse) detail() string {
	if len(e.Details) > 0 {
		return e.Details[0].Issue
	}
	return e.Message
}

type payPalAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type payPalPayoutItem struct {
	RecipientType string       `json:"recipient_type"`
	Amount        payPalAmount `json:"amount"`
	Receiver      string       `json:"receiver"`
	Note          string       `json:"note,omitempty"`
	SenderItemID  string       `json:"sender_item_id"`
}

type payPalPayoutRequest struct {
	SenderBatchHeader struct {
		SenderBatchID string `json:"sender_batch_id"`
		EmailSubject  string `json:"email_subject,omitempty"`
	} `json:"sender_batch_header"`
	Items []payPalPayoutItem `json:"items"`
}

type payPalPayoutResponse struct {
	BatchHeader struct {
		PayoutBatchID string `json:"payout_batch_id"`
		BatchStatus   string `json:"batch_status"`
	} `json:"batch_header"`
}

type payPalBatchStatusResponse struct {
	BatchHeader struct {
		PayoutBatchID string `json:"payout_batch_id"`
		BatchStatus   string `json:"batch_status"`
	} `json:"batch_header"`
	Items []struct {
		PayoutItemID      string `json:"payout_item_id"`
		TransactionStatus string `json:"transaction_status"`
		Errors            *struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"errors,omitempty"`
	} `json:"items"`
}

// VerifyAccount for PayPal is a shape check: a receivable address must be
// present. PayPal offers no pre-flight receiver validation; a bad address
// surfaces as an UNCLAIMED item after submission.
func (a *PayPalAdapter) VerifyAccount(ctx context.Context, account *domain.PayoutAccount) (*VerifyResult, error) {
	if account.Email == nil || !strings.Contains(*account.Email, "@") {
		return &VerifyResult{Verified: false, Detail: "missing or malformed paypal email"}, nil
	}
	return &VerifyResult{Verified: true}, nil
}

// SubmitPayout dispatches a single-item payout batch. The reference number is
// used as both the sender batch ID and the sender item ID, making
// resubmission idempotent on PayPal's side.
func (a *PayPalAdapter) SubmitPayout(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	if req.Account.Email == nil || *req.Account.Email == "" {
		return nil, Permanent("no_receiver", "payout account has no paypal email")
	}
	if req.Amount < payPalMinAmount || req.Amount > payPalMaxAmount {
		return nil, Permanent("amount_out_of_range", "amount %d cents outside paypal limits", req.Amount)
	}

	payload := payPalPayoutRequest{}
	payload.SenderBatchHeader.SenderBatchID = req.ReferenceNumber
	payload.SenderBatchHeader.EmailSubject = "You have a payout"
	payload.Items = []payPalPayoutItem{{
		RecipientType: "EMAIL",
		Amount: payPalAmount{
			Value:    formatCents(req.Amount),
			Currency: strings.ToUpper(req.Currency),
		},
		Receiver:     *req.Account.Email,
		Note:         req.Description,
		SenderItemID: req.ReferenceNumber,
	}}

	var resp payPalPayoutResponse
	if err := a.do(ctx, "POST", "/v1/payments/payouts", payload, &resp); err != nil {
		return nil, err
	}

	return &SubmitResult{
		ProcessorReference: resp.BatchHeader.PayoutBatchID,
		Status:             normalizePayPalStatus(resp.BatchHeader.BatchStatus),
	}, nil
}

// QueryStatus fetches the payout batch and reports the status of its single
// item, falling back to the batch status while items are still materializing.
func (a *PayPalAdapter) QueryStatus(ctx context.Context, processorReference string) (*SubmitResult, error) {
	var resp payPalBatchStatusResponse
	path := "/v1/payments/payouts/" + processorReference
	if err := a.do(ctx, "GET", path, nil, &resp); err != nil {
		return nil, err
	}

	result := &SubmitResult{
		ProcessorReference: processorReference,
		Status:             normalizePayPalStatus(resp.BatchHeader.BatchStatus),
	}
	if len(resp.Items) > 0 {
		item := resp.Items[0]
		result.Status = normalizePayPalStatus(item.TransactionStatus)
		if item.Errors != nil {
			result.Detail = item.Errors.Message
		}
	}
	return result, nil
}

// CancelPayout cancels an unclaimed payout item. Claimed items cannot be
// recalled.
func (a *PayPalAdapter) CancelPayout(ctx context.Context, processorReference string) error {
	var resp payPalBatchStatusResponse
	if err := a.do(ctx, "GET", "/v1/payments/payouts/"+processorReference, nil, &resp); err != nil {
		return err
	}
	if len(resp.Items) == 0 {
		return Permanent("no_items", "payout batch %s has no items", processorReference)
	}
	item := resp.Items[0]
	if !strings.EqualFold(item.TransactionStatus, "UNCLAIMED") {
		return ErrUnsupportedOperation
	}

	path := fmt.Sprintf("/v1/payments/payouts-item/%s/cancel", item.PayoutItemID)
	return a.do(ctx, "POST", path, nil, nil)
}

type payPalWebhookVerifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// VerifyWebhookSignature asks PayPal to validate a webhook delivery against
// the registered webhook's certificate. Returns false for deliveries PayPal
// does not recognize as its own.
func (a *PayPalAdapter) VerifyWebhookSignature(ctx context.Context, webhookID string, headers http.Header, body []byte) (bool, error) {
	payload := map[string]interface{}{
		"auth_algo":         headers.Get("Paypal-Auth-Algo"),
		"cert_url":          headers.Get("Paypal-Cert-Url"),
		"transmission_id":   headers.Get("Paypal-Transmission-Id"),
		"transmission_sig":  headers.Get("Paypal-Transmission-Sig"),
		"transmission_time": headers.Get("Paypal-Transmission-Time"),
		"webhook_id":        webhookID,
		"webhook_event":     json.RawMessage(body),
	}

	var resp payPalWebhookVerifyResponse
	if err := a.do(ctx, "POST", "/v1/notifications/verify-webhook-signature", payload, &resp); err != nil {
		return false, err
	}
	return strings.EqualFold(resp.VerificationStatus, "SUCCESS"), nil
}

// do executes an authenticated request against the PayPal API and decodes the
// response into out. Non-2xx responses are classified by status code.
func (a *PayPalAdapter) do(ctx context.Context, method, path string, payload, out interface{}) error {
	token, err := a.token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal paypal request: %w", err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create paypal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return Transient("network", "paypal request failed: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transient("network", "failed to read paypal response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp payPalErrorResponse
		if jsonErr := json.Unmarshal(bodyBytes, &errResp); jsonErr != nil {
			log.Printf("level=warn component=paypal_adapter path=%s status=%d msg=\"non-2xx response (unparsable error body)\"", path, resp.StatusCode)
		}
		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			return Transient(errResp.Name, "paypal unavailable (status %d): %s", resp.StatusCode, errResp.detail())
		}
		if resp.StatusCode == 401 {
			// Token may have been revoked server-side; drop the cache so the
			// next attempt re-authenticates.
			a.mu.Lock()
			a.accessToken = ""
			a.mu.Unlock()
			return Transient(errResp.Name, "paypal auth rejected: %s", errResp.detail())
		}
		return Permanent(errResp.Name, "paypal rejected request (status %d): %s", resp.StatusCode, errResp.detail())
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode paypal response: %w", err)
		}
	}
	return nil
}

// token returns a cached OAuth access token, refreshing it when it is within
// a minute of expiry.
func (a *PayPalAdapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry.Add(-time.Minute)) {
		return a.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		a.BaseURL+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("failed to create paypal token request: %w", err)
	}
	req.SetBasicAuth(a.ClientID, a.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return "", Transient("network", "paypal token request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return "", Transient("auth", "paypal token endpoint unavailable (status %d)", resp.StatusCode)
		}
		return "", Permanent("auth", "paypal credentials rejected (status %d)", resp.StatusCode)
	}

	var tokenResp payPalTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode paypal token response: %w", err)
	}

	a.accessToken = tokenResp.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return a.accessToken, nil
}

// normalizePayPalStatus maps PayPal batch/item statuses onto the adapter's
// normalized set.
func normalizePayPalStatus(status string) string {
	switch strings.ToUpper(status) {
	case "SUCCESS":
		return StatusSucceeded
	case "DENIED", "FAILED", "BLOCKED", "RETURNED":
		return StatusFailed
	case "CANCELED", "REFUNDED", "REVERSED":
		return StatusCancelled
	default:
		// NEW, PENDING, PROCESSING, UNCLAIMED, ONHOLD
		return StatusPending
	}
}

// formatCents renders an integer cent amount as PayPal's decimal string.
func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
