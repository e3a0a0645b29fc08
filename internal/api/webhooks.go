/**
 * @description
 * This file contains the HTTP handlers for inbound processor webhooks. Each
 * handler validates the delivery's signature, deduplicates on the processor's
 * event ID, normalizes the payload into a PayoutStatusEvent, and applies it
 * through the reconciler.
 *
 * Response codes follow processor retry semantics: 2xx acknowledges the
 * delivery (including events we deliberately ignore and references we cannot
 * match), 4xx rejects deliveries that fail validation, and 5xx asks the
 * processor to redeliver after an internal failure.
 *
 * @dependencies
 * - github.com/stripe/stripe-go/v82/webhook: Stripe signature verification.
 * - internal/app: Reconciler and event dedupe.
 */

package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/marketvend/payout-service/internal/app"
	"github.com/marketvend/payout-service/internal/domain"
	"github.com/marketvend/payout-service/internal/processor"
)

const webhookBodyLimit = 64 * 1024

// EventApplier applies a normalized processor status event. Satisfied by
// *app.Reconciler.
type EventApplier interface {
	ApplyEvent(ctx context.Context, event domain.PayoutStatusEvent) error
}

// WebhookHandlers holds the dependencies for the processor webhook endpoints.
type WebhookHandlers struct {
	reconciler          EventApplier
	deduper             app.EventDeduper
	stripeWebhookSecret string
	paypal              *processor.PayPalAdapter
	paypalWebhookID     string
}

// NewWebhookHandlers creates a new WebhookHandlers instance. The paypal
// adapter may be nil when PayPal is not configured; its webhook endpoint then
// rejects all deliveries.
func NewWebhookHandlers(reconciler EventApplier, deduper app.EventDeduper, stripeWebhookSecret string, paypal *processor.PayPalAdapter, paypalWebhookID string) *WebhookHandlers {
	return &WebhookHandlers{
		reconciler:          reconciler,
		deduper:             deduper,
		stripeWebhookSecret: stripeWebhookSecret,
		paypal:              paypal,
		paypalWebhookID:     paypalWebhookID,
	}
}

// HandleStripeWebhook handles POST /webhooks/stripe.
func (h *WebhookHandlers) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.stripeWebhookSecret)
	if err != nil {
		log.Printf("level=warn component=webhooks processor=stripe msg=\"signature verification failed\" error=%v", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	if h.deduper != nil && h.deduper.Seen(r.Context(), dedupeKey("stripe", event.ID)) {
		w.WriteHeader(http.StatusOK)
		return
	}

	var status string
	switch string(event.Type) {
	case "transfer.created":
		status = processor.StatusSucceeded
	case "transfer.reversed":
		status = processor.StatusCancelled
	default:
		// Not a transfer lifecycle event we act on.
		w.WriteHeader(http.StatusOK)
		return
	}

	var transfer stripe.Transfer
	if err := json.Unmarshal(event.Data.Raw, &transfer); err != nil {
		log.Printf("level=warn component=webhooks processor=stripe event_id=%s msg=\"unparsable transfer object\" error=%v", event.ID, err)
		http.Error(w, "unparsable event object", http.StatusBadRequest)
		return
	}

	h.apply(w, r, domain.PayoutStatusEvent{
		Processor:          "stripe",
		ProcessorReference: transfer.ID,
		Status:             status,
		EventID:            event.ID,
		ReceivedAt:         time.Now(),
	})
}

type payPalWebhookEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		PayoutItemID      string `json:"payout_item_id"`
		PayoutBatchID     string `json:"payout_batch_id"`
		TransactionStatus string `json:"transaction_status"`
		Errors            *struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"errors,omitempty"`
	} `json:"resource"`
}

// HandlePayPalWebhook handles POST /webhooks/paypal.
func (h *WebhookHandlers) HandlePayPalWebhook(w http.ResponseWriter, r *http.Request) {
	if h.paypal == nil || h.paypalWebhookID == "" {
		http.Error(w, "paypal webhooks not configured", http.StatusNotFound)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	verified, err := h.paypal.VerifyWebhookSignature(r.Context(), h.paypalWebhookID, r.Header, payload)
	if err != nil {
		log.Printf("level=error component=webhooks processor=paypal msg=\"signature verification call failed\" error=%v", err)
		http.Error(w, "verification unavailable", http.StatusInternalServerError)
		return
	}
	if !verified {
		log.Printf("level=warn component=webhooks processor=paypal msg=\"rejected unverified delivery\"")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var event payPalWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		http.Error(w, "unparsable event", http.StatusBadRequest)
		return
	}

	if h.deduper != nil && h.deduper.Seen(r.Context(), dedupeKey("paypal", event.ID)) {
		w.WriteHeader(http.StatusOK)
		return
	}

	var status string
	switch event.EventType {
	case "PAYMENT.PAYOUTS-ITEM.SUCCEEDED":
		status = processor.StatusSucceeded
	case "PAYMENT.PAYOUTS-ITEM.FAILED",
		"PAYMENT.PAYOUTS-ITEM.BLOCKED",
		"PAYMENT.PAYOUTS-ITEM.DENIED",
		"PAYMENT.PAYOUTS-ITEM.RETURNED":
		status = processor.StatusFailed
	case "PAYMENT.PAYOUTS-ITEM.CANCELED", "PAYMENT.PAYOUTS-ITEM.REFUNDED":
		status = processor.StatusCancelled
	default:
		// UNCLAIMED, HELD, and batch-level events resolve later.
		w.WriteHeader(http.StatusOK)
		return
	}

	reason := ""
	if event.Resource.Errors != nil {
		reason = event.Resource.Errors.Message
	}

	h.apply(w, r, domain.PayoutStatusEvent{
		Processor:          "paypal",
		ProcessorReference: event.Resource.PayoutBatchID,
		Status:             status,
		Reason:             reason,
		EventID:            event.ID,
		ReceivedAt:         time.Now(),
	})
}

// dedupeKey namespaces an event ID by processor so IDs from different
// processors cannot collide in the seen-set.
func dedupeKey(processorName, eventID string) string {
	return processorName + ":" + eventID
}

// apply runs the normalized event through the reconciler and translates the
// outcome into a webhook response. On failure the dedupe claim is released
// first, so the redelivery we ask for is not swallowed as a replay.
func (h *WebhookHandlers) apply(w http.ResponseWriter, r *http.Request, event domain.PayoutStatusEvent) {
	if err := h.reconciler.ApplyEvent(r.Context(), event); err != nil {
		if h.deduper != nil {
			h.deduper.Forget(r.Context(), dedupeKey(event.Processor, event.EventID))
		}
		log.Printf("level=warn component=webhooks processor=%s event_id=%s msg=\"event not applied, requesting redelivery\" error=%v", event.Processor, event.EventID, err)
		http.Error(w, "event not applied", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
