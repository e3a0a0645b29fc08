package domain

import (
	"time"

	"github.com/google/uuid"
)

// PayoutStatusEvent is the normalized form of an asynchronous processor
// notification. Events are keyed by the processor's reference, not our
// reference number, because processors may rewrite identifiers.
type PayoutStatusEvent struct {
	Processor          string    `json:"processor"`
	ProcessorReference string    `json:"processor_reference"`
	Status             string    `json:"status"` // succeeded, failed, cancelled, pending
	Reason             string    `json:"reason,omitempty"`
	EventID            string    `json:"event_id,omitempty"`
	ReceivedAt         time.Time `json:"received_at"`
}

// PayoutNotification is the fire-and-forget payload published for vendor-facing
// notification delivery (email, in-app) handled by other services.
type PayoutNotification struct {
	Event           string    `json:"event"` // payout.completed, payout.failed, ...
	VendorID        uuid.UUID `json:"vendor_id"`
	PayoutID        uuid.UUID `json:"payout_id"`
	ReferenceNumber string    `json:"reference_number"`
	Amount          int64     `json:"amount"`
	NetAmount       int64     `json:"net_amount"`
	Currency        string    `json:"currency"`
	Reason          string    `json:"reason,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
