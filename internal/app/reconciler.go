/**
 * @description
 * The reconciler applies asynchronous processor status events to payouts.
 * Events arrive from two paths: webhook ingress (applied inline by the
 * handler) and the `payout.status.*` RabbitMQ bindings (events relayed by
 * other services). Both paths converge here.
 *
 * Outcomes are applied through the same compare-and-swap transitions the
 * synchronous path uses, so replays and out-of-order deliveries cannot move
 * a payout out of a terminal state: terminal wins.
 */

package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/marketvend/payout-service/internal/domain"
	"github.com/marketvend/payout-service/internal/processor"
	"github.com/marketvend/payout-service/internal/store"
)

// Reconciler converges payout state with processor-reported outcomes.
type Reconciler struct {
	service *Service
	repo    store.Repository
}

// NewReconciler creates a reconciler bound to the payout service.
func NewReconciler(service *Service) *Reconciler {
	return &Reconciler{service: service, repo: service.repo}
}

// ApplyEvent correlates the event to a payout by processor reference and
// applies the reported outcome. Unknown references and events for payouts
// already terminal are logged and dropped.
func (r *Reconciler) ApplyEvent(ctx context.Context, event domain.PayoutStatusEvent) error {
	if event.ProcessorReference == "" {
		log.Printf("level=warn component=reconciler msg=\"event without processor reference dropped\" processor=%s event_id=%s", event.Processor, event.EventID)
		return nil
	}

	payout, err := r.repo.FindPayoutByProcessorReference(ctx, event.ProcessorReference)
	if err != nil {
		if err == store.ErrPayoutNotFound {
			// Webhooks can outrun our own submit response. Acknowledge and
			// let the reconciliation poll pick the outcome up instead of
			// redelivering an event that may never match.
			log.Printf("level=warn component=reconciler msg=\"no payout for processor reference; dropped\" processor=%s processor_ref=%s event_id=%s", event.Processor, event.ProcessorReference, event.EventID)
			return nil
		}
		return err
	}

	if payout.IsTerminal() {
		log.Printf("level=info component=reconciler msg=\"event for terminal payout dropped\" payout_id=%s status=%s event_status=%s", payout.ID, payout.Status, event.Status)
		return nil
	}

	switch event.Status {
	case processor.StatusSucceeded:
		return r.service.completePayout(ctx, payout, event.ProcessorReference)
	case processor.StatusFailed:
		reason := event.Reason
		if reason == "" {
			reason = "processor reported failure"
		}
		return r.service.failPayout(ctx, payout, reason)
	case processor.StatusCancelled:
		moved, err := r.repo.MarkPayoutCancelled(ctx, payout.ID)
		if err != nil {
			return err
		}
		if moved && payout.ReservationID != nil {
			if err := r.service.ledger.Release(ctx, *payout.ReservationID); err != nil {
				return err
			}
			r.service.notify(ctx, "payout.cancelled", payout, event.Reason)
		}
		return nil
	case processor.StatusPending:
		// Still in flight; nothing to reconcile.
		return nil
	default:
		log.Printf("level=warn component=reconciler msg=\"unknown event status dropped\" processor=%s status=%q", event.Processor, event.Status)
		return nil
	}
}

// HandleMessage adapts ApplyEvent to the RabbitMQ consumer contract: the
// return value decides ack (true) versus requeue (false).
func (r *Reconciler) HandleMessage(body []byte) bool {
	var event domain.PayoutStatusEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=reconciler msg=\"malformed status event dropped\" err=%v", err)
		return true
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := r.ApplyEvent(ctx, event); err != nil {
		log.Printf("level=error component=reconciler msg=\"failed to apply status event\" processor=%s processor_ref=%s err=%v", event.Processor, event.ProcessorReference, err)
		return false
	}
	return true
}
