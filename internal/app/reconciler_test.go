package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/marketvend/payout-service/internal/domain"
	"github.com/marketvend/payout-service/internal/processor"
)

// submitPending puts a payout into processing with a known processor
// reference, simulating an asynchronous processor.
func submitPending(t *testing.T, f *fixture, amount int64) *domain.Payout {
	t.Helper()
	f.adapter.submitFn = func(ctx context.Context, req *processor.SubmitRequest) (*processor.SubmitResult, error) {
		return &processor.SubmitResult{ProcessorReference: "proc-ref-1", Status: processor.StatusPending}, nil
	}

	payout, err := f.service.CreatePayout(context.Background(), f.vendorID, domain.CreatePayoutRequest{
		PayoutAccountID: f.accountID,
		Amount:          amount,
	})
	if err != nil {
		t.Fatalf("CreatePayout: %v", err)
	}
	submitted, err := f.service.SubmitPayout(context.Background(), payout.ID)
	if err != nil {
		t.Fatalf("SubmitPayout: %v", err)
	}
	if submitted.Status != domain.PayoutStatusProcessing {
		t.Fatalf("status = %q, want processing", submitted.Status)
	}
	return submitted
}

func TestReconcilerAppliesSuccess(t *testing.T) {
	f := newFixture(t, 100_000)
	payout := submitPending(t, f, 10_000)
	reconciler := NewReconciler(f.service)

	err := reconciler.ApplyEvent(context.Background(), domain.PayoutStatusEvent{
		Processor:          "stripe",
		ProcessorReference: "proc-ref-1",
		Status:             processor.StatusSucceeded,
		EventID:            "evt_1",
	})
	if err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	updated, _ := f.repo.FindPayoutByID(context.Background(), payout.ID)
	if updated.Status != domain.PayoutStatusCompleted {
		t.Fatalf("status = %q, want completed", updated.Status)
	}
	balance, _ := f.service.GetBalance(context.Background(), f.vendorID)
	if balance.TotalPayouts != 10_000 {
		t.Errorf("total payouts = %d, want 10000", balance.TotalPayouts)
	}
}

func TestReconcilerAppliesFailureAndReleasesFunds(t *testing.T) {
	f := newFixture(t, 100_000)
	payout := submitPending(t, f, 10_000)
	reconciler := NewReconciler(f.service)

	err := reconciler.ApplyEvent(context.Background(), domain.PayoutStatusEvent{
		Processor:          "stripe",
		ProcessorReference: "proc-ref-1",
		Status:             processor.StatusFailed,
		Reason:             "destination account closed",
	})
	if err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	updated, _ := f.repo.FindPayoutByID(context.Background(), payout.ID)
	if updated.Status != domain.PayoutStatusFailed {
		t.Fatalf("status = %q, want failed", updated.Status)
	}
	if updated.FailureReason == nil || *updated.FailureReason != "destination account closed" {
		t.Error("failure reason not recorded from event")
	}
	balance, _ := f.service.GetBalance(context.Background(), f.vendorID)
	if balance.Available != 100_000 {
		t.Errorf("funds not restored: available = %d", balance.Available)
	}
}

func TestReconcilerTerminalWins(t *testing.T) {
	f := newFixture(t, 100_000)
	payout := submitPending(t, f, 10_000)
	reconciler := NewReconciler(f.service)
	ctx := context.Background()

	success := domain.PayoutStatusEvent{
		Processor:          "stripe",
		ProcessorReference: "proc-ref-1",
		Status:             processor.StatusSucceeded,
	}
	if err := reconciler.ApplyEvent(ctx, success); err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}

	// A late contradictory failure event must not move the payout or the
	// balance.
	late := domain.PayoutStatusEvent{
		Processor:          "stripe",
		ProcessorReference: "proc-ref-1",
		Status:             processor.StatusFailed,
		Reason:             "late failure replay",
	}
	if err := reconciler.ApplyEvent(ctx, late); err != nil {
		t.Fatalf("ApplyEvent replay: %v", err)
	}

	updated, _ := f.repo.FindPayoutByID(ctx, payout.ID)
	if updated.Status != domain.PayoutStatusCompleted {
		t.Fatalf("terminal state overwritten: status = %q", updated.Status)
	}
	balance, _ := f.service.GetBalance(ctx, f.vendorID)
	if balance.Available != 90_000 || balance.TotalPayouts != 10_000 {
		t.Errorf("balance moved by replay: available=%d total_payouts=%d", balance.Available, balance.TotalPayouts)
	}
}

func TestReconcilerDuplicateSuccessIsIdempotent(t *testing.T) {
	f := newFixture(t, 100_000)
	submitPending(t, f, 10_000)
	reconciler := NewReconciler(f.service)
	ctx := context.Background()

	event := domain.PayoutStatusEvent{
		Processor:          "stripe",
		ProcessorReference: "proc-ref-1",
		Status:             processor.StatusSucceeded,
	}
	for i := 0; i < 3; i++ {
		if err := reconciler.ApplyEvent(ctx, event); err != nil {
			t.Fatalf("ApplyEvent %d: %v", i, err)
		}
	}

	balance, _ := f.service.GetBalance(ctx, f.vendorID)
	if balance.TotalPayouts != 10_000 {
		t.Errorf("total payouts double-counted: %d", balance.TotalPayouts)
	}
}

func TestReconcilerUnknownReferenceAcknowledged(t *testing.T) {
	f := newFixture(t, 100_000)
	reconciler := NewReconciler(f.service)

	err := reconciler.ApplyEvent(context.Background(), domain.PayoutStatusEvent{
		Processor:          "stripe",
		ProcessorReference: "no-such-ref",
		Status:             processor.StatusSucceeded,
	})
	if err != nil {
		t.Fatalf("unknown reference should be acknowledged and dropped, got %v", err)
	}
}

func TestHandleMessageAcksMalformedPayloads(t *testing.T) {
	f := newFixture(t, 100_000)
	reconciler := NewReconciler(f.service)

	if !reconciler.HandleMessage([]byte("{not json")) {
		t.Error("malformed payload should be acked and dropped")
	}
}

func TestHandleMessageAppliesEvent(t *testing.T) {
	f := newFixture(t, 100_000)
	payout := submitPending(t, f, 10_000)
	reconciler := NewReconciler(f.service)

	body, _ := json.Marshal(domain.PayoutStatusEvent{
		Processor:          "stripe",
		ProcessorReference: "proc-ref-1",
		Status:             processor.StatusSucceeded,
	})
	if !reconciler.HandleMessage(body) {
		t.Fatal("valid event should be acked")
	}

	updated, _ := f.repo.FindPayoutByID(context.Background(), payout.ID)
	if updated.Status != domain.PayoutStatusCompleted {
		t.Fatalf("status = %q, want completed", updated.Status)
	}
}
