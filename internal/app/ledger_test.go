package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/marketvend/payout-service/internal/store"
)

func TestLedgerEarningsLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	ledger := NewLedger(repo)
	vendorID := uuid.New()
	ctx := context.Background()

	if err := ledger.CreditEarnings(ctx, vendorID, 20_000, "USD"); err != nil {
		t.Fatalf("CreditEarnings: %v", err)
	}
	balance, err := ledger.Balance(ctx, vendorID)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance.Pending != 20_000 || balance.Available != 0 {
		t.Fatalf("after credit: pending=%d available=%d", balance.Pending, balance.Available)
	}
	if balance.TotalEarnings != 20_000 {
		t.Errorf("total earnings = %d, want 20000", balance.TotalEarnings)
	}

	if err := ledger.SettlePending(ctx, vendorID, 20_000); err != nil {
		t.Fatalf("SettlePending: %v", err)
	}
	balance, _ = ledger.Balance(ctx, vendorID)
	if balance.Available != 20_000 || balance.Pending != 0 {
		t.Fatalf("after settle: pending=%d available=%d", balance.Pending, balance.Available)
	}
	if balance.TotalBalance() != 20_000 {
		t.Errorf("total balance = %d, want 20000", balance.TotalBalance())
	}
}

func TestLedgerUnknownVendorGetsZeroBalance(t *testing.T) {
	ledger := NewLedger(newMemoryRepo())

	balance, err := ledger.Balance(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance.Available != 0 || balance.Pending != 0 {
		t.Error("unknown vendor should have a zero balance")
	}
}

func TestLedgerReservationConservation(t *testing.T) {
	repo := newMemoryRepo()
	ledger := NewLedger(repo)
	vendorID := uuid.New()
	repo.seedBalance(vendorID, 10_000)
	ctx := context.Background()

	committed, err := ledger.Reserve(ctx, vendorID, 4_000)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	released, err := ledger.Reserve(ctx, vendorID, 3_000)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	if err := ledger.Commit(ctx, committed.ID); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := ledger.Release(ctx, released.ID); err != nil {
		t.Fatalf("Release: %v", err)
	}

	balance, _ := ledger.Balance(ctx, vendorID)
	// 10000 - 4000 committed: available back to 6000, total payouts 4000.
	if balance.Available != 6_000 {
		t.Errorf("available = %d, want 6000", balance.Available)
	}
	if balance.TotalPayouts != 4_000 {
		t.Errorf("total payouts = %d, want 4000", balance.TotalPayouts)
	}
}

func TestLedgerSettleIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	ledger := NewLedger(repo)
	vendorID := uuid.New()
	repo.seedBalance(vendorID, 10_000)
	ctx := context.Background()

	reservation, _ := ledger.Reserve(ctx, vendorID, 4_000)
	for i := 0; i < 3; i++ {
		if err := ledger.Release(ctx, reservation.ID); err != nil {
			t.Fatalf("Release %d: %v", i, err)
		}
	}

	balance, _ := ledger.Balance(ctx, vendorID)
	if balance.Available != 10_000 {
		t.Fatalf("repeated release inflated the balance: available = %d", balance.Available)
	}

	// Commit after release is a no-op, not a double-settle.
	if err := ledger.Commit(ctx, reservation.ID); err != nil {
		t.Fatalf("Commit after release: %v", err)
	}
	balance, _ = ledger.Balance(ctx, vendorID)
	if balance.TotalPayouts != 0 {
		t.Error("released reservation must not count toward payouts")
	}
}

func TestLedgerConcurrentReservesNeverOverdraw(t *testing.T) {
	repo := newMemoryRepo()
	ledger := NewLedger(repo)
	vendorID := uuid.New()
	repo.seedBalance(vendorID, 10_000)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	var reserved int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reservation, err := ledger.Reserve(ctx, vendorID, 1_000)
			if err != nil {
				if !errors.Is(err, store.ErrInsufficientBalance) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			mu.Lock()
			reserved += reservation.Amount
			mu.Unlock()
		}()
	}
	wg.Wait()

	if reserved != 10_000 {
		t.Errorf("reserved total = %d, want exactly the starting balance", reserved)
	}
	balance, _ := ledger.Balance(ctx, vendorID)
	if balance.Available != 0 {
		t.Errorf("available = %d, want 0", balance.Available)
	}
	if balance.Available < 0 {
		t.Error("balance went negative")
	}
}

func TestLedgerHoldAndRelease(t *testing.T) {
	repo := newMemoryRepo()
	ledger := NewLedger(repo)
	vendorID := uuid.New()
	repo.seedBalance(vendorID, 10_000)
	ctx := context.Background()

	if err := ledger.Hold(ctx, vendorID, 6_000, "dispute #4411"); err != nil {
		t.Fatalf("Hold: %v", err)
	}
	balance, _ := ledger.Balance(ctx, vendorID)
	if balance.Available != 4_000 || balance.OnHold != 6_000 {
		t.Fatalf("after hold: available=%d on_hold=%d", balance.Available, balance.OnHold)
	}
	if balance.HoldReason == nil {
		t.Error("hold reason not recorded")
	}

	// A reservation cannot dip into held funds.
	if _, err := ledger.Reserve(ctx, vendorID, 5_000); !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("reserve into held funds: %v", err)
	}

	if err := ledger.ReleaseHold(ctx, vendorID, 6_000); err != nil {
		t.Fatalf("ReleaseHold: %v", err)
	}
	balance, _ = ledger.Balance(ctx, vendorID)
	if balance.Available != 10_000 || balance.OnHold != 0 {
		t.Fatalf("after release hold: available=%d on_hold=%d", balance.Available, balance.OnHold)
	}
	if balance.HoldReason != nil {
		t.Error("hold reason not cleared")
	}
}
