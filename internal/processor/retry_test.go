package processor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryPolicyStopsOnSuccess(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Transient("timeout", "simulated timeout")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryPolicyDoesNotRetryPermanentErrors(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent("invalid_account", "account closed")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("permanent error should not be retried, got %d attempts", calls)
	}

	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindPermanent {
		t.Fatalf("expected permanent processor error, got %v", err)
	}
}

func TestRetryPolicyExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Transient("unavailable", "processor down")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryPolicyHonorsContextCancellation(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := policy.Do(ctx, func(ctx context.Context) error {
		calls++
		return Transient("timeout", "simulated timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt before cancellation, got %d", calls)
	}
}

func TestIsTransientClassification(t *testing.T) {
	if !IsTransient(Transient("x", "transient")) {
		t.Error("transient error should be retryable")
	}
	if IsTransient(Permanent("x", "permanent")) {
		t.Error("permanent error should not be retryable")
	}
	if IsTransient(ErrUnsupportedOperation) {
		t.Error("unsupported operation should not be retryable")
	}
	if !IsTransient(errors.New("raw network error")) {
		t.Error("unclassified errors should default to retryable")
	}
}

func TestIsProcessorError(t *testing.T) {
	if !IsProcessorError(Transient("x", "transient")) {
		t.Error("transient error should be classified")
	}
	if !IsProcessorError(fmt.Errorf("submit: %w", Permanent("x", "permanent"))) {
		t.Error("wrapped processor error should be classified")
	}
	if IsProcessorError(errors.New("pq: connection refused")) {
		t.Error("unrelated error should not be classified")
	}
	if IsProcessorError(ErrUnsupportedOperation) {
		t.Error("unsupported operation sentinel should not be classified")
	}
}
