package retry

import (
	"context"
	"testing"
	"time"

	pkgerrors "github.com/mgiraldo-dev/canteen-backend/pkg/errors"
)

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaximumBackoff: 2 * time.Millisecond}
}

func TestDoRetriesRetryableCodes(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return pkgerrors.New(pkgerrors.CodeTransactionAborted, "conflict")
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

func TestDoReportsRetriesToHook(t *testing.T) {
	t.Parallel()

	policy := fastPolicy()
	retries := 0
	policy.OnRetry = func() { retries++ }

	calls := 0
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return pkgerrors.New(pkgerrors.CodeTransactionAborted, "conflict")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if retries != 2 {
		t.Fatalf("expected 2 retries reported, got %d", retries)
	}
}

func TestDoStopsOnBusinessRejection(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "need 4, have 2")
	})
	if calls != 1 {
		t.Fatalf("business rejection must not retry, got %d attempts", calls)
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestDoHonorsAttemptCap(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		return pkgerrors.New(pkgerrors.CodeStoreUnavailable, "down")
	})
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeStoreUnavailable) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, fastPolicy(), func(ctx context.Context) error {
		t.Fatal("fn must not run after cancellation")
		return nil
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStoreUnavailable) {
		t.Fatalf("unexpected error %v", err)
	}
}
