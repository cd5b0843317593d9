package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"folio/internal/fault"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestDoRetriesTransientUpToCap(t *testing.T) {
	calls := 0
	p := Policy{Attempts: 3, Sleep: noSleep}
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return fault.Transient("fetch", errors.New("503"))
	})
	if !fault.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	p := Policy{Attempts: 3, Sleep: noSleep}
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return fault.Invalid("email", "malformed")
	})
	if !fault.IsValidation(err) || calls != 1 {
		t.Fatalf("expected single validation failure, got %v after %d calls", err, calls)
	}
}

func TestDoSucceedsAfterTransient(t *testing.T) {
	calls := 0
	p := Policy{Attempts: 3, Sleep: noSleep}
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 2 {
			return fault.Transient("send", errors.New("timeout"))
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("expected success on 2nd call, got %v after %d", err, calls)
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
	if got := p.Backoff(1); got != 100*time.Millisecond {
		t.Fatalf("attempt 1: %v", got)
	}
	if got := p.Backoff(2); got != 200*time.Millisecond {
		t.Fatalf("attempt 2: %v", got)
	}
	if got := p.Backoff(3); got != 300*time.Millisecond {
		t.Fatalf("attempt 3 should cap: %v", got)
	}
}
