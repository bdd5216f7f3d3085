package platform

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ctpy/internal/classify"
	"ctpy/internal/metrics"
)

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  1,
		MaxAttempts:    attempts,
	}
}

func TestRetryPolicyRetriesTransientFailures(t *testing.T) {
	calls := 0
	err := fastRetry(3).Do(t.Context(), "test", metrics.NewRecorder(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got=%d", calls)
	}
}

func TestRetryPolicyStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := fastRetry(2).Do(t.Context(), "test", nil, func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got=%d", calls)
	}
}

func TestRetryPolicyDoesNotRetryPermanentFailures(t *testing.T) {
	cases := []error{
		fmt.Errorf("load: %w", classify.ErrModeDefinitionNotFound),
		fmt.Errorf("classify: %w", classify.ErrUnclassifiable),
		Permanent(errors.New("bad data")),
	}
	for _, failure := range cases {
		calls := 0
		err := fastRetry(5).Do(t.Context(), "test", nil, func(context.Context) error {
			calls++
			return failure
		})
		if err == nil || calls != 1 {
			t.Fatalf("expected single attempt for %v, got calls=%d err=%v", failure, calls, err)
		}
	}
}

func TestRetryPolicyHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	calls := 0
	err := RetryPolicy{InitialBackoff: time.Second, MaxAttempts: 5}.Do(ctx, "test", nil, func(context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if calls != 1 {
		t.Fatalf("expected no retry after cancellation, got calls=%d", calls)
	}
}

func TestNormalizeRetryPolicyDefaults(t *testing.T) {
	p := normalizeRetryPolicy(RetryPolicy{InitialBackoff: time.Second, MaxBackoff: time.Millisecond})
	if p.MaxBackoff != time.Second {
		t.Fatalf("expected max backoff raised to initial, got=%s", p.MaxBackoff)
	}
	if p.BackoffFactor != 2 || p.MaxAttempts != 3 {
		t.Fatalf("unexpected defaults: %+v", p)
	}
	if Permanent(nil) != nil {
		t.Fatal("expected Permanent(nil) to be nil")
	}
}
