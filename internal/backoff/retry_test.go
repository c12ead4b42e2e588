package backoff

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var errTemporary = errors.New("temporary error")

func alwaysRetry(error) bool { return true }

func TestRetryIf_SucceedsFirstAttempt(t *testing.T) {
	ctx := context.Background()
	policy := RetryPolicy{InitialMs: 10, MaxMs: 100, Factor: 2, Jitter: 0}

	var attempts int32
	result, err := RetryIf(ctx, policy, 3, alwaysRetry, func(attempt int) (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "success", nil
	})

	if err != nil {
		t.Errorf("RetryIf() error = %v, want nil", err)
	}
	if result.Value != "success" {
		t.Errorf("RetryIf() value = %v, want success", result.Value)
	}
	if result.Attempts != 1 {
		t.Errorf("RetryIf() attempts = %v, want 1", result.Attempts)
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("function called %v times, want 1", attempts)
	}
}

func TestRetryIf_SucceedsAfterRetries(t *testing.T) {
	ctx := context.Background()
	policy := RetryPolicy{InitialMs: 5, MaxMs: 100, Factor: 2, Jitter: 0}

	var attempts int32
	result, err := RetryIf(ctx, policy, 5, alwaysRetry, func(attempt int) (int, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return 0, errTemporary
		}
		return int(n), nil
	})

	if err != nil {
		t.Errorf("RetryIf() error = %v, want nil", err)
	}
	if result.Value != 3 {
		t.Errorf("RetryIf() value = %v, want 3", result.Value)
	}
	if result.Attempts != 3 {
		t.Errorf("RetryIf() attempts = %v, want 3", result.Attempts)
	}
}

func TestRetryIf_AllAttemptsFail(t *testing.T) {
	ctx := context.Background()
	policy := RetryPolicy{InitialMs: 5, MaxMs: 100, Factor: 2, Jitter: 0}

	var attempts int32
	result, err := RetryIf(ctx, policy, 3, alwaysRetry, func(attempt int) (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "", errTemporary
	})

	if !errors.Is(err, errTemporary) {
		t.Errorf("RetryIf() error = %v, want errTemporary", err)
	}
	if result.LastErr != errTemporary {
		t.Errorf("RetryIf() LastErr = %v, want errTemporary", result.LastErr)
	}
	if result.Attempts != 3 {
		t.Errorf("RetryIf() attempts = %v, want 3", result.Attempts)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("function called %v times, want 3", attempts)
	}
}

// TestRetryIf_StopsOnNonRetryableError is the behavior a blind retry loop
// lacks: a shouldRetry predicate that returns false ends the loop
// immediately, without sleeping or consuming the remaining attempt budget.
// This is what lets a model-provider adapter give up instantly on an auth
// failure instead of retrying a request that can never succeed.
func TestRetryIf_StopsOnNonRetryableError(t *testing.T) {
	ctx := context.Background()
	policy := RetryPolicy{InitialMs: 100, MaxMs: 1000, Factor: 2, Jitter: 0}
	errFatal := errors.New("fatal error")

	var attempts int32
	start := time.Now()
	_, err := RetryIf(ctx, policy, 5,
		func(e error) bool { return !errors.Is(e, errFatal) },
		func(attempt int) (string, error) {
			atomic.AddInt32(&attempts, 1)
			return "", errFatal
		},
	)
	elapsed := time.Since(start)

	if !errors.Is(err, errFatal) {
		t.Errorf("RetryIf() error = %v, want errFatal", err)
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("function called %v times, want 1 (no retry on non-retryable error)", attempts)
	}
	if elapsed > 50*time.Millisecond {
		t.Errorf("RetryIf() should not have slept before giving up, took %v", elapsed)
	}
}

func TestRetryIf_ContextCancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{InitialMs: 100, MaxMs: 1000, Factor: 2, Jitter: 0}

	var attempts int32
	go func() {
		for atomic.LoadInt32(&attempts) < 1 {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result, err := RetryIf(ctx, policy, 5, alwaysRetry, func(attempt int) (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "", errTemporary
	})
	elapsed := time.Since(start)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("RetryIf() error = %v, want context.Canceled", err)
	}
	if result.Attempts < 1 {
		t.Errorf("RetryIf() attempts = %v, want >= 1", result.Attempts)
	}
	if elapsed > 200*time.Millisecond {
		t.Errorf("RetryIf() took too long: %v", elapsed)
	}
}

func TestRetryIf_ContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := RetryPolicy{InitialMs: 100, MaxMs: 1000, Factor: 2, Jitter: 0}

	var attempts int32
	result, err := RetryIf(ctx, policy, 5, alwaysRetry, func(attempt int) (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "success", nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("RetryIf() error = %v, want context.Canceled", err)
	}
	if atomic.LoadInt32(&attempts) != 0 {
		t.Errorf("function called %v times, want 0", attempts)
	}
	if result.Attempts != 1 {
		t.Errorf("RetryIf() attempts = %v, want 1 (checked before first attempt)", result.Attempts)
	}
}

func TestRetryIf_AttemptNumberPassedCorrectly(t *testing.T) {
	ctx := context.Background()
	policy := RetryPolicy{InitialMs: 1, MaxMs: 100, Factor: 2, Jitter: 0}

	var receivedAttempts []int
	_, _ = RetryIf(ctx, policy, 3, alwaysRetry, func(attempt int) (struct{}, error) {
		receivedAttempts = append(receivedAttempts, attempt)
		return struct{}{}, errTemporary
	})

	expected := []int{1, 2, 3}
	if len(receivedAttempts) != len(expected) {
		t.Fatalf("got %v attempts, want %v", len(receivedAttempts), len(expected))
	}
	for i, v := range expected {
		if receivedAttempts[i] != v {
			t.Errorf("attempt %d: got %v, want %v", i, receivedAttempts[i], v)
		}
	}
}

func TestRetryIf_BackoffActuallyApplied(t *testing.T) {
	ctx := context.Background()
	policy := RetryPolicy{InitialMs: 20, MaxMs: 1000, Factor: 2, Jitter: 0}

	start := time.Now()
	var attempts int32
	_, _ = RetryIf(ctx, policy, 3, alwaysRetry, func(attempt int) (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "", errTemporary
	})
	elapsed := time.Since(start)

	// 3 attempts, sleeping after attempts 1 and 2: 20ms + 40ms = 60ms minimum.
	if elapsed < 50*time.Millisecond {
		t.Errorf("RetryIf() completed too quickly: %v, expected >= 50ms of backoff", elapsed)
	}
}

func TestRetryIf_GenericTypes(t *testing.T) {
	ctx := context.Background()
	policy := RetryPolicy{InitialMs: 1, MaxMs: 100, Factor: 2, Jitter: 0}

	type Result struct {
		Value int
		Name  string
	}

	result, err := RetryIf(ctx, policy, 1, alwaysRetry, func(attempt int) (Result, error) {
		return Result{Value: 42, Name: "test"}, nil
	})

	if err != nil {
		t.Errorf("RetryIf() error = %v, want nil", err)
	}
	if result.Value.Value != 42 || result.Value.Name != "test" {
		t.Errorf("RetryIf() value = %+v, want {Value:42 Name:test}", result.Value)
	}
}
