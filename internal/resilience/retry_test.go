package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"testing"
	"time"
)

func TestRetryRawDelayBounds(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts: 10,
		BaseDelay:   1000 * time.Millisecond,
		MaxDelay:    60000 * time.Millisecond,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1000 * time.Millisecond},
		{1, 2000 * time.Millisecond},
		{2, 4000 * time.Millisecond},
		{5, 32000 * time.Millisecond},
		{6, 60000 * time.Millisecond}, // 64s capped at 60s
		{20, 60000 * time.Millisecond},
		{62, 60000 * time.Millisecond}, // would overflow int64 nanoseconds
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := policy.RawDelay(tt.attempt); got != tt.want {
				t.Errorf("RawDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestRetryJitterWithinBounds(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts: 10,
		BaseDelay:   1000 * time.Millisecond,
		MaxDelay:    60000 * time.Millisecond,
		Jitter:      true,
	}
	rng := rand.New(rand.NewSource(42))

	for attempt := 0; attempt < 8; attempt++ {
		raw := policy.RawDelay(attempt)
		for i := 0; i < 200; i++ {
			d := policy.Delay(attempt, rng)
			if d < 0 || d > raw {
				t.Fatalf("Delay(%d) = %v outside [0, %v]", attempt, d, raw)
			}
		}
	}
}

func TestRetryNoJitterIsDeterministic(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second}
	if got := policy.Delay(2, nil); got != 40*time.Millisecond {
		t.Errorf("Delay(2) without jitter = %v, want 40ms", got)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	calls := 0
	boom := errors.New("connection reset by peer")
	err := policy.Execute(context.Background(), func(context.Context) error {
		calls++
		return boom
	}, nil)

	if calls != 3 {
		t.Errorf("op ran %d times, want 3", calls)
	}
	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Execute() error = %v, want RetryExhaustedError", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("RetryExhaustedError.Attempts = %d, want 3", exhausted.Attempts)
	}
	if !errors.Is(err, boom) {
		t.Error("RetryExhaustedError must wrap the final underlying error")
	}
}

func TestRetryNonRetryableFailsImmediately(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	calls := 0
	bad := errors.New("bad_symbol error for XXXX: not found")
	err := policy.Execute(context.Background(), func(context.Context) error {
		calls++
		return bad
	}, nil)

	if calls != 1 {
		t.Errorf("op ran %d times, want 1 (non-retryable)", calls)
	}
	if !errors.Is(err, bad) {
		t.Errorf("Execute() error = %v, want the original error", err)
	}
	var exhausted *RetryExhaustedError
	if errors.As(err, &exhausted) {
		t.Error("non-retryable failure must not be wrapped as exhaustion")
	}
}

func TestRetrySucceedsMidway(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	calls := 0
	err := policy.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("timeout talking to provider")
		}
		return nil
	}, nil)

	if err != nil {
		t.Fatalf("Execute() error = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("op ran %d times, want 3", calls)
	}
}

func TestRetryAbortsOnContextCancel(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	err := policy.Execute(ctx, func(context.Context) error {
		calls++
		return errors.New("timeout")
	}, nil)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Execute() error = %v, want context.DeadlineExceeded", err)
	}
	if calls > 2 {
		t.Errorf("op ran %d times after deadline, want at most 2", calls)
	}
}

func TestRetryCustomPredicate(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	calls := 0
	err := policy.Execute(context.Background(), func(context.Context) error {
		calls++
		return errors.New("flaky")
	}, func(error) bool { return calls < 2 })

	if calls != 2 {
		t.Errorf("op ran %d times, want 2 (predicate rejected the second failure)", calls)
	}
	if err == nil {
		t.Error("Execute() error = nil, want the second failure")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout text", errors.New("request timeout after 10s"), true},
		{"rate limit text", errors.New("provider rate limit exceeded"), true},
		{"too many requests", errors.New("HTTP Too Many Requests"), true},
		{"http 429", errors.New("status 429: slow down"), true},
		{"http 503", errors.New("status 503: unavailable"), true},
		{"http 500", errors.New("status 500: boom"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "api.example.com"}, true},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"bad symbol", errors.New("bad_symbol error for X: unknown"), false},
		{"validation", errors.New("invalid quote price: -1.0000"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
