package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"
)

// RetryPolicy is immutable configuration for exponential backoff with
// optional full jitter. The zero value is not usable; construct with the
// fields set.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts"` // >= 1
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"` // >= BaseDelay
	Jitter      bool          `yaml:"jitter"`
}

// RetryExhaustedError wraps the final failure after all attempts were used.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// RawDelay computes min(BaseDelay * 2^attempt, MaxDelay) without jitter.
func (p RetryPolicy) RawDelay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay || d < 0 { // overflow guard
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Delay returns the backoff before attempt+1. With jitter enabled it is
// uniform in [0, RawDelay] so concurrent callers hitting the same upstream
// decorrelate.
func (p RetryPolicy) Delay(attempt int, rng *rand.Rand) time.Duration {
	raw := p.RawDelay(attempt)
	if !p.Jitter || raw <= 0 {
		return raw
	}
	return time.Duration(rng.Int63n(int64(raw) + 1))
}

// Execute runs op up to MaxAttempts times, sleeping Delay(i) between
// attempts. A failure that retryable rejects fails immediately. Context
// cancellation aborts mid-backoff and propagates the context error. No delay
// follows the final attempt. If retryable is nil, IsRetryableError is used.
func (p RetryPolicy) Execute(ctx context.Context, op func(context.Context) error, retryable func(error) bool) error {
	if retryable == nil {
		retryable = IsRetryableError
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	// Jitter is seeded per call so tests can rely on independent sequences.
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if i == attempts-1 {
			break
		}
		delay := p.Delay(i, rng)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return &RetryExhaustedError{Attempts: attempts, Err: lastErr}
}

var retryableMarkers = []string{
	"timeout",
	"rate limit",
	"too many requests",
	"connection reset",
	"connection refused",
	"no such host",
	"status 429",
	"status 500",
	"status 502",
	"status 503",
	"status 504",
}

// IsRetryableError is the default retryability predicate: network-level
// errors, HTTP 429/503/5xx markers, and rate-limit message text are
// retryable; everything else fails fast.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
