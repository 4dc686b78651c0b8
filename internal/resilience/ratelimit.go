package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/quotefeed/quotefeed/internal/observ"
)

// DefaultMaxInterval caps how far an AdaptiveLimiter can back off.
const DefaultMaxInterval = 60 * time.Second

// AdaptiveLimiter is a self-tuning minimum-interval throttle for one upstream
// dependency. Repeated errors double the interval toward a fixed ceiling;
// sustained success relaxes it multiplicatively back toward the floor.
type AdaptiveLimiter struct {
	mu sync.Mutex

	name              string
	minInterval       time.Duration // floor, never changes
	maxInterval       time.Duration // ceiling, never changes
	currentInterval   time.Duration
	lastCallAt        time.Time
	consecutiveErrors int

	now func() time.Time
}

// NewAdaptiveLimiter creates a limiter with the given floor interval. A
// non-positive ceiling selects DefaultMaxInterval.
func NewAdaptiveLimiter(name string, minInterval, maxInterval time.Duration) *AdaptiveLimiter {
	if maxInterval <= 0 {
		maxInterval = DefaultMaxInterval
	}
	if minInterval < 0 {
		minInterval = 0
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}
	return &AdaptiveLimiter{
		name:            name,
		minInterval:     minInterval,
		maxInterval:     maxInterval,
		currentInterval: minInterval,
		now:             time.Now,
	}
}

// Throttle blocks until at least the current interval has elapsed since the
// last permitted call, then records the new slot. Concurrent callers reserve
// slots under the lock, so permits stay serialized. Returns early with the
// context error on cancellation.
func (al *AdaptiveLimiter) Throttle(ctx context.Context) error {
	al.mu.Lock()
	now := al.now()
	target := al.lastCallAt.Add(al.currentInterval)
	if target.Before(now) {
		target = now
	}
	al.lastCallAt = target
	wait := target.Sub(now)
	al.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// OnError doubles the current interval, capped at the ceiling, and counts the
// error. Call after an upstream failure that smells like rate limiting.
func (al *AdaptiveLimiter) OnError() {
	al.mu.Lock()
	defer al.mu.Unlock()

	al.consecutiveErrors++
	next := al.currentInterval * 2
	if al.currentInterval == 0 {
		next = al.minInterval
		if next == 0 {
			next = time.Second
		}
	}
	if next > al.maxInterval {
		next = al.maxInterval
	}
	if next != al.currentInterval {
		al.currentInterval = next
		observ.Log("rate_limiter_slowdown", map[string]any{
			"source":             al.name,
			"interval_ms":        al.currentInterval.Milliseconds(),
			"consecutive_errors": al.consecutiveErrors,
		})
	}
	observ.SetGauge("source_rate_interval_ms", float64(al.currentInterval.Milliseconds()),
		map[string]string{"source": al.name})
}

// OnSuccess relaxes the interval toward the floor and decays the error count.
func (al *AdaptiveLimiter) OnSuccess() {
	al.mu.Lock()
	defer al.mu.Unlock()

	if al.consecutiveErrors > 0 {
		al.consecutiveErrors--
	}
	relaxed := time.Duration(float64(al.currentInterval) * 0.9)
	if relaxed < al.minInterval {
		relaxed = al.minInterval
	}
	al.currentInterval = relaxed
	observ.SetGauge("source_rate_interval_ms", float64(al.currentInterval.Milliseconds()),
		map[string]string{"source": al.name})
}

// CurrentInterval returns the interval currently enforced between calls.
func (al *AdaptiveLimiter) CurrentInterval() time.Duration {
	al.mu.Lock()
	defer al.mu.Unlock()
	return al.currentInterval
}

// ConsecutiveErrors returns the current error streak count.
func (al *AdaptiveLimiter) ConsecutiveErrors() int {
	al.mu.Lock()
	defer al.mu.Unlock()
	return al.consecutiveErrors
}
