package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/quotefeed/quotefeed/internal/observ"
)

// State represents the circuit breaker state
type State string

const (
	StateClosed   State = "closed"    // Normal operation, calls pass through
	StateOpen     State = "open"      // Failing, calls rejected until the cooldown elapses
	StateHalfOpen State = "half-open" // Probing for recovery with live calls
)

// BreakerConfig holds circuit breaker settings for one dependency
type BreakerConfig struct {
	Name             string        `yaml:"name"`
	FailureThreshold int           `yaml:"failure_threshold"` // Consecutive failures to open
	SuccessThreshold int           `yaml:"success_threshold"` // Consecutive half-open successes to close
	OpenTimeout      time.Duration `yaml:"open_timeout"`      // Cooldown before probing
}

func (c BreakerConfig) validate() error {
	if c.Name == "" {
		return fmt.Errorf("breaker name is required")
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure threshold must be >= 1, got %d", c.FailureThreshold)
	}
	if c.SuccessThreshold < 1 {
		return fmt.Errorf("success threshold must be >= 1, got %d", c.SuccessThreshold)
	}
	if c.OpenTimeout <= 0 {
		return fmt.Errorf("open timeout must be positive, got %v", c.OpenTimeout)
	}
	return nil
}

// CircuitOpenError is returned when a call is rejected because the breaker is
// open. It signals deliberate backpressure, not an upstream failure.
type CircuitOpenError struct {
	Name    string
	RetryAt time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s, next attempt at %s", e.Name, e.RetryAt.UTC().Format(time.RFC3339))
}

// CircuitBreaker guards calls to one upstream dependency. Calls through the
// same breaker are serialized; breakers for different dependencies share
// nothing.
type CircuitBreaker struct {
	callMu sync.Mutex // serializes Execute per dependency
	mu     sync.Mutex // guards state below

	config BreakerConfig

	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	lastFailureAt        time.Time
	lastStateChangeAt    time.Time
	nextAttemptAt        time.Time // set iff state is open

	now func() time.Time
}

// NewCircuitBreaker creates a closed breaker for the named dependency.
func NewCircuitBreaker(config BreakerConfig) (*CircuitBreaker, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	cb := &CircuitBreaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
	cb.lastStateChangeAt = cb.now()
	return cb, nil
}

// Execute gates op behind the breaker state machine. While open and inside
// the cooldown window it fails fast with CircuitOpenError without invoking
// op. The original error from op is always propagated.
func (cb *CircuitBreaker) Execute(op func() error) error {
	cb.callMu.Lock()
	defer cb.callMu.Unlock()

	if err := cb.allow(); err != nil {
		return err
	}

	err := op()
	cb.record(err)
	return err
}

// allow checks admission and performs the lazy open -> half-open transition.
func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	now := cb.now()
	if now.Before(cb.nextAttemptAt) {
		return &CircuitOpenError{Name: cb.config.Name, RetryAt: cb.nextAttemptAt}
	}
	cb.transition(StateHalfOpen)
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.consecutiveFailures = 0
		if cb.state == StateHalfOpen {
			cb.consecutiveSuccesses++
			if cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
				cb.transition(StateClosed)
			}
		}
		return
	}

	cb.lastFailureAt = cb.now()
	if cb.state == StateHalfOpen {
		// Any probe failure reopens.
		cb.transition(StateOpen)
		return
	}
	cb.consecutiveFailures++
	if cb.state == StateClosed && cb.consecutiveFailures >= cb.config.FailureThreshold {
		cb.transition(StateOpen)
	}
}

// transition moves to a new state, resetting both counters. Callers hold mu.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.lastStateChangeAt = cb.now()
	if to == StateOpen {
		cb.nextAttemptAt = cb.now().Add(cb.config.OpenTimeout)
	} else {
		cb.nextAttemptAt = time.Time{}
	}

	observ.SetGauge("source_breaker_state", stateToFloat(to), map[string]string{"source": cb.config.Name})
	observ.IncCounter("breaker_transitions_total", map[string]string{
		"source": cb.config.Name,
		"from":   string(from),
		"to":     string(to),
	})
	observ.Log("breaker_state_changed", map[string]any{
		"source": cb.config.Name,
		"from":   string(from),
		"to":     string(to),
	})
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ForceClose resets the breaker to closed with zeroed counters.
func (cb *CircuitBreaker) ForceClose() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateClosed {
		cb.transition(StateClosed)
	} else {
		cb.consecutiveFailures = 0
		cb.consecutiveSuccesses = 0
	}
}

// BreakerStatus is an observable snapshot of one breaker.
type BreakerStatus struct {
	Name                 string    `json:"name"`
	State                State     `json:"state"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	LastFailureAt        time.Time `json:"last_failure_at,omitzero"`
	LastStateChangeAt    time.Time `json:"last_state_change_at"`
	NextAttemptAt        time.Time `json:"next_attempt_at,omitzero"`
}

// Status returns a snapshot of the breaker state and counters.
func (cb *CircuitBreaker) Status() BreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStatus{
		Name:                 cb.config.Name,
		State:                cb.state,
		ConsecutiveFailures:  cb.consecutiveFailures,
		ConsecutiveSuccesses: cb.consecutiveSuccesses,
		LastFailureAt:        cb.lastFailureAt,
		LastStateChangeAt:    cb.lastStateChangeAt,
		NextAttemptAt:        cb.nextAttemptAt,
	}
}

func stateToFloat(s State) float64 {
	switch s {
	case StateClosed:
		return 0
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return -1
	}
}
