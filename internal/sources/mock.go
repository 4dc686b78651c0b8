package sources

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource provides deterministic quotes for testing
type MockSource struct {
	name string

	mu     sync.RWMutex
	prices map[string]float64
	err    error

	calls int64
}

// NewMockSource creates a mock source with predefined prices.
func NewMockSource(name string) *MockSource {
	return &MockSource{
		name: name,
		prices: map[string]float64{
			"AAPL": 206.80,
			"NVDA": 450.00,
			"BIOX": 12.50,
			"SPY":  400.05,
		},
	}
}

func (m *MockSource) Name() string { return m.name }

// Fetch returns the configured price for symbol, or the injected error.
func (m *MockSource) Fetch(ctx context.Context, symbol string) (*Quote, error) {
	atomic.AddInt64(&m.calls, 1)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.RLock()
	injected := m.err
	price, exists := m.prices[NormalizeSymbol(symbol)]
	m.mu.RUnlock()

	if injected != nil {
		return nil, injected
	}
	if !exists {
		return nil, NewBadSymbolError(symbol, "symbol not found in mock data")
	}

	return &Quote{
		Symbol:    NormalizeSymbol(symbol),
		Price:     price,
		Timestamp: time.Now(),
		Source:    m.name,
	}, nil
}

// SetPrice allows tests to set a custom price.
func (m *MockSource) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[NormalizeSymbol(symbol)] = price
}

// SetError makes every subsequent Fetch fail with err; nil clears it.
func (m *MockSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the number of Fetch invocations so far.
func (m *MockSource) Calls() int64 {
	return atomic.LoadInt64(&m.calls)
}
