package sources

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// SimSource generates random-walk prices for local runs without live
// providers. Each symbol drifts a fraction of a percent per fetch.
type SimSource struct {
	name string

	mu    sync.Mutex
	last  map[string]float64
	rng   *rand.Rand
	drift float64 // max fractional move per fetch
}

// NewSimSource creates a simulated source seeded from the clock.
func NewSimSource(name string) *SimSource {
	return &SimSource{
		name: name,
		last: map[string]float64{
			"AAPL": 206.80,
			"NVDA": 450.00,
			"BIOX": 12.50,
			"SPY":  400.05,
		},
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		drift: 0.005,
	}
}

func (s *SimSource) Name() string { return s.name }

func (s *SimSource) Fetch(ctx context.Context, symbol string) (*Quote, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	key := NormalizeSymbol(symbol)

	s.mu.Lock()
	price, exists := s.last[key]
	if !exists {
		// Unknown symbols start from a stable pseudo-price so repeated runs
		// stay in a plausible range.
		price = 50 + float64(len(key))*10
	}
	move := (s.rng.Float64()*2 - 1) * s.drift
	price = price * (1 + move)
	if price < 0.01 {
		price = 0.01
	}
	s.last[key] = price
	s.mu.Unlock()

	return &Quote{
		Symbol:    key,
		Price:     price,
		Timestamp: time.Now(),
		Source:    s.name,
	}, nil
}
