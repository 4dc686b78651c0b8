package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quotefeed/quotefeed/internal/observ"
	"github.com/quotefeed/quotefeed/internal/resilience"
	"github.com/quotefeed/quotefeed/internal/sources"
)

// SourceDescriptor is read-only configuration for one upstream source.
type SourceDescriptor struct {
	Name              string
	Weight            float64 // relative reliability prior, (0, 1]
	RateLimitInterval time.Duration
}

// AggregatedQuote is the consensus output for one symbol. Constructed fresh
// on every successful aggregation cycle and never mutated afterwards.
type AggregatedQuote struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	Confidence float64   `json:"confidence"`
	Sources    []string  `json:"sources"`
	Timestamp  time.Time `json:"timestamp"`
}

// NoDataAvailableError is the only error GetPrice surfaces: every source
// failed and neither cache nor static default could cover the symbol.
type NoDataAvailableError struct {
	Symbol string
}

func (e *NoDataAvailableError) Error() string {
	return fmt.Sprintf("no price data available for %s", e.Symbol)
}

// Config holds aggregation-cycle settings shared across sources.
type Config struct {
	Breaker  resilience.BreakerConfig // Name field is ignored; set per source
	Retry    resilience.RetryPolicy
	CacheTTL time.Duration
	Defaults map[string]float64 // static fallback prices per symbol
}

// RegisteredSource pairs an adapter with its descriptor.
type RegisteredSource struct {
	Descriptor SourceDescriptor
	Source     sources.Source
}

type sourceSlot struct {
	desc    SourceDescriptor
	src     sources.Source
	breaker *resilience.CircuitBreaker
	limiter *resilience.AdaptiveLimiter
}

// Aggregator produces one trustworthy quote per symbol from several
// independently failing upstreams. Each source is gated by its own circuit
// breaker, retry policy, and adaptive rate limiter; per-source failures are
// absorbed into the confidence computation, never surfaced individually.
type Aggregator struct {
	slots    []sourceSlot // descending weight order
	registry *resilience.Registry
	retry    resilience.RetryPolicy
	cache    *quoteCache
	defaults map[string]float64

	now func() time.Time
}

// New builds an Aggregator owning one breaker and one limiter per source.
// The registry is constructor-injected so separate aggregators never share
// breaker state.
func New(config Config, registry *resilience.Registry, registered []RegisteredSource) (*Aggregator, error) {
	if len(registered) == 0 {
		return nil, fmt.Errorf("at least one source is required")
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 30 * time.Second
	}
	if registry == nil {
		registry = resilience.NewRegistry()
	}

	slots := make([]sourceSlot, 0, len(registered))
	for _, reg := range registered {
		desc := reg.Descriptor
		if desc.Weight <= 0 || desc.Weight > 1 {
			return nil, fmt.Errorf("source %s: weight must be in (0, 1], got %v", desc.Name, desc.Weight)
		}
		breakerCfg := config.Breaker
		breakerCfg.Name = desc.Name
		breaker, err := registry.Create(breakerCfg)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", desc.Name, err)
		}
		slots = append(slots, sourceSlot{
			desc:    desc,
			src:     reg.Source,
			breaker: breaker,
			limiter: resilience.NewAdaptiveLimiter(desc.Name, desc.RateLimitInterval, 0),
		})
	}
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].desc.Weight > slots[j].desc.Weight
	})

	defaults := make(map[string]float64, len(config.Defaults))
	for sym, price := range config.Defaults {
		defaults[sources.NormalizeSymbol(sym)] = price
	}

	return &Aggregator{
		slots:    slots,
		registry: registry,
		retry:    config.Retry,
		cache:    newQuoteCache(config.CacheTTL),
		defaults: defaults,
		now:      time.Now,
	}, nil
}

// Registry exposes the breaker registry for health checks and admin resets.
func (a *Aggregator) Registry() *resilience.Registry {
	return a.registry
}

type fetchResult struct {
	name   string
	weight float64
	price  float64
	err    error
}

// GetPrice returns the weighted consensus quote for symbol. Fresh cache hits
// short-circuit without upstream calls. On total source failure it falls back
// to the last cached value (even expired), then a static default, then
// NoDataAvailableError.
func (a *Aggregator) GetPrice(ctx context.Context, symbol string) (*AggregatedQuote, error) {
	symbol = sources.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, &NoDataAvailableError{Symbol: symbol}
	}

	if cached, ok := a.cache.get(symbol, a.now()); ok {
		observ.IncCounter("quote_cache_hits_total", nil)
		return &cached, nil
	}
	observ.IncCounter("quote_cache_misses_total", nil)

	results := a.fanOut(ctx, symbol)

	var succeeded []fetchResult
	for _, res := range results {
		if res.err == nil {
			succeeded = append(succeeded, res)
		}
	}

	if len(succeeded) == 0 {
		return a.fallback(symbol, results)
	}

	prices := make([]float64, len(succeeded))
	weights := make([]float64, len(succeeded))
	names := make([]string, len(succeeded))
	for i, res := range succeeded {
		prices[i] = res.price
		weights[i] = res.weight
		names[i] = res.name
	}

	price := weightedPrice(prices, weights)
	conf := confidence(len(succeeded), len(a.slots), prices, price)

	quote := AggregatedQuote{
		Symbol:     symbol,
		Price:      price,
		Confidence: conf,
		Sources:    names,
		Timestamp:  a.now(),
	}
	a.cache.put(symbol, quote, a.now())

	observ.IncCounter("quotes_aggregated_total", nil)
	observ.SetGauge("quote_confidence", conf, map[string]string{"symbol": symbol})
	observ.SetGauge("quote_sources_contributing", float64(len(succeeded)), map[string]string{"symbol": symbol})

	return &quote, nil
}

// fanOut attempts all sources concurrently and returns results in descending
// weight order. Each call is gated by the source's limiter, breaker, and the
// shared retry policy.
func (a *Aggregator) fanOut(ctx context.Context, symbol string) []fetchResult {
	results := make([]fetchResult, len(a.slots))
	var wg sync.WaitGroup
	for i := range a.slots {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = a.fetchOne(ctx, &a.slots[i], symbol)
		}(i)
	}
	wg.Wait()
	return results
}

func (a *Aggregator) fetchOne(ctx context.Context, slot *sourceSlot, symbol string) fetchResult {
	res := fetchResult{name: slot.desc.Name, weight: slot.desc.Weight}

	// An open breaker inside its cooldown skips the throttle entirely.
	// Waiting out a backed-off interval just to be rejected would stall the
	// whole fan-out for nothing.
	if bs := slot.breaker.Status(); bs.State == resilience.StateOpen && a.now().Before(bs.NextAttemptAt) {
		res.err = &resilience.CircuitOpenError{Name: slot.desc.Name, RetryAt: bs.NextAttemptAt}
		observ.IncCounter("source_fetch_rejected_total", map[string]string{"source": slot.desc.Name})
		return res
	}

	if err := slot.limiter.Throttle(ctx); err != nil {
		// Cancelled before any upstream call; the limiter learned nothing.
		res.err = err
		return res
	}

	observ.IncCounter("source_fetch_requests_total", map[string]string{"source": slot.desc.Name})
	start := a.now()

	var fetched *sources.Quote
	err := slot.breaker.Execute(func() error {
		return a.retry.Execute(ctx, func(ctx context.Context) error {
			quote, ferr := slot.src.Fetch(ctx, symbol)
			if ferr != nil {
				return ferr
			}
			if verr := sources.ValidateQuote(quote); verr != nil {
				return verr
			}
			fetched = quote
			return nil
		}, nil)
	})

	observ.RecordDuration("source_fetch_latency", time.Since(start), map[string]string{"source": slot.desc.Name})

	if err != nil {
		res.err = err
		var openErr *resilience.CircuitOpenError
		if errors.As(err, &openErr) {
			// Rejected locally, no upstream call was made; do not punish the
			// limiter for it.
			observ.IncCounter("source_fetch_rejected_total", map[string]string{"source": slot.desc.Name})
			return res
		}
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return res
		}
		slot.limiter.OnError()
		observ.IncCounter("source_fetch_errors_total", map[string]string{"source": slot.desc.Name})
		observ.Log("source_fetch_failed", map[string]any{
			"source": slot.desc.Name,
			"symbol": symbol,
			"error":  err.Error(),
		})
		return res
	}

	slot.limiter.OnSuccess()
	res.price = fetched.Price
	return res
}

// fallback covers the zero-success path: stale cache first, then static
// default, then NoDataAvailableError.
func (a *Aggregator) fallback(symbol string, results []fetchResult) (*AggregatedQuote, error) {
	if stale, ok := a.cache.getStale(symbol); ok {
		observ.IncCounter("quote_stale_served_total", nil)
		observ.Log("quote_stale_fallback", map[string]any{
			"symbol": symbol,
			"age_ms": a.now().Sub(stale.Timestamp).Milliseconds(),
		})
		return &stale, nil
	}

	if price, ok := a.defaults[symbol]; ok {
		observ.IncCounter("quote_default_served_total", nil)
		quote := AggregatedQuote{
			Symbol:     symbol,
			Price:      price,
			Confidence: 0,
			Sources:    []string{"static_default"},
			Timestamp:  a.now(),
		}
		return &quote, nil
	}

	errKinds := map[string]string{}
	for _, res := range results {
		if res.err != nil {
			errKinds[res.name] = res.err.Error()
		}
	}
	observ.IncCounter("quote_no_data_total", nil)
	observ.Log("quote_no_data", map[string]any{"symbol": symbol, "source_errors": errKinds})
	return nil, &NoDataAvailableError{Symbol: symbol}
}

// SourceStatus is an observable snapshot of one source's gating state.
type SourceStatus struct {
	State               resilience.State `json:"state"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	LastFailureAt       time.Time        `json:"last_failure_at,omitzero"`
	CurrentIntervalMs   int64            `json:"current_interval_ms"`
	Weight              float64          `json:"weight"`
}

// GetStatus returns per-source breaker and limiter state keyed by name.
func (a *Aggregator) GetStatus() map[string]SourceStatus {
	out := make(map[string]SourceStatus, len(a.slots))
	for i := range a.slots {
		slot := &a.slots[i]
		bs := slot.breaker.Status()
		out[slot.desc.Name] = SourceStatus{
			State:               bs.State,
			ConsecutiveFailures: bs.ConsecutiveFailures,
			LastFailureAt:       bs.LastFailureAt,
			CurrentIntervalMs:   slot.limiter.CurrentInterval().Milliseconds(),
			Weight:              slot.desc.Weight,
		}
	}
	return out
}

// CacheSize reports how many symbols currently have cached quotes.
func (a *Aggregator) CacheSize() int {
	return a.cache.size()
}
