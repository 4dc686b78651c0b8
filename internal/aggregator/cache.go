package aggregator

import (
	"sync"
	"time"
)

// quoteCache holds the most recent aggregated quote per symbol. Entries are
// replaced, never mutated, and expired entries are retained for the
// stale-but-available fallback.
type quoteCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	quote     AggregatedQuote
	writtenAt time.Time
}

func newQuoteCache(ttl time.Duration) *quoteCache {
	return &quoteCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// get returns the cached quote for symbol if it is still within the TTL.
func (c *quoteCache) get(symbol string, now time.Time) (AggregatedQuote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[symbol]
	if !ok || now.Sub(entry.writtenAt) >= c.ttl {
		return AggregatedQuote{}, false
	}
	return entry.quote, true
}

// getStale returns the cached quote regardless of expiry.
func (c *quoteCache) getStale(symbol string) (AggregatedQuote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[symbol]
	return entry.quote, ok
}

// put supersedes any previous entry for the symbol.
func (c *quoteCache) put(symbol string, quote AggregatedQuote, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[symbol] = cacheEntry{quote: quote, writtenAt: now}
}

func (c *quoteCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
