// Stub upstream quote providers for local end-to-end runs. Serves three
// providers with slightly different prices and tunable failure behavior:
//
//	go run ./cmd/stubs -addr :8091 -fail-rate 0.1
//
// Endpoints: /alpha/quote, /beta/quote, /gamma/quote, /healthz.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

type quotePayload struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

type provider struct {
	name   string
	skew   float64 // price multiplier relative to the shared base
	jitter float64 // max random fractional move per request

	mu   sync.Mutex
	rng  *rand.Rand
	base map[string]float64
}

func newProvider(name string, skew, jitter float64) *provider {
	return &provider{
		name:   name,
		skew:   skew,
		jitter: jitter,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		base: map[string]float64{
			"AAPL": 206.80,
			"NVDA": 450.00,
			"BIOX": 12.50,
			"SPY":  400.05,
		},
	}
}

func (p *provider) quote(w http.ResponseWriter, r *http.Request, failRate float64, latencyMs int) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if symbol == "" {
		http.Error(w, "symbol required", http.StatusBadRequest)
		return
	}

	if latencyMs > 0 {
		time.Sleep(time.Duration(latencyMs) * time.Millisecond)
	}

	p.mu.Lock()
	if failRate > 0 && p.rng.Float64() < failRate {
		p.mu.Unlock()
		http.Error(w, "simulated provider outage", http.StatusServiceUnavailable)
		return
	}
	base, ok := p.base[symbol]
	if !ok {
		p.mu.Unlock()
		http.Error(w, "unknown symbol", http.StatusNotFound)
		return
	}
	move := (p.rng.Float64()*2 - 1) * p.jitter
	price := base * p.skew * (1 + move)
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(quotePayload{
		Symbol:    symbol,
		Price:     price,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func main() {
	addr := flag.String("addr", ":8091", "listen address")
	failRate := flag.Float64("fail-rate", 0, "fraction of requests that fail with 503")
	latencyMs := flag.Int("latency-ms", 0, "artificial latency per request")
	flag.Parse()

	providers := []*provider{
		newProvider("alpha", 1.000, 0.001),
		newProvider("beta", 1.001, 0.002),
		newProvider("gamma", 0.999, 0.003),
	}

	mux := http.NewServeMux()
	for _, p := range providers {
		p := p
		mux.HandleFunc("/"+p.name+"/quote", func(w http.ResponseWriter, r *http.Request) {
			p.quote(w, r, *failRate, *latencyMs)
		})
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	log.Printf("stub providers listening on %s (fail-rate=%.2f latency=%dms)", *addr, *failRate, *latencyMs)
	log.Fatal(http.ListenAndServe(*addr, mux))
}
