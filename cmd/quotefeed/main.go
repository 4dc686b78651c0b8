package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/quotefeed/quotefeed/internal/aggregator"
	"github.com/quotefeed/quotefeed/internal/config"
	"github.com/quotefeed/quotefeed/internal/observ"
	"github.com/quotefeed/quotefeed/internal/resilience"
	"github.com/quotefeed/quotefeed/internal/sources"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	registered := make([]aggregator.RegisteredSource, 0, len(cfg.Sources))
	for _, entry := range cfg.Sources {
		src, err := sources.New(sources.AdapterConfig{
			Name:               entry.Name,
			Adapter:            entry.Adapter,
			URL:                entry.URL,
			RateLimitPerMinute: entry.RateLimitPerMinute,
			TimeoutSeconds:     entry.TimeoutSeconds,
		})
		if err != nil {
			log.Fatalf("source %s: %v", entry.Name, err)
		}
		registered = append(registered, aggregator.RegisteredSource{
			Descriptor: aggregator.SourceDescriptor{
				Name:              entry.Name,
				Weight:            entry.Weight,
				RateLimitInterval: time.Duration(entry.MinRateLimitIntervalMs) * time.Millisecond,
			},
			Source: src,
		})
	}

	agg, err := aggregator.New(aggregator.Config{
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Breaker.SuccessThreshold,
			OpenTimeout:      time.Duration(cfg.Breaker.OpenTimeoutMs) * time.Millisecond,
		},
		Retry: resilience.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
			Jitter:      cfg.Retry.JitterEnabled(),
		},
		CacheTTL: time.Duration(cfg.Cache.TTLMs) * time.Millisecond,
		Defaults: cfg.Defaults,
	}, resilience.NewRegistry(), registered)
	if err != nil {
		log.Fatalf("aggregator: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/v1/price", priceHandler(agg))
	mux.Handle("/v1/status", statusHandler(agg))
	mux.Handle("/metrics", observ.Handler())
	mux.Handle("/healthz", observ.HealthHandler())

	server := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		observ.Log("server_started", map[string]any{
			"addr":    cfg.Server.Addr,
			"sources": len(cfg.Sources),
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	observ.Log("server_stopping", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func priceHandler(agg *aggregator.Aggregator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		if symbol == "" {
			http.Error(w, `{"error":"symbol query parameter is required"}`, http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		quote, err := agg.GetPrice(ctx, symbol)
		if err != nil {
			var noData *aggregator.NoDataAvailableError
			if errors.As(err, &noData) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(quote)
	})
}

func statusHandler(agg *aggregator.Aggregator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		type statusPayload struct {
			Sources      map[string]aggregator.SourceStatus `json:"sources"`
			OpenBreakers []string                           `json:"open_breakers"`
			CachedQuotes int                                `json:"cached_quotes"`
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statusPayload{
			Sources:      agg.GetStatus(),
			OpenBreakers: agg.Registry().ListOpen(),
			CachedQuotes: agg.CacheSize(),
		})
	})
}
