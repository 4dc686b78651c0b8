package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Server struct {
	Addr string `yaml:"addr"`
}

type SourceEntry struct {
	Name                   string  `yaml:"name"`
	Weight                 float64 `yaml:"weight"` // (0, 1]
	MinRateLimitIntervalMs int     `yaml:"min_rate_limit_interval_ms"`
	Adapter                string  `yaml:"adapter"` // mock | sim | http
	URL                    string  `yaml:"url"`
	RateLimitPerMinute     int     `yaml:"rate_limit_per_minute"`
	TimeoutSeconds         int     `yaml:"timeout_seconds"`
}

type Breaker struct {
	FailureThreshold int `yaml:"failure_threshold"`
	SuccessThreshold int `yaml:"success_threshold"`
	OpenTimeoutMs    int `yaml:"open_timeout_ms"`
}

type Retry struct {
	MaxAttempts int   `yaml:"max_attempts"`
	BaseDelayMs int   `yaml:"base_delay_ms"`
	MaxDelayMs  int   `yaml:"max_delay_ms"`
	Jitter      *bool `yaml:"jitter"` // defaults to true when omitted
}

type Cache struct {
	TTLMs int `yaml:"ttl_ms"`
}

type Root struct {
	Server   Server             `yaml:"server"`
	Sources  []SourceEntry      `yaml:"sources"`
	Breaker  Breaker            `yaml:"circuit_breaker"`
	Retry    Retry              `yaml:"retry"`
	Cache    Cache              `yaml:"cache"`
	Defaults map[string]float64 `yaml:"defaults"` // static fallback prices
}

// JitterEnabled reports the jitter setting with its default of true.
func (r Retry) JitterEnabled() bool {
	if r.Jitter == nil {
		return true
	}
	return *r.Jitter
}

func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.SuccessThreshold == 0 {
		c.Breaker.SuccessThreshold = 2
	}
	if c.Breaker.OpenTimeoutMs == 0 {
		c.Breaker.OpenTimeoutMs = 30000
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelayMs == 0 {
		c.Retry.BaseDelayMs = 500
	}
	if c.Retry.MaxDelayMs == 0 {
		c.Retry.MaxDelayMs = 30000
	}
	if c.Cache.TTLMs == 0 {
		c.Cache.TTLMs = 30000
	}
	for i := range c.Sources {
		if c.Sources[i].MinRateLimitIntervalMs == 0 {
			c.Sources[i].MinRateLimitIntervalMs = 1000
		}
	}

	if err := validate(c); err != nil {
		return c, err
	}
	return c, nil
}

func validate(c Root) error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source must be configured")
	}
	seen := map[string]bool{}
	for _, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("source name is required")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate source name %q", s.Name)
		}
		seen[s.Name] = true
		if s.Weight <= 0 || s.Weight > 1 {
			return fmt.Errorf("source %s: weight must be in (0, 1], got %v", s.Name, s.Weight)
		}
		if s.Adapter == "http" && s.URL == "" {
			return fmt.Errorf("source %s: http adapter requires a url", s.Name)
		}
	}
	if c.Retry.MaxDelayMs < c.Retry.BaseDelayMs {
		return fmt.Errorf("retry max_delay_ms (%d) must be >= base_delay_ms (%d)",
			c.Retry.MaxDelayMs, c.Retry.BaseDelayMs)
	}
	return nil
}
