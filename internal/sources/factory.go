package sources

import (
	"fmt"
	"strings"

	"github.com/quotefeed/quotefeed/internal/observ"
)

// AdapterConfig describes how to construct one source adapter.
type AdapterConfig struct {
	Name               string `yaml:"name"`
	Adapter            string `yaml:"adapter"` // "mock" | "sim" | "http"
	URL                string `yaml:"url"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
}

// New creates the appropriate source adapter for the configuration.
func New(config AdapterConfig) (Source, error) {
	adapter := strings.ToLower(strings.TrimSpace(config.Adapter))

	switch adapter {
	case "mock":
		observ.Log("source_created", map[string]any{"name": config.Name, "type": "mock"})
		return NewMockSource(config.Name), nil

	case "sim":
		observ.Log("source_created", map[string]any{"name": config.Name, "type": "sim"})
		return NewSimSource(config.Name), nil

	case "http":
		src, err := NewHTTPSource(HTTPSourceConfig{
			Name:               config.Name,
			BaseURL:            config.URL,
			RateLimitPerMinute: config.RateLimitPerMinute,
			TimeoutSeconds:     config.TimeoutSeconds,
		})
		if err != nil {
			return nil, err
		}
		observ.Log("source_created", map[string]any{
			"name": config.Name, "type": "http", "url": config.URL,
		})
		return src, nil

	default:
		return nil, fmt.Errorf("unknown source adapter %q for %s", config.Adapter, config.Name)
	}
}
