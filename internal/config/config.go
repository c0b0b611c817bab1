// Package config loads the pipeline configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root pipeline configuration.
type Config struct {
	// Canonical currency and conversion rates into it.
	Currency CurrencyConfig `yaml:"currency"`

	// Change detection thresholds, as positive fractions of the old price.
	Detection DetectionConfig `yaml:"detection"`

	// Dedup and processing settings.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Alerting settings.
	Alerts AlertConfig `yaml:"alerts"`

	// Per-source fetch configuration, keyed by source name.
	Sources map[string]SourceConfig `yaml:"sources"`
}

// CurrencyConfig sets the canonical currency and the rate table.
type CurrencyConfig struct {
	Canonical string             `yaml:"canonical"`
	Rates     map[string]float64 `yaml:"rates"`
}

// DetectionConfig holds the classification thresholds. Both are positive
// magnitudes; drop_threshold 0.10 fires on moves of -10% or worse.
type DetectionConfig struct {
	DropThreshold float64 `yaml:"drop_threshold"` // default 0.10
	RiseThreshold float64 `yaml:"rise_threshold"` // default 0.10
}

// PipelineConfig holds processing settings.
type PipelineConfig struct {
	Lanes              int `yaml:"lanes"`                 // default 8
	DedupWindowSeconds int `yaml:"dedup_window_seconds"`  // default 900
	DedupMaxEntries    int `yaml:"dedup_max_entries"`     // default 100000
	CycleIntervalSecs  int `yaml:"cycle_interval_seconds"` // default 300
}

// DedupWindow returns the dedup window as a duration.
func (p PipelineConfig) DedupWindow() time.Duration {
	return time.Duration(p.DedupWindowSeconds) * time.Second
}

// CycleInterval returns the cycle interval as a duration.
func (p PipelineConfig) CycleInterval() time.Duration {
	return time.Duration(p.CycleIntervalSecs) * time.Second
}

// AlertConfig holds alert dispatch settings.
type AlertConfig struct {
	QueueSize       int `yaml:"queue_size"`       // default 1024
	DeliveryRetries int `yaml:"delivery_retries"` // default 2
}

// SourceConfig configures fetching for one source.
type SourceConfig struct {
	BaseURL            string   `yaml:"base_url"`
	Targets            []string `yaml:"targets"`
	MaxConcurrency     int      `yaml:"max_concurrency"`       // default 4
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"` // default 60
	MaxRetries         int      `yaml:"max_retries"`           // default 3
	BackoffBaseMs      int      `yaml:"backoff_base_ms"`       // default 500
	TimeoutSeconds     int      `yaml:"timeout_seconds"`       // default 30
	UserAgents         []string `yaml:"user_agents"`
	FeedURL            string   `yaml:"feed_url"` // optional websocket push feed
}

// BackoffBase returns the retry backoff base as a duration.
func (s SourceConfig) BackoffBase() time.Duration {
	return time.Duration(s.BackoffBaseMs) * time.Millisecond
}

// Timeout returns the per-attempt timeout as a duration.
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// setDefaults applies default values to configuration.
func setDefaults(cfg *Config) {
	if cfg.Currency.Canonical == "" {
		cfg.Currency.Canonical = "USD"
	}
	if cfg.Detection.DropThreshold == 0 {
		cfg.Detection.DropThreshold = 0.10
	}
	if cfg.Detection.RiseThreshold == 0 {
		cfg.Detection.RiseThreshold = 0.10
	}
	if cfg.Pipeline.Lanes == 0 {
		cfg.Pipeline.Lanes = 8
	}
	if cfg.Pipeline.DedupWindowSeconds == 0 {
		cfg.Pipeline.DedupWindowSeconds = 900
	}
	if cfg.Pipeline.DedupMaxEntries == 0 {
		cfg.Pipeline.DedupMaxEntries = 100000
	}
	if cfg.Pipeline.CycleIntervalSecs == 0 {
		cfg.Pipeline.CycleIntervalSecs = 300
	}
	if cfg.Alerts.QueueSize == 0 {
		cfg.Alerts.QueueSize = 1024
	}
	if cfg.Alerts.DeliveryRetries == 0 {
		cfg.Alerts.DeliveryRetries = 2
	}

	for name, src := range cfg.Sources {
		if src.MaxConcurrency == 0 {
			src.MaxConcurrency = 4
		}
		if src.RateLimitPerMinute == 0 {
			src.RateLimitPerMinute = 60
		}
		if src.MaxRetries == 0 {
			src.MaxRetries = 3
		}
		if src.BackoffBaseMs == 0 {
			src.BackoffBaseMs = 500
		}
		if src.TimeoutSeconds == 0 {
			src.TimeoutSeconds = 30
		}
		cfg.Sources[name] = src
	}
}

// validate validates the configuration.
func validate(cfg *Config) error {
	if cfg.Detection.DropThreshold <= 0 {
		return fmt.Errorf("drop_threshold must be positive, got %v", cfg.Detection.DropThreshold)
	}
	if cfg.Detection.RiseThreshold <= 0 {
		return fmt.Errorf("rise_threshold must be positive, got %v", cfg.Detection.RiseThreshold)
	}
	for currency, rate := range cfg.Currency.Rates {
		if rate <= 0 {
			return fmt.Errorf("rate for %s must be positive, got %v", currency, rate)
		}
	}
	if cfg.Pipeline.Lanes < 1 {
		return fmt.Errorf("lanes must be at least 1, got %d", cfg.Pipeline.Lanes)
	}

	for name, src := range cfg.Sources {
		if name == "" {
			return fmt.Errorf("source name must not be empty")
		}
		if src.BaseURL == "" && src.FeedURL == "" {
			return fmt.Errorf("source %s needs a base_url or feed_url", name)
		}
		if src.MaxConcurrency < 1 {
			return fmt.Errorf("source %s: max_concurrency must be at least 1", name)
		}
		if src.RateLimitPerMinute < 1 {
			return fmt.Errorf("source %s: rate_limit_per_minute must be at least 1", name)
		}
		if src.MaxRetries < 0 {
			return fmt.Errorf("source %s: max_retries must be non-negative", name)
		}
	}
	return nil
}
