package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
currency:
  canonical: USD
  rates:
    EUR: 1.10
    GBP: 1.25

detection:
  drop_threshold: 0.15
  rise_threshold: 0.20

pipeline:
  lanes: 4
  dedup_window_seconds: 600

alerts:
  queue_size: 256

sources:
  amazon:
    base_url: https://api.example.com/amazon
    targets: ["/products/electronics", "/products/home"]
    max_concurrency: 8
    rate_limit_per_minute: 120
    user_agents: ["agent-a", "agent-b"]
  ebay:
    feed_url: wss://feed.example.com/prices
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Currency.Canonical != "USD" || cfg.Currency.Rates["EUR"] != 1.10 {
		t.Errorf("Currency config wrong: %+v", cfg.Currency)
	}
	if cfg.Detection.DropThreshold != 0.15 || cfg.Detection.RiseThreshold != 0.20 {
		t.Errorf("Detection config wrong: %+v", cfg.Detection)
	}
	if cfg.Pipeline.Lanes != 4 || cfg.Pipeline.DedupWindow() != 10*time.Minute {
		t.Errorf("Pipeline config wrong: %+v", cfg.Pipeline)
	}

	amazon, ok := cfg.Sources["amazon"]
	if !ok {
		t.Fatal("Missing amazon source")
	}
	if amazon.MaxConcurrency != 8 || amazon.RateLimitPerMinute != 120 {
		t.Errorf("Amazon limits wrong: %+v", amazon)
	}
	if len(amazon.Targets) != 2 {
		t.Errorf("Amazon targets wrong: %v", amazon.Targets)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
sources:
  amazon:
    base_url: https://api.example.com/amazon
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Currency.Canonical != "USD" {
		t.Errorf("Canonical default = %s", cfg.Currency.Canonical)
	}
	if cfg.Detection.DropThreshold != 0.10 || cfg.Detection.RiseThreshold != 0.10 {
		t.Errorf("Threshold defaults wrong: %+v", cfg.Detection)
	}
	if cfg.Pipeline.Lanes != 8 || cfg.Pipeline.DedupWindowSeconds != 900 {
		t.Errorf("Pipeline defaults wrong: %+v", cfg.Pipeline)
	}
	if cfg.Alerts.QueueSize != 1024 || cfg.Alerts.DeliveryRetries != 2 {
		t.Errorf("Alert defaults wrong: %+v", cfg.Alerts)
	}

	amazon := cfg.Sources["amazon"]
	if amazon.MaxConcurrency != 4 || amazon.RateLimitPerMinute != 60 ||
		amazon.MaxRetries != 3 || amazon.BackoffBase() != 500*time.Millisecond ||
		amazon.Timeout() != 30*time.Second {
		t.Errorf("Source defaults wrong: %+v", amazon)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"negative drop threshold", `
detection:
  drop_threshold: -0.10
`},
		{"negative rise threshold", `
detection:
  rise_threshold: -0.10
`},
		{"zero rate", `
currency:
  rates:
    EUR: 0
`},
		{"source without url", `
sources:
  amazon:
    max_concurrency: 2
`},
		{"broken yaml", `sources: [`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.yaml)); err == nil {
				t.Error("Expected parse error")
			}
		})
	}
}

func TestParse_DropThresholdIsMagnitude(t *testing.T) {
	// 0.10 means "alert on drops of 10% or more"; the sign belongs to the
	// engine, not the operator.
	cfg, err := Parse([]byte(`
detection:
  drop_threshold: 0.10
`))
	if err != nil {
		t.Fatalf("Parse rejected a positive drop_threshold: %v", err)
	}
	if cfg.Detection.DropThreshold != 0.10 {
		t.Errorf("DropThreshold = %v, want 0.10", cfg.Detection.DropThreshold)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricewatch.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Sources) != 2 {
		t.Errorf("Expected 2 sources, got %d", len(cfg.Sources))
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
