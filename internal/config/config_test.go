package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Gemini.Timeout = "30s"
	cfg.Feeds.Timeout = "30s"
	cfg.Steps.Dedup.RetentionDays = 10
	cfg.Steps.Merge.LookbackDays = 3
	cfg.Steps.Merge.SimilarityThreshold = 0.85
	cfg.Steps.Select.TargetCount = 10
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validate(validConfig()); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero retention", func(c *Config) { c.Steps.Dedup.RetentionDays = 0 }},
		{"zero lookback", func(c *Config) { c.Steps.Merge.LookbackDays = 0 }},
		{"zero target count", func(c *Config) { c.Steps.Select.TargetCount = 0 }},
		{"threshold above one", func(c *Config) { c.Steps.Merge.SimilarityThreshold = 1.5 }},
		{"negative threshold", func(c *Config) { c.Steps.Merge.SimilarityThreshold = -0.1 }},
		{"bad gemini timeout", func(c *Config) { c.Gemini.Timeout = "soon" }},
		{"bad feed timeout", func(c *Config) { c.Feeds.Timeout = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := validate(cfg); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestTimeoutParsers(t *testing.T) {
	cfg := validConfig()
	cfg.Gemini.Timeout = "45s"
	cfg.Feeds.Timeout = "2m"
	if got := cfg.GeminiTimeout(); got != 45*time.Second {
		t.Errorf("GeminiTimeout = %v, want 45s", got)
	}
	if got := cfg.FeedTimeout(); got != 2*time.Minute {
		t.Errorf("FeedTimeout = %v, want 2m", got)
	}

	// Unparsable durations fall back to the default rather than panicking.
	cfg.Gemini.Timeout = "whenever"
	if got := cfg.GeminiTimeout(); got != 30*time.Second {
		t.Errorf("fallback GeminiTimeout = %v, want 30s", got)
	}
}
