package config

import "testing"

func TestNewConfigIsValid(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.MaxRedirects != 10 || cfg.ConnectTimeout.Seconds() != 30 || cfg.TotalTimeout.Seconds() != 300 {
		t.Fatalf("unexpected transfer defaults: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"chunk not multiple of 4", func(c *Config) { c.DecodeChunkSize = 1022 }},
		{"zero chunk", func(c *Config) { c.DecodeChunkSize = 0 }},
		{"negative redirects", func(c *Config) { c.MaxRedirects = -1 }},
		{"zero timeout", func(c *Config) { c.TotalTimeout = 0 }},
		{"milestone too large", func(c *Config) { c.MilestoneStep = 101 }},
		{"negative minimum", func(c *Config) { c.MinimumSize = -1 }},
		{"empty user agent", func(c *Config) { c.UserAgent = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestRedactedForLoggingRendersDurations(t *testing.T) {
	snap := NewConfig().RedactedForLogging()
	if snap["TotalTimeout"] != "5m0s" {
		t.Fatalf("unexpected TotalTimeout rendering: %v", snap["TotalTimeout"])
	}
}
