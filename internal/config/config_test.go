package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default mode is api",
			check:  func(c *Config) bool { return c.Mode == "api" },
			expect: "api",
		},
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 8080",
			check:  func(c *Config) bool { return c.Port == 8080 },
			expect: "8080",
		},
		{
			name:   "default log level is info",
			check:  func(c *Config) bool { return c.LogLevel == "info" },
			expect: "info",
		},
		{
			name:   "default log format is json",
			check:  func(c *Config) bool { return c.LogFormat == "json" },
			expect: "json",
		},
		{
			name:   "default metrics path",
			check:  func(c *Config) bool { return c.MetricsPath == "/metrics" },
			expect: "/metrics",
		},
		{
			name:   "default execute policy is open",
			check:  func(c *Config) bool { return c.ExecutePolicyName == "open" },
			expect: "open",
		},
		{
			name:   "default max execute amount cents",
			check:  func(c *Config) bool { return c.MaxExecuteAmountCents == 100 },
			expect: "100",
		},
		{
			name:   "default cors allowed origins",
			check:  func(c *Config) bool { return len(c.CORSAllowedOrigins) == 1 && c.CORSAllowedOrigins[0] == "*" },
			expect: `["*"]`,
		},
		{
			name:   "default idempotency ttl is 24h",
			check:  func(c *Config) bool { return c.IdempotencyTTL.Hours() == 24 },
			expect: "24h",
		},
		{
			name:   "default confirmation token ttl is 5m",
			check:  func(c *Config) bool { return c.ConfirmationTokenTTL.Minutes() == 5 },
			expect: "5m",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" },
			expect: "0.0.0.0:8080",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}

func TestPolicy(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ExecutePolicy
	}{
		{"confirm lowercase", "confirm", PolicyConfirm},
		{"strict lowercase", "strict", PolicyStrict},
		{"strict mixed case", "Strict", PolicyStrict},
		{"open explicit", "open", PolicyOpen},
		{"garbage defaults to open", "not-a-policy", PolicyOpen},
		{"empty defaults to open", "", PolicyOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{ExecutePolicyName: tt.in}
			if got := c.Policy(); got != tt.want {
				t.Errorf("Policy() = %v, want %v", got, tt.want)
			}
		})
	}
}
