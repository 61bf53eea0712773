package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
	if cfg.Mode != "serve" {
		t.Errorf("default mode = %q, want serve", cfg.Mode)
	}
	if cfg.Scanner.ExpiryHorizon.Duration != 30*time.Second {
		t.Errorf("default expiry horizon = %v, want 30s", cfg.Scanner.ExpiryHorizon.Duration)
	}
	if cfg.Gateway.FreeDelay.Duration != 30*time.Second {
		t.Errorf("default free delay = %v, want 30s", cfg.Gateway.FreeDelay.Duration)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "turbo" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"empty redis addr", func(c *Config) { c.Redis.Addr = "" }},
		{"unknown market", func(c *Config) { c.Scanner.Markets = []string{"futures"} }},
		{"no markets", func(c *Config) { c.Scanner.Markets = nil }},
		{"negative min profit", func(c *Config) { c.Scanner.MinProfit = -1 }},
		{"zero liveness", func(c *Config) { c.Registry.LivenessWindow.Duration = 0 }},
		{"bad server port", func(c *Config) { c.Server.Port = 70000 }},
		{"telegram token without chat", func(c *Config) { c.Notify.TelegramToken = "tok" }},
		{"empty node id in serve", func(c *Config) { c.Node.ID = " " }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

func TestRelayModeSkipsPostgres(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "relay"
	cfg.Node.ID = ""
	cfg.Postgres = PostgresConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("relay mode should not require postgres or node id, got: %v", err)
	}
}

func TestLoadAppliesFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "detect"
log_level = "debug"

[node]
id = "file-node"

[scanner]
min_profit = 0.5
expiry_horizon = "45s"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ODDSMESH_NODE_ID", "env-node")
	t.Setenv("ODDSMESH_SCANNER_MARKETS", "moneyline, spread")
	t.Setenv("ODDSMESH_GATEWAY_FREE_DELAY", "10s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Env beats file, file beats defaults.
	if cfg.Node.ID != "env-node" {
		t.Errorf("node id = %q, want env-node", cfg.Node.ID)
	}
	if cfg.Mode != "detect" {
		t.Errorf("mode = %q, want detect", cfg.Mode)
	}
	if cfg.Scanner.MinProfit != 0.5 {
		t.Errorf("min profit = %v, want 0.5", cfg.Scanner.MinProfit)
	}
	if cfg.Scanner.ExpiryHorizon.Duration != 45*time.Second {
		t.Errorf("expiry horizon = %v, want 45s", cfg.Scanner.ExpiryHorizon.Duration)
	}
	if len(cfg.Scanner.Markets) != 2 || cfg.Scanner.Markets[0] != "moneyline" || cfg.Scanner.Markets[1] != "spread" {
		t.Errorf("markets = %v, want [moneyline spread]", cfg.Scanner.Markets)
	}
	if cfg.Gateway.FreeDelay.Duration != 10*time.Second {
		t.Errorf("free delay = %v, want 10s", cfg.Gateway.FreeDelay.Duration)
	}
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.Password = "hunter2"
	cfg.Postgres.Password = "hunter2"
	cfg.Gateway.TierSecret = "tier-secret"
	cfg.Notify.TelegramToken = "bot-token"

	red := RedactedConfig(&cfg)

	if red.Redis.Password != "***" || red.Postgres.Password != "***" ||
		red.Gateway.TierSecret != "***" || red.Notify.TelegramToken != "***" {
		t.Error("secrets not redacted")
	}
	if cfg.Redis.Password != "hunter2" {
		t.Error("original config mutated")
	}

	// Mutating a redacted slice must not touch the original.
	red.Scanner.Markets[0] = "mutated"
	if cfg.Scanner.Markets[0] == "mutated" {
		t.Error("redacted copy shares slice storage with original")
	}
}
