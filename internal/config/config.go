// Package config defines the top-level configuration for the oddsmesh
// node and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/oddsmesh/oddsmesh/internal/notify"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ODDSMESH_* environment variables.
type Config struct {
	Node     NodeConfig     `toml:"node"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Feed     FeedConfig     `toml:"feed"`
	Scanner  ScannerConfig  `toml:"scanner"`
	Detect   DetectConfig   `toml:"detect"`
	Signal   SignalConfig   `toml:"signal"`
	Registry RegistryConfig `toml:"registry"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Stats    StatsConfig    `toml:"stats"`
	Server   ServerConfig   `toml:"server"`
	Archive  ArchiveConfig  `toml:"archive"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// NodeConfig identifies this process in the mesh. Signals produced by the
// server-side detectors are published under this node id.
type NodeConfig struct {
	ID     string   `toml:"id"`
	Sports []string `toml:"sports"`
	Books  []string `toml:"books"`
}

// RedisConfig holds connection parameters for the shared coordination store.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds connection parameters for the write-only history
// store. The core never reads it back for control flow.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters for history
// archives.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// FeedConfig holds parameters for the upstream normalized odds feed.
type FeedConfig struct {
	// WSURL is the upstream WebSocket feed. Leave empty to disable the
	// streaming consumer.
	WSURL string `toml:"ws_url"`
	// BaseURL is the provider REST endpoint used by the poller.
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	// PollInterval drives the REST poller; zero disables polling.
	PollInterval duration `toml:"poll_interval"`
	Sports       []string `toml:"sports"`
}

// ScannerConfig holds arbitrage detection parameters.
type ScannerConfig struct {
	// Markets lists the market strategies to scan: moneyline, spread, total.
	Markets []string `toml:"markets"`
	// MinProfit filters opportunities below this profit percentage.
	MinProfit float64 `toml:"min_profit"`
	// ExpiryHorizon is the validity window stamped on each detection.
	ExpiryHorizon duration `toml:"expiry_horizon"`
}

// DetectConfig selects and tunes the server-side detection agents.
type DetectConfig struct {
	// Active lists the detectors to run; empty runs all registered.
	Active []string       `toml:"active"`
	Params map[string]any `toml:"params"`
}

// SignalConfig tunes the signal bus.
type SignalConfig struct {
	DedupWindow     duration `toml:"dedup_window"`
	CleanupInterval duration `toml:"cleanup_interval"`
}

// RegistryConfig tunes the node ledger.
type RegistryConfig struct {
	// LivenessWindow is how long a node stays live after its last heartbeat.
	LivenessWindow duration `toml:"liveness_window"`
}

// GatewayConfig tunes the client fan-out gateway.
type GatewayConfig struct {
	// FreeDelay is the deferral window applied to arbitrage deliveries for
	// free-tier connections.
	FreeDelay duration `toml:"free_delay"`
	// TierSecret verifies tier tokens minted by the billing system.
	TierSecret string `toml:"tier_secret"`
	// PublishLimit caps node publishes per PublishWindow over the gateway.
	PublishLimit  int      `toml:"publish_limit"`
	PublishWindow duration `toml:"publish_window"`
}

// StatsConfig tunes the periodic network-stats broadcast.
type StatsConfig struct {
	Interval duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects mutating REST endpoints; empty disables auth.
	APIKey string `toml:"api_key"`
	// RateLimit caps requests per client IP per RateWindow; zero disables.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// ArchiveConfig holds history archival parameters.
type ArchiveConfig struct {
	RetentionDays int `toml:"retention_days"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// MinProfit gates arbitrage alerts; detections below it are not sent.
	MinProfit float64 `toml:"min_profit"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Node: NodeConfig{
			ID:     "oddsmesh-server",
			Sports: []string{"nfl", "nba", "mlb", "nhl"},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "oddsmesh",
			User:          "oddsmesh",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "oddsmesh-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Feed: FeedConfig{
			PollInterval: duration{30 * time.Second},
			Sports:       []string{"nfl", "nba", "mlb", "nhl"},
		},
		Scanner: ScannerConfig{
			Markets:       []string{"moneyline", "spread", "total"},
			MinProfit:     0,
			ExpiryHorizon: duration{30 * time.Second},
		},
		Detect: DetectConfig{
			Active: []string{"steam", "value"},
			Params: map[string]any{},
		},
		Signal: SignalConfig{
			DedupWindow:     duration{5 * time.Second},
			CleanupInterval: duration{60 * time.Second},
		},
		Registry: RegistryConfig{
			LivenessWindow: duration{90 * time.Second},
		},
		Gateway: GatewayConfig{
			FreeDelay:     duration{30 * time.Second},
			PublishLimit:  10,
			PublishWindow: duration{time.Minute},
		},
		Stats: StatsConfig{
			Interval: duration{30 * time.Second},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   0,
			RateWindow:  duration{time.Second},
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
		},
		Notify: NotifyConfig{
			Events:    []string{notify.EventArbDetected, notify.EventSteamDetected, notify.EventError},
			MinProfit: 1.0,
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"detect":  true,
	"relay":   true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validMarkets enumerates the scannable market types.
var validMarkets = map[string]bool{
	"moneyline": true,
	"spread":    true,
	"total":     true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, detect, relay, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Node identity is required wherever the server itself publishes.
	if (mode == "serve" || mode == "detect") && strings.TrimSpace(c.Node.ID) == "" {
		errs = append(errs, "node: id must not be empty for mode "+c.Mode)
	}

	// Redis is the coordination point for every mode but archive.
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Postgres is required for modes that write history.
	if mode == "serve" || mode == "detect" || mode == "archive" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3 is required only for archive mode.
	if mode == "archive" {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Scanner
	if len(c.Scanner.Markets) == 0 {
		errs = append(errs, "scanner: at least one market must be configured")
	}
	for _, m := range c.Scanner.Markets {
		if !validMarkets[strings.ToLower(m)] {
			errs = append(errs, fmt.Sprintf("scanner: unknown market %q (valid: moneyline, spread, total)", m))
		}
	}
	if c.Scanner.MinProfit < 0 {
		errs = append(errs, "scanner: min_profit must be >= 0")
	}
	if c.Scanner.ExpiryHorizon.Duration <= 0 {
		errs = append(errs, "scanner: expiry_horizon must be positive")
	}

	// Signal bus
	if c.Signal.DedupWindow.Duration < 0 {
		errs = append(errs, "signal: dedup_window must not be negative")
	}

	// Registry
	if c.Registry.LivenessWindow.Duration <= 0 {
		errs = append(errs, "registry: liveness_window must be positive")
	}

	// Gateway
	if c.Gateway.FreeDelay.Duration < 0 {
		errs = append(errs, "gateway: free_delay must not be negative")
	}
	if c.Gateway.PublishLimit < 0 {
		errs = append(errs, "gateway: publish_limit must be >= 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be positive when rate_limit is set")
		}
	}

	// Stats
	if c.Stats.Interval.Duration <= 0 {
		errs = append(errs, "stats: interval must be positive")
	}

	// Notify: chat id and token travel together.
	tgToken := c.Notify.TelegramToken != ""
	tgChat := c.Notify.TelegramChatID != ""
	if tgToken != tgChat {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
