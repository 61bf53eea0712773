package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ODDSMESH_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ODDSMESH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Node ──
	setStr(&cfg.Node.ID, "ODDSMESH_NODE_ID")
	setStringSlice(&cfg.Node.Sports, "ODDSMESH_NODE_SPORTS")
	setStringSlice(&cfg.Node.Books, "ODDSMESH_NODE_BOOKS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ODDSMESH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ODDSMESH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ODDSMESH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ODDSMESH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ODDSMESH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ODDSMESH_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ODDSMESH_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ODDSMESH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ODDSMESH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ODDSMESH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ODDSMESH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ODDSMESH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ODDSMESH_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ODDSMESH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ODDSMESH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ODDSMESH_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ODDSMESH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ODDSMESH_S3_REGION")
	setStr(&cfg.S3.Bucket, "ODDSMESH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ODDSMESH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ODDSMESH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ODDSMESH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ODDSMESH_S3_FORCE_PATH_STYLE")

	// ── Feed ──
	setStr(&cfg.Feed.WSURL, "ODDSMESH_FEED_WS_URL")
	setStr(&cfg.Feed.BaseURL, "ODDSMESH_FEED_BASE_URL")
	setStr(&cfg.Feed.APIKey, "ODDSMESH_FEED_API_KEY")
	setDuration(&cfg.Feed.PollInterval, "ODDSMESH_FEED_POLL_INTERVAL")
	setStringSlice(&cfg.Feed.Sports, "ODDSMESH_FEED_SPORTS")

	// ── Scanner ──
	setStringSlice(&cfg.Scanner.Markets, "ODDSMESH_SCANNER_MARKETS")
	setFloat64(&cfg.Scanner.MinProfit, "ODDSMESH_SCANNER_MIN_PROFIT")
	setDuration(&cfg.Scanner.ExpiryHorizon, "ODDSMESH_SCANNER_EXPIRY_HORIZON")

	// ── Detect ──
	setStringSlice(&cfg.Detect.Active, "ODDSMESH_DETECT_ACTIVE")

	// ── Signal ──
	setDuration(&cfg.Signal.DedupWindow, "ODDSMESH_SIGNAL_DEDUP_WINDOW")
	setDuration(&cfg.Signal.CleanupInterval, "ODDSMESH_SIGNAL_CLEANUP_INTERVAL")

	// ── Registry ──
	setDuration(&cfg.Registry.LivenessWindow, "ODDSMESH_REGISTRY_LIVENESS_WINDOW")

	// ── Gateway ──
	setDuration(&cfg.Gateway.FreeDelay, "ODDSMESH_GATEWAY_FREE_DELAY")
	setStr(&cfg.Gateway.TierSecret, "ODDSMESH_GATEWAY_TIER_SECRET")
	setInt(&cfg.Gateway.PublishLimit, "ODDSMESH_GATEWAY_PUBLISH_LIMIT")
	setDuration(&cfg.Gateway.PublishWindow, "ODDSMESH_GATEWAY_PUBLISH_WINDOW")

	// ── Stats ──
	setDuration(&cfg.Stats.Interval, "ODDSMESH_STATS_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ODDSMESH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ODDSMESH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ODDSMESH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ODDSMESH_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ODDSMESH_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "ODDSMESH_SERVER_RATE_WINDOW")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "ODDSMESH_ARCHIVE_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ODDSMESH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ODDSMESH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ODDSMESH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ODDSMESH_NOTIFY_EVENTS")
	setFloat64(&cfg.Notify.MinProfit, "ODDSMESH_NOTIFY_MIN_PROFIT")

	// ── Top-level ──
	setStr(&cfg.Mode, "ODDSMESH_MODE")
	setStr(&cfg.LogLevel, "ODDSMESH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				cleaned = append(cleaned, s)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
