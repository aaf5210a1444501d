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
// built-in defaults, applies HMT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known HMT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setBool(&cfg.Engine.Enabled, "HMT_ENGINE_ENABLED")
	setInt(&cfg.Engine.MaxRetries, "HMT_MAX_RETRIES")
	setDuration(&cfg.Engine.RetryBackoff, "HMT_RETRY_BACKOFF_MS")
	setDuration(&cfg.Engine.HealthCheckInterval, "HMT_HEALTH_CHECK_INTERVAL_MS")
	setDuration(&cfg.Engine.HeartbeatInterval, "HMT_HEARTBEAT_INTERVAL_MS")
	setDuration(&cfg.Engine.ReconnectDelay, "HMT_RECONNECT_DELAY_MS")

	// ── Store ──
	setStr(&cfg.Store.DSN, "HMT_STORE_DSN")
	setStr(&cfg.Store.Host, "HMT_STORE_HOST")
	setInt(&cfg.Store.Port, "HMT_STORE_PORT")
	setStr(&cfg.Store.Database, "HMT_STORE_DATABASE")
	setStr(&cfg.Store.User, "HMT_STORE_USER")
	setStr(&cfg.Store.Password, "HMT_STORE_PASSWORD")
	setStr(&cfg.Store.SSLMode, "HMT_STORE_SSL_MODE")
	setInt(&cfg.Store.PoolMaxConns, "HMT_STORE_POOL_MAX_CONNS")
	setInt(&cfg.Store.PoolMinConns, "HMT_STORE_POOL_MIN_CONNS")
	setBool(&cfg.Store.RunMigrations, "HMT_STORE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "HMT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HMT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HMT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HMT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HMT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HMT_REDIS_TLS_ENABLED")

	// ── Broker ──
	setStr(&cfg.Broker.BaseURL, "HMT_BROKER_BASE_URL")
	setStr(&cfg.Broker.APIKey, "HMT_BROKER_API_KEY")
	setStr(&cfg.Broker.AccessToken, "HMT_BROKER_ACCESS_TOKEN")

	// ── Feed ──
	setStr(&cfg.Feed.WSURL, "HMT_FEED_WS_URL")

	// ── Webhook ──
	setBool(&cfg.Webhook.Enabled, "HMT_WEBHOOK_ENABLED")
	setInt(&cfg.Webhook.Port, "HMT_WEBHOOK_PORT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "HMT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "HMT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "HMT_SERVER_CORS_ORIGINS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "HMT_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "HMT_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "HMT_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "HMT_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "HMT_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "HMT_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.UseSSL, "HMT_ARCHIVE_USE_SSL")
	setBool(&cfg.Archive.ForcePathStyle, "HMT_ARCHIVE_FORCE_PATH_STYLE")
	setInt(&cfg.Archive.RetentionDays, "HMT_ARCHIVE_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HMT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HMT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HMT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HMT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "HMT_LOG_LEVEL")
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
			return
		}
		if ms, err := strconv.Atoi(v); err == nil {
			dst.Duration = time.Duration(ms) * time.Millisecond
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
