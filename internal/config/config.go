// Package config defines the top-level configuration for the trigger
// engine and webhook gateway, and provides validation helpers.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by HMT_* environment variables.
type Config struct {
	Engine  EngineConfig  `toml:"engine"`
	Store   StoreConfig   `toml:"store"`
	Redis   RedisConfig   `toml:"redis"`
	Broker  BrokerConfig  `toml:"broker"`
	Feed    FeedConfig    `toml:"feed"`
	Webhook WebhookConfig `toml:"webhook"`
	Server  ServerConfig  `toml:"server"`
	Archive ArchiveConfig `toml:"archive"`
	Notify  NotifyConfig  `toml:"notify"`
	LogLevel string       `toml:"log_level"`
}

// EngineConfig holds Supervisor/Executor timing parameters.
type EngineConfig struct {
	Enabled                bool     `toml:"enabled"`
	MaxRetries              int      `toml:"max_retries"`
	RetryBackoff            duration `toml:"retry_backoff_ms"`
	HealthCheckInterval     duration `toml:"health_check_interval_ms"`
	HeartbeatInterval       duration `toml:"heartbeat_interval_ms"`
	ReconnectDelay          duration `toml:"reconnect_delay_ms"`
}

// StoreConfig holds PostgreSQL connection parameters.
type StoreConfig struct {
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
	RunMigrations bool  `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// BrokerConfig holds default credentials for the upstream order-placement
// API. Per-account overrides come from domain.BrokerConnection rows; these
// are only the defaults used when no account-specific value is set.
type BrokerConfig struct {
	BaseURL     string `toml:"base_url"`
	APIKey      string `toml:"api_key"`
	AccessToken string `toml:"access_token"`
}

// FeedConfig holds the upstream market-data websocket endpoint.
type FeedConfig struct {
	WSURL string `toml:"ws_url"`
}

// WebhookConfig controls the TradingView-style webhook gateway.
type WebhookConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// ServerConfig holds HTTP control-surface parameters (/health, /start,
// /stop, /stats).
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// ArchiveConfig holds the trade-log archiver's S3 destination and
// retention policy.
type ArchiveConfig struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "1000ms") as well as plain millisecond integers.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5s" or "30s". A bare integer is read as a
// number of milliseconds.
func (d *duration) UnmarshalText(text []byte) error {
	if ms, err := strconv.Atoi(string(text)); err == nil {
		d.Duration = time.Duration(ms) * time.Millisecond
		return nil
	}
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Enabled:             true,
			MaxRetries:          2,
			RetryBackoff:        duration{1 * time.Second},
			HealthCheckInterval: duration{30 * time.Second},
			HeartbeatInterval:   duration{10 * time.Second},
			ReconnectDelay:      duration{5 * time.Second},
		},
		Store: StoreConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Broker: BrokerConfig{
			BaseURL: "https://api.broker.example/orders/regular",
		},
		Feed: FeedConfig{
			WSURL: "wss://feed.broker.example/ws",
		},
		Webhook: WebhookConfig{
			Enabled: true,
			Port:    8181,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Archive: ArchiveConfig{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "hmt-trade-log",
			UseSSL:         false,
			ForcePathStyle: true,
			RetentionDays:  90,
		},
		Notify: NotifyConfig{
			Events: []string{"trigger_fired", "trigger_failed", "order_placed"},
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if strings.TrimSpace(c.Store.DSN) == "" {
		if c.Store.Host == "" {
			errs = append(errs, "store: host must not be empty (or set store.dsn)")
		}
		if c.Store.Port <= 0 || c.Store.Port > 65535 {
			errs = append(errs, fmt.Sprintf("store: port must be 1-65535, got %d", c.Store.Port))
		}
		if c.Store.Database == "" {
			errs = append(errs, "store: database must not be empty")
		}
	}
	if c.Store.PoolMaxConns < 1 {
		errs = append(errs, "store: pool_max_conns must be >= 1")
	}
	if c.Store.PoolMinConns < 0 {
		errs = append(errs, "store: pool_min_conns must be >= 0")
	}
	if c.Store.PoolMinConns > c.Store.PoolMaxConns {
		errs = append(errs, "store: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Broker.BaseURL == "" {
		errs = append(errs, "broker: base_url must not be empty")
	}

	if c.Feed.WSURL == "" {
		errs = append(errs, "feed: ws_url must not be empty")
	}

	if c.Engine.MaxRetries < 0 {
		errs = append(errs, "engine: max_retries must be >= 0")
	}
	if c.Engine.RetryBackoff.Duration <= 0 {
		errs = append(errs, "engine: retry_backoff_ms must be > 0")
	}
	if c.Engine.HeartbeatInterval.Duration <= 0 {
		errs = append(errs, "engine: heartbeat_interval_ms must be > 0")
	}

	if c.Webhook.Enabled && (c.Webhook.Port <= 0 || c.Webhook.Port > 65535) {
		errs = append(errs, fmt.Sprintf("webhook: port must be 1-65535, got %d", c.Webhook.Port))
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive: bucket must not be empty when enabled")
		}
		if c.Archive.RetentionDays <= 0 {
			errs = append(errs, "archive: retention_days must be > 0 when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
