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
// built-in defaults, applies PIPWATCH_* environment variable overrides, and
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

// applyEnvOverrides reads well-known PIPWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "PIPWATCH_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "PIPWATCH_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "PIPWATCH_DATABASE_HOST")
	setInt(&cfg.Database.Port, "PIPWATCH_DATABASE_PORT")
	setStr(&cfg.Database.Database, "PIPWATCH_DATABASE_NAME")
	setStr(&cfg.Database.User, "PIPWATCH_DATABASE_USER")
	setStr(&cfg.Database.Password, "PIPWATCH_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "PIPWATCH_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "PIPWATCH_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "PIPWATCH_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "PIPWATCH_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PIPWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PIPWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PIPWATCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PIPWATCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PIPWATCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PIPWATCH_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PIPWATCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PIPWATCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "PIPWATCH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PIPWATCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PIPWATCH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PIPWATCH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PIPWATCH_S3_FORCE_PATH_STYLE")

	// ── TwelveData ──
	setStr(&cfg.TwelveData.ApiKey, "PIPWATCH_TWELVEDATA_API_KEY")
	setStr(&cfg.TwelveData.BaseURL, "PIPWATCH_TWELVEDATA_BASE_URL")
	setDuration(&cfg.TwelveData.Timeout, "PIPWATCH_TWELVEDATA_TIMEOUT")
	setInt(&cfg.TwelveData.RateLimit, "PIPWATCH_TWELVEDATA_RATE_LIMIT")
	setDuration(&cfg.TwelveData.RateWindow, "PIPWATCH_TWELVEDATA_RATE_WINDOW")
	setDuration(&cfg.TwelveData.QuoteTTL, "PIPWATCH_TWELVEDATA_QUOTE_TTL")

	// ── Monitor ──
	setDuration(&cfg.Monitor.Interval, "PIPWATCH_MONITOR_INTERVAL")
	setDuration(&cfg.Monitor.QuoteTimeout, "PIPWATCH_MONITOR_QUOTE_TIMEOUT")
	setInt(&cfg.Monitor.MaxConcurrentQuotes, "PIPWATCH_MONITOR_MAX_CONCURRENT_QUOTES")
	setDuration(&cfg.Monitor.CloseTimeout, "PIPWATCH_MONITOR_CLOSE_TIMEOUT")
	setBool(&cfg.Monitor.LeaderLock, "PIPWATCH_MONITOR_LEADER_LOCK")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "PIPWATCH_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "PIPWATCH_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PIPWATCH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PIPWATCH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PIPWATCH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.ApiKey, "PIPWATCH_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PIPWATCH_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PIPWATCH_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PIPWATCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PIPWATCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PIPWATCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PIPWATCH_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PIPWATCH_MODE")
	setStr(&cfg.LogLevel, "PIPWATCH_LOG_LEVEL")
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
