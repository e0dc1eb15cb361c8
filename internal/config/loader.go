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
// built-in defaults, applies VIGNEX_* environment variable overrides, and
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

// applyEnvOverrides reads well-known VIGNEX_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "VIGNEX_DATABASE_DSN")
	setStr(&cfg.Database.Host, "VIGNEX_DATABASE_HOST")
	setInt(&cfg.Database.Port, "VIGNEX_DATABASE_PORT")
	setStr(&cfg.Database.Database, "VIGNEX_DATABASE_NAME")
	setStr(&cfg.Database.User, "VIGNEX_DATABASE_USER")
	setStr(&cfg.Database.Password, "VIGNEX_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "VIGNEX_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "VIGNEX_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "VIGNEX_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "VIGNEX_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "VIGNEX_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VIGNEX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VIGNEX_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VIGNEX_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "VIGNEX_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "VIGNEX_REDIS_TLS_ENABLED")

	// ── Engine ──
	setDuration(&cfg.Engine.ExpiryInterval, "VIGNEX_ENGINE_EXPIRY_INTERVAL")
	setInt(&cfg.Engine.ExpiryBatch, "VIGNEX_ENGINE_EXPIRY_BATCH")
	setDuration(&cfg.Engine.LockTTL, "VIGNEX_ENGINE_LOCK_TTL")
	setInt64(&cfg.Engine.ReferencePrice, "VIGNEX_ENGINE_REFERENCE_PRICE")
	setInt(&cfg.Engine.CreateLimit, "VIGNEX_ENGINE_CREATE_LIMIT")
	setDuration(&cfg.Engine.CreateWindow, "VIGNEX_ENGINE_CREATE_WINDOW")
	setInt64(&cfg.Engine.StartingBalance, "VIGNEX_ENGINE_STARTING_BALANCE")

	// ── Server ──
	setInt(&cfg.Server.Port, "VIGNEX_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "VIGNEX_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "VIGNEX_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "VIGNEX_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "VIGNEX_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VIGNEX_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VIGNEX_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "VIGNEX_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "VIGNEX_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "VIGNEX_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
