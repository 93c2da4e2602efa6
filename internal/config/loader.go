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
// built-in defaults, applies BATCHPOOL_* environment variable overrides, and
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

// applyEnvOverrides reads well-known BATCHPOOL_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setStr(&cfg.Market.ID, "BATCHPOOL_MARKET_ID")
	setStr(&cfg.Market.Mode, "BATCHPOOL_MARKET_MODE")
	setUint64(&cfg.Market.CommitTicks, "BATCHPOOL_MARKET_COMMIT_TICKS")
	setUint64(&cfg.Market.RevealTicks, "BATCHPOOL_MARKET_REVEAL_TICKS")
	setUint64(&cfg.Market.SettleTicks, "BATCHPOOL_MARKET_SETTLE_TICKS")
	setUint64(&cfg.Market.ClaimTicks, "BATCHPOOL_MARKET_CLAIM_TICKS")
	setInt64(&cfg.Market.FeeRateBps, "BATCHPOOL_MARKET_FEE_RATE_BPS")
	setInt64(&cfg.Market.StartBondUnits, "BATCHPOOL_MARKET_START_BOND_UNITS")
	setUint64(&cfg.Market.EmergencyTimeoutTicks, "BATCHPOOL_MARKET_EMERGENCY_TIMEOUT_TICKS")
	setInt64(&cfg.Market.PenaltyRateBps, "BATCHPOOL_MARKET_PENALTY_RATE_BPS")
	setUint64(&cfg.Market.PrimaryWindowTicks, "BATCHPOOL_MARKET_PRIMARY_WINDOW_TICKS")
	setUint64(&cfg.Market.RegisteredWindowTicks, "BATCHPOOL_MARKET_REGISTERED_WINDOW_TICKS")
	setUint64(&cfg.Market.MaxPauseTicks, "BATCHPOOL_MARKET_MAX_PAUSE_TICKS")
	setStr(&cfg.Market.AllowlistPath, "BATCHPOOL_MARKET_ALLOWLIST_PATH")
	setStr(&cfg.Market.AdminAddress, "BATCHPOOL_MARKET_ADMIN_ADDRESS")
	setStr(&cfg.Market.FeeRecipientAddress, "BATCHPOOL_MARKET_FEE_RECIPIENT_ADDRESS")

	// ── Clock ──
	setStr(&cfg.Clock.Epoch, "BATCHPOOL_CLOCK_EPOCH")
	setDuration(&cfg.Clock.TickInterval, "BATCHPOOL_CLOCK_TICK_INTERVAL")

	// ── Solver ──
	setBool(&cfg.Solver.Enabled, "BATCHPOOL_SOLVER_ENABLED")
	setStr(&cfg.Solver.Address, "BATCHPOOL_SOLVER_ADDRESS")
	setStr(&cfg.Solver.EncryptedKeyPath, "BATCHPOOL_SOLVER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Solver.KeyPassword, "BATCHPOOL_SOLVER_KEY_PASSWORD")
	setBool(&cfg.Solver.Primary, "BATCHPOOL_SOLVER_PRIMARY")
	setDuration(&cfg.Solver.PollInterval, "BATCHPOOL_SOLVER_POLL_INTERVAL")
	setInt64(&cfg.Solver.RewardShareBps, "BATCHPOOL_SOLVER_REWARD_SHARE_BPS")
	setInt64(&cfg.Solver.SpeedBonusBps, "BATCHPOOL_SOLVER_SPEED_BONUS_BPS")
	setUint64(&cfg.Solver.BonusWindowTicks, "BATCHPOOL_SOLVER_BONUS_WINDOW_TICKS")

	// ── Database ──
	setStr(&cfg.Database.DSN, "BATCHPOOL_DATABASE_DSN")
	setStr(&cfg.Database.Host, "BATCHPOOL_DATABASE_HOST")
	setInt(&cfg.Database.Port, "BATCHPOOL_DATABASE_PORT")
	setStr(&cfg.Database.Database, "BATCHPOOL_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "BATCHPOOL_DATABASE_USER")
	setStr(&cfg.Database.Password, "BATCHPOOL_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "BATCHPOOL_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "BATCHPOOL_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "BATCHPOOL_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "BATCHPOOL_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BATCHPOOL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BATCHPOOL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BATCHPOOL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BATCHPOOL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BATCHPOOL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BATCHPOOL_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "BATCHPOOL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BATCHPOOL_S3_REGION")
	setStr(&cfg.S3.Bucket, "BATCHPOOL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BATCHPOOL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BATCHPOOL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BATCHPOOL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BATCHPOOL_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BATCHPOOL_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BATCHPOOL_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BATCHPOOL_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminToken, "BATCHPOOL_SERVER_ADMIN_TOKEN")
	setInt(&cfg.Server.CommitRateLimit, "BATCHPOOL_SERVER_COMMIT_RATE_LIMIT")
	setDuration(&cfg.Server.CommitRateWindow, "BATCHPOOL_SERVER_COMMIT_RATE_WINDOW")
	setInt(&cfg.Server.APIRateLimit, "BATCHPOOL_SERVER_API_RATE_LIMIT")
	setDuration(&cfg.Server.APIRateWindow, "BATCHPOOL_SERVER_API_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BATCHPOOL_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BATCHPOOL_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BATCHPOOL_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BATCHPOOL_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "BATCHPOOL_MODE")
	setStr(&cfg.LogLevel, "BATCHPOOL_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
