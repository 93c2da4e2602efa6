// Package config defines the top-level configuration for the batchpool node
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sealedmarkets/batchpool/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BATCHPOOL_* environment variables.
type Config struct {
	Market   MarketConfig   `toml:"market"`
	Clock    ClockConfig    `toml:"clock"`
	Solver   SolverConfig   `toml:"solver"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// MarketConfig holds the auction market parameters. The pool settings are
// immutable once a market is created; changing them here and restarting
// creates a market with different rules, not a mutated one.
type MarketConfig struct {
	ID   string `toml:"id"`
	Mode string `toml:"mode"` // open | gated

	CommitTicks uint64 `toml:"commit_ticks"`
	RevealTicks uint64 `toml:"reveal_ticks"`
	SettleTicks uint64 `toml:"settle_ticks"`
	ClaimTicks  uint64 `toml:"claim_ticks"`

	FeeRateBps            int64  `toml:"fee_rate_bps"`
	StartBondUnits        int64  `toml:"start_bond_units"`
	EmergencyTimeoutTicks uint64 `toml:"emergency_timeout_ticks"`
	PenaltyRateBps        int64  `toml:"penalty_rate_bps"`
	PrimaryWindowTicks    uint64 `toml:"primary_window_ticks"`
	RegisteredWindowTicks uint64 `toml:"registered_window_ticks"`
	MaxPauseTicks         uint64 `toml:"max_pause_ticks"`

	// AllowlistPath points to a file of member addresses, one per line.
	// Required in gated mode; the root is built at startup.
	AllowlistPath string `toml:"allowlist_path"`

	AdminAddress        string `toml:"admin_address"`
	FeeRecipientAddress string `toml:"fee_recipient_address"`
}

// PoolConfig converts the market section to the engine's pool configuration.
// The allowlist root is supplied by the caller after building the tree.
func (m MarketConfig) PoolConfig(allowlistRoot common.Hash) domain.PoolConfig {
	return domain.PoolConfig{
		Mode:                  domain.PoolMode(m.Mode),
		CommitTicks:           m.CommitTicks,
		RevealTicks:           m.RevealTicks,
		SettleTicks:           m.SettleTicks,
		ClaimTicks:            m.ClaimTicks,
		FeeRateBps:            m.FeeRateBps,
		AllowlistRoot:         allowlistRoot,
		StartBondUnits:        m.StartBondUnits,
		EmergencyTimeoutTicks: m.EmergencyTimeoutTicks,
		PenaltyRateBps:        m.PenaltyRateBps,
		PrimaryWindowTicks:    m.PrimaryWindowTicks,
		RegisteredWindowTicks: m.RegisteredWindowTicks,
	}
}

// ClockConfig anchors the tick counter to wall time: one tick per interval
// since the epoch. Every node of a deployment must share both values.
type ClockConfig struct {
	Epoch        string   `toml:"epoch"` // RFC 3339
	TickInterval duration `toml:"tick_interval"`
}

// EpochTime parses the configured epoch.
func (c ClockConfig) EpochTime() (time.Time, error) {
	return time.Parse(time.RFC3339, c.Epoch)
}

// SolverConfig holds the local solver identity and reward parameters.
type SolverConfig struct {
	Enabled          bool     `toml:"enabled"`
	Address          string   `toml:"address"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
	Primary          bool     `toml:"primary"`
	PollInterval     duration `toml:"poll_interval"`

	RewardShareBps   int64  `toml:"reward_share_bps"`
	SpeedBonusBps    int64  `toml:"speed_bonus_bps"`
	BonusWindowTicks uint64 `toml:"bonus_window_ticks"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for round archives.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	AdminToken  string   `toml:"admin_token"`

	// Commit rate limiting, enforced per participant address.
	CommitRateLimit  int      `toml:"commit_rate_limit"`
	CommitRateWindow duration `toml:"commit_rate_window"`

	// API-wide rate limiting, enforced per client IP. Zero disables it.
	APIRateLimit  int      `toml:"api_rate_limit"`
	APIRateWindow duration `toml:"api_rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
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
		Market: MarketConfig{
			ID:                    "default",
			Mode:                  "open",
			CommitTicks:           300,
			RevealTicks:           300,
			SettleTicks:           300,
			ClaimTicks:            600,
			FeeRateBps:            30,
			StartBondUnits:        0,
			EmergencyTimeoutTicks: 600,
			PenaltyRateBps:        100,
			PrimaryWindowTicks:    60,
			RegisteredWindowTicks: 120,
		},
		Clock: ClockConfig{
			Epoch:        "2026-01-01T00:00:00Z",
			TickInterval: duration{time.Second},
		},
		Solver: SolverConfig{
			Enabled:          false,
			PollInterval:     duration{2 * time.Second},
			RewardShareBps:   1000,
			SpeedBonusBps:    500,
			BonusWindowTicks: 30,
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "batchpool",
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
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "batchpool-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:          true,
			Port:             8000,
			CORSOrigins:      []string{"http://localhost:3000"},
			CommitRateLimit:  30,
			CommitRateWindow: duration{time.Minute},
			APIRateLimit:     100,
			APIRateWindow:    duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"settled", "emergency_activated", "gate_paused", "force_unpause"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":  true,
	"engine": true,
	"solve":  true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found. The market section is
// additionally validated by the engine when the pool is constructed.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, engine, solve, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Market
	if c.Market.ID == "" {
		errs = append(errs, "market: id must not be empty")
	}
	if c.Market.Mode != "open" && c.Market.Mode != "gated" {
		errs = append(errs, fmt.Sprintf("market: unknown mode %q (valid: open, gated)", c.Market.Mode))
	}
	if c.Market.Mode == "gated" && c.Market.AllowlistPath == "" {
		errs = append(errs, "market: allowlist_path is required in gated mode")
	}
	if c.Market.AdminAddress != "" && !common.IsHexAddress(c.Market.AdminAddress) {
		errs = append(errs, fmt.Sprintf("market: admin_address %q is not a hex address", c.Market.AdminAddress))
	}
	if c.Market.FeeRecipientAddress != "" && !common.IsHexAddress(c.Market.FeeRecipientAddress) {
		errs = append(errs, fmt.Sprintf("market: fee_recipient_address %q is not a hex address", c.Market.FeeRecipientAddress))
	}

	// Clock
	if _, err := c.Clock.EpochTime(); err != nil {
		errs = append(errs, fmt.Sprintf("clock: epoch is not RFC 3339: %v", err))
	}
	if c.Clock.TickInterval.Duration <= 0 {
		errs = append(errs, "clock: tick_interval must be positive")
	}

	// Solver
	if c.Solver.Enabled || c.Mode == "solve" {
		if c.Solver.Address == "" && c.Solver.EncryptedKeyPath == "" {
			errs = append(errs, "solver: either address or encrypted_key_path must be set when the solver is enabled")
		}
		if c.Solver.Address != "" && !common.IsHexAddress(c.Solver.Address) {
			errs = append(errs, fmt.Sprintf("solver: address %q is not a hex address", c.Solver.Address))
		}
		if c.Solver.EncryptedKeyPath != "" && c.Solver.KeyPassword == "" {
			errs = append(errs, "solver: key_password is required when encrypted_key_path is set")
		}
		if c.Solver.PollInterval.Duration <= 0 {
			errs = append(errs, "solver: poll_interval must be positive")
		}
	}
	if c.Solver.RewardShareBps < 0 || c.Solver.RewardShareBps > 10_000 {
		errs = append(errs, fmt.Sprintf("solver: reward_share_bps must be 0-10000, got %d", c.Solver.RewardShareBps))
	}
	if c.Solver.SpeedBonusBps < 0 || c.Solver.SpeedBonusBps > 10_000 {
		errs = append(errs, fmt.Sprintf("solver: speed_bonus_bps must be 0-10000, got %d", c.Solver.SpeedBonusBps))
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.CommitRateLimit < 1 {
			errs = append(errs, "server: commit_rate_limit must be >= 1")
		}
		if c.Server.CommitRateWindow.Duration <= 0 {
			errs = append(errs, "server: commit_rate_window must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
