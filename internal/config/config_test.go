package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults() should validate: %v", err)
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "daemon"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("unknown mode accepted")
	}
	if !strings.Contains(err.Error(), "unknown mode") {
		t.Fatalf("error does not mention the mode: %v", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "daemon"
	cfg.Market.ID = ""
	cfg.Redis.Addr = ""
	cfg.Clock.Epoch = "yesterday"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{"unknown mode", "id must not be empty", "redis", "epoch"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("combined error missing %q: %v", want, err)
		}
	}
}

func TestValidateGatedRequiresAllowlist(t *testing.T) {
	cfg := Defaults()
	cfg.Market.Mode = "gated"
	cfg.Market.AllowlistPath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("gated mode without allowlist_path accepted")
	}

	cfg.Market.AllowlistPath = "allowlist.txt"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("gated mode with allowlist_path rejected: %v", err)
	}
}

func TestValidateSolverIdentity(t *testing.T) {
	cfg := Defaults()
	cfg.Solver.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled solver without identity accepted")
	}

	cfg.Solver.Address = "0x00000000000000000000000000000000000000aa"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("enabled solver with address rejected: %v", err)
	}

	cfg.Solver.Address = ""
	cfg.Solver.EncryptedKeyPath = "solver.key.json"
	if err := cfg.Validate(); err == nil {
		t.Fatal("encrypted key path without password accepted")
	}
	cfg.Solver.KeyPassword = "hunter2"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("encrypted key path with password rejected: %v", err)
	}
}

func TestDurationTOMLDecoding(t *testing.T) {
	var cfg Config
	src := `
[clock]
epoch = "2026-01-01T00:00:00Z"
tick_interval = "250ms"

[solver]
poll_interval = "5s"
`
	if _, err := toml.Decode(src, &cfg); err != nil {
		t.Fatalf("toml.Decode: %v", err)
	}
	if cfg.Clock.TickInterval.Duration != 250*time.Millisecond {
		t.Fatalf("tick_interval = %v, want 250ms", cfg.Clock.TickInterval.Duration)
	}
	if cfg.Solver.PollInterval.Duration != 5*time.Second {
		t.Fatalf("poll_interval = %v, want 5s", cfg.Solver.PollInterval.Duration)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "serve"

[market]
id = "file-market"

[redis]
addr = "file:6379"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("BATCHPOOL_MODE", "engine")
	t.Setenv("BATCHPOOL_REDIS_ADDR", "env:6379")
	t.Setenv("BATCHPOOL_CLOCK_TICK_INTERVAL", "2s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "engine" {
		t.Fatalf("Mode = %q, want env override", cfg.Mode)
	}
	if cfg.Redis.Addr != "env:6379" {
		t.Fatalf("Redis.Addr = %q, want env override", cfg.Redis.Addr)
	}
	if cfg.Clock.TickInterval.Duration != 2*time.Second {
		t.Fatalf("TickInterval = %v, want 2s", cfg.Clock.TickInterval.Duration)
	}
	// Values without overrides come from the file, then defaults.
	if cfg.Market.ID != "file-market" {
		t.Fatalf("Market.ID = %q, want file value", cfg.Market.ID)
	}
	if cfg.Database.Port != 5432 {
		t.Fatalf("Database.Port = %d, want default", cfg.Database.Port)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Password = "pg-secret"
	cfg.Redis.Password = "redis-secret"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Server.AdminToken = "token"
	cfg.Notify.TelegramToken = "tg-token"

	red := RedactedConfig(&cfg)

	for name, got := range map[string]string{
		"database password": red.Database.Password,
		"redis password":    red.Redis.Password,
		"s3 secret":         red.S3.SecretKey,
		"admin token":       red.Server.AdminToken,
		"telegram token":    red.Notify.TelegramToken,
	} {
		if got != "***" {
			t.Errorf("%s not redacted: %q", name, got)
		}
	}

	// Original must be untouched.
	if cfg.Database.Password != "pg-secret" {
		t.Fatal("RedactedConfig mutated the original")
	}

	// Empty secrets stay empty rather than becoming placeholders.
	if red.Database.DSN != "" {
		t.Fatalf("empty DSN redacted to %q", red.Database.DSN)
	}
}
