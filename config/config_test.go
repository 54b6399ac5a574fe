package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("DB_DSN", "")
	t.Setenv("TIME_ZONE", "")
	t.Setenv("DEFAULT_DAILY_LIMIT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DefaultDailyLimit != 5 {
		t.Fatalf("expected default limit 5, got %d", cfg.DefaultDailyLimit)
	}
	if cfg.DeliveryMaxAttempts != 3 || cfg.DeliveryRetryDelay != 2*time.Second || cfg.RateLimitBuffer != time.Second {
		t.Fatalf("unexpected delivery defaults: %+v", cfg)
	}
	if cfg.Location().String() != "Europe/Moscow" {
		t.Fatalf("expected Europe/Moscow, got %s", cfg.Location())
	}
	if err := cfg.RequireBotToken(); err == nil {
		t.Fatalf("expected missing bot token error")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
bot_token: file-token
database_dsn: postgres://localhost/cases
time_zone: Europe/Berlin
default_daily_limit: 7
admin_ids: [1, 2]
session_idle_ttl: 2h
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("DB_DSN", "")
	t.Setenv("TIME_ZONE", "")
	t.Setenv("DEFAULT_DAILY_LIMIT", "9")
	t.Setenv("ADMIN_IDS", "")
	t.Setenv("SESSION_IDLE_TTL", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.BotToken != "file-token" || cfg.DatabaseDSN != "postgres://localhost/cases" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.DefaultDailyLimit != 9 {
		t.Fatalf("expected env override 9, got %d", cfg.DefaultDailyLimit)
	}
	if cfg.SessionIdleTTL != 2*time.Hour {
		t.Fatalf("expected invalid env duration to fall back to file value, got %s", cfg.SessionIdleTTL)
	}
	if !cfg.IsAdmin(2) || cfg.IsAdmin(3) {
		t.Fatalf("unexpected admin ids %v", cfg.AdminIDs)
	}
	if cfg.Location().String() != "Europe/Berlin" {
		t.Fatalf("expected Europe/Berlin, got %s", cfg.Location())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.DefaultDailyLimit = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected negative limit to be rejected")
	}

	cfg = Default()
	cfg.DeliveryMaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected zero attempts to be rejected")
	}

	cfg = Default()
	cfg.TimeZone = "Mars/Olympus"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown time zone to be rejected")
	}
}

func TestParseIDList(t *testing.T) {
	ids := parseIDList("10, x, 20,,")
	if len(ids) != 2 || ids[0] != 10 || ids[1] != 20 {
		t.Fatalf("unexpected ids %v", ids)
	}
}
