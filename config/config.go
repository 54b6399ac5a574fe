package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config holds all the configuration for the application
type Config struct {
	BotToken             string        `yaml:"bot_token"`
	DatabaseDSN          string        `yaml:"database_dsn"`
	RedisAddr            string        `yaml:"redis_addr"`
	TimeZone             string        `yaml:"time_zone"`
	DefaultDailyLimit    int           `yaml:"default_daily_limit"`
	AdminIDs             []int64       `yaml:"admin_ids"`
	CatalogFile          string        `yaml:"catalog_file"`
	SessionIdleTTL       time.Duration `yaml:"session_idle_ttl"`
	MaxConcurrentUpdates int           `yaml:"max_concurrent_updates"`
	DeliveryMaxAttempts  int           `yaml:"delivery_max_attempts"`
	DeliveryRetryDelay   time.Duration `yaml:"delivery_retry_delay"`
	RateLimitBuffer      time.Duration `yaml:"rate_limit_buffer"`
	LogMode              string        `yaml:"log_mode"`
	Debug                bool          `yaml:"debug"`

	location *time.Location
}

// Default returns a Config populated with the defaults used when nothing is set
func Default() *Config {
	return &Config{
		DatabaseDSN:          "./data/medcases.db",
		TimeZone:             "Europe/Moscow",
		DefaultDailyLimit:    5,
		SessionIdleTTL:       24 * time.Hour,
		MaxConcurrentUpdates: 16,
		DeliveryMaxAttempts:  3,
		DeliveryRetryDelay:   2 * time.Second,
		RateLimitBuffer:      time.Second,
		LogMode:              "dev",
	}
}

// Load reads the optional CONFIG_FILE and then applies environment overrides
func Load() (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.BotToken = stringEnv("BOT_TOKEN", cfg.BotToken)
	cfg.DatabaseDSN = stringEnv("DB_DSN", cfg.DatabaseDSN)
	cfg.RedisAddr = stringEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.TimeZone = stringEnv("TIME_ZONE", cfg.TimeZone)
	cfg.CatalogFile = stringEnv("CATALOG_FILE", cfg.CatalogFile)
	cfg.LogMode = stringEnv("LOG_MODE", cfg.LogMode)
	cfg.DefaultDailyLimit = intEnv("DEFAULT_DAILY_LIMIT", cfg.DefaultDailyLimit)
	cfg.MaxConcurrentUpdates = intEnv("MAX_CONCURRENT_UPDATES", cfg.MaxConcurrentUpdates)
	cfg.DeliveryMaxAttempts = intEnv("DELIVERY_MAX_ATTEMPTS", cfg.DeliveryMaxAttempts)
	cfg.SessionIdleTTL = durationEnv("SESSION_IDLE_TTL", cfg.SessionIdleTTL)
	cfg.DeliveryRetryDelay = durationEnv("DELIVERY_RETRY_DELAY", cfg.DeliveryRetryDelay)
	cfg.RateLimitBuffer = durationEnv("RATE_LIMIT_BUFFER", cfg.RateLimitBuffer)

	if raw := os.Getenv("DEBUG"); raw != "" {
		cfg.Debug = raw == "true"
	}
	if raw := strings.TrimSpace(os.Getenv("ADMIN_IDS")); raw != "" {
		cfg.AdminIDs = parseIDList(raw)
	}
}

// Validate checks value ranges and resolves the time zone
func (c *Config) Validate() error {
	if c.DefaultDailyLimit < 0 {
		return errors.New("default daily limit must not be negative")
	}
	if c.DeliveryMaxAttempts < 1 {
		return errors.New("delivery max attempts must be at least 1")
	}
	if c.MaxConcurrentUpdates < 1 {
		return errors.New("max concurrent updates must be at least 1")
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return errors.New("database DSN must not be empty")
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return fmt.Errorf("loading time zone %q: %w", c.TimeZone, err)
	}
	c.location = loc
	return nil
}

// RequireBotToken is checked only by commands that talk to Telegram
func (c *Config) RequireBotToken() error {
	if c.BotToken == "" {
		return errors.New("BOT_TOKEN environment variable is required")
	}
	return nil
}

// Location returns the time zone that calendar days are computed in
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// IsAdmin reports whether the user may run administrative commands
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func stringEnv(name, fallback string) string {
	if raw := strings.TrimSpace(os.Getenv(name)); raw != "" {
		return raw
	}
	return fallback
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback)
		return fallback
	}
	return value
}

func parseIDList(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Printf("ignoring invalid admin id %q", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
