// Package config provides environment-aware configuration management for the
// automation and engagement runtime.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	oruntime "github.com/oddside/automation-runtime/internal/runtime"

	"github.com/joho/godotenv"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// Config holds all process-wide, immutable-after-boot configuration. Per-group
// feature flags (engagement_enabled, auto_fix_enabled, quiet_hours_start, ...)
// are NOT here: they live in the engagement_settings/payment_settings
// documents and are read through the persistence adapter per §6.
type Config struct {
	Env Environment

	// AutomationEngineVersion is stamped onto every automation at creation
	// time (spec §6) so runs can be attributed to the engine revision that
	// created them.
	AutomationEngineVersion string

	// Logging
	LogLevel  string
	LogFormat string

	// Persistence. DatabaseURL empty means the in-memory store is used.
	DatabaseURL      string
	DBMaxConnections int
	DBIdleTimeout    time.Duration

	// Optional Redis-backed policy counter store. Empty means in-memory
	// counters are used instead.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Ops surface (healthz/metrics/descriptors), not the product API.
	OpsPort int

	// Job queue & periodic scheduler cadences (spec §4.8).
	EnqueueLoopInterval  time.Duration
	DispatchLoopInterval time.Duration
	DigestLoopInterval   time.Duration
	DispatchBatchSize    int

	// Proactive-scheduler cadences (spec §4.8).
	GameSuggestionInterval     time.Duration
	StalePollInterval          time.Duration
	RSVPReminderInterval       time.Duration
	SettlementReminderInterval time.Duration

	// HostDecisionExpiryInterval is how often the host decision queue sweeps
	// pending decisions past their expires_at (host_decision.py's expire_old).
	HostDecisionExpiryInterval time.Duration

	// SchedulerJitterMin/Max stagger periodic loop start times to avoid a
	// thundering herd (spec §4.8: 2-5 min jitter).
	SchedulerJitterMin time.Duration
	SchedulerJitterMax time.Duration

	// Chat watcher throttle (spec §4.9).
	ChatResponseThrottle time.Duration

	MetricsEnabled bool

	// Features
	EnableDebugEndpoints bool
	TestMode             bool
}

// Load loads configuration based on the ODDSIDE_ENV environment variable.
func Load() (*Config, error) {
	envStr := os.Getenv("ODDSIDE_ENV")
	if envStr == "" {
		envStr = string(oruntime.Development)
	}

	parsedEnv, ok := oruntime.ParseEnvironment(envStr)
	if !ok {
		return nil, fmt.Errorf("invalid ODDSIDE_ENV: %s (must be development, testing, or production)", envStr)
	}
	env := Environment(parsedEnv)

	configFile := filepath.Join("config", fmt.Sprintf("%s.env", env))
	if err := godotenv.Load(configFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Warning: Could not load %s: %v\n", configFile, err)
		}
	}

	cfg := &Config{Env: env}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	c.AutomationEngineVersion = getEnv("AUTOMATION_ENGINE_VERSION", "1.0.0")

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")

	c.DatabaseURL = getEnv("DATABASE_URL", "")
	c.DBMaxConnections = getIntEnv("DB_MAX_CONNECTIONS", 20)
	idle, err := getDurationEnv("DB_IDLE_TIMEOUT", "5m")
	if err != nil {
		return err
	}
	c.DBIdleTimeout = idle

	c.RedisAddr = getEnv("REDIS_ADDR", "")
	c.RedisPassword = getEnv("REDIS_PASSWORD", "")
	c.RedisDB = getIntEnv("REDIS_DB", 0)

	c.OpsPort = getIntEnv("OPS_PORT", 9090)

	if c.EnqueueLoopInterval, err = getDurationEnv("ENQUEUE_LOOP_INTERVAL", "6h"); err != nil {
		return err
	}
	if c.DispatchLoopInterval, err = getDurationEnv("DISPATCH_LOOP_INTERVAL", "30m"); err != nil {
		return err
	}
	if c.DigestLoopInterval, err = getDurationEnv("DIGEST_LOOP_INTERVAL", "168h"); err != nil {
		return err
	}
	c.DispatchBatchSize = getIntEnv("DISPATCH_BATCH_SIZE", 20)

	if c.GameSuggestionInterval, err = getDurationEnv("GAME_SUGGESTION_INTERVAL", "6h"); err != nil {
		return err
	}
	if c.StalePollInterval, err = getDurationEnv("STALE_POLL_INTERVAL", "2h"); err != nil {
		return err
	}
	if c.RSVPReminderInterval, err = getDurationEnv("RSVP_REMINDER_INTERVAL", "4h"); err != nil {
		return err
	}
	if c.SettlementReminderInterval, err = getDurationEnv("SETTLEMENT_REMINDER_INTERVAL", "24h"); err != nil {
		return err
	}
	if c.HostDecisionExpiryInterval, err = getDurationEnv("HOST_DECISION_EXPIRY_INTERVAL", "10m"); err != nil {
		return err
	}

	if c.SchedulerJitterMin, err = getDurationEnv("SCHEDULER_JITTER_MIN", "2m"); err != nil {
		return err
	}
	if c.SchedulerJitterMax, err = getDurationEnv("SCHEDULER_JITTER_MAX", "5m"); err != nil {
		return err
	}
	if c.ChatResponseThrottle, err = getDurationEnv("CHAT_RESPONSE_THROTTLE", "5m"); err != nil {
		return err
	}

	c.MetricsEnabled = getBoolEnv("METRICS_ENABLED", c.Env == Production)
	c.EnableDebugEndpoints = getBoolEnv("ENABLE_DEBUG_ENDPOINTS", false)
	c.TestMode = getBoolEnv("TEST_MODE", false)

	return nil
}

func (c *Config) IsDevelopment() bool { return c.Env == Development }
func (c *Config) IsTesting() bool     { return c.Env == Testing }
func (c *Config) IsProduction() bool  { return c.Env == Production }

// Validate validates the configuration, tightening rules in production.
func (c *Config) Validate() error {
	if c.AutomationEngineVersion == "" {
		return fmt.Errorf("AUTOMATION_ENGINE_VERSION must not be empty")
	}
	if c.DispatchBatchSize <= 0 {
		return fmt.Errorf("DISPATCH_BATCH_SIZE must be positive")
	}
	if c.SchedulerJitterMin > c.SchedulerJitterMax {
		return fmt.Errorf("SCHEDULER_JITTER_MIN must not exceed SCHEDULER_JITTER_MAX")
	}

	if c.IsProduction() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
		if c.EnableDebugEndpoints {
			return fmt.Errorf("ENABLE_DEBUG_ENDPOINTS must be false in production")
		}
		if c.TestMode {
			return fmt.Errorf("TEST_MODE must be false in production")
		}
		if strings.ToLower(c.LogFormat) != "json" {
			return fmt.Errorf("LOG_FORMAT must be json in production")
		}
	}

	if c.OpsPort < 0 || c.OpsPort > 65535 {
		return fmt.Errorf("invalid OPS_PORT: %d", c.OpsPort)
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key, defaultValue string) (time.Duration, error) {
	raw := getEnv(key, defaultValue)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
