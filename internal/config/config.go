// Package config provides environment-aware configuration management
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	sruntime "github.com/sobshdev/altenia/infrastructure/runtime"
)

// Environment represents the deployment environment
type Environment = sruntime.Environment

const (
	Development = sruntime.Development
	Testing     = sruntime.Testing
	Production  = sruntime.Production
)

// Config holds all application configuration
type Config struct {
	// Environment
	Env Environment

	// HTTP server
	Host string
	Port int

	// Database
	DatabaseURL      string
	DBMaxConnections int
	DBIdleTimeout    time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Authentication
	JWTAccessSecret    string
	JWTRefreshSecret   string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	StrictIdentityMode bool

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSOrigins       []string

	// Telemetry ingestion
	IngestMaxBatchSize   int
	DefaultRetentionDays int
	MinRetentionDays     int
	MaxRetentionDays     int

	// Real-time log stream
	StreamChannelBuffer int
	StreamDemuxChannel  string

	// Alert evaluator
	AlertEvalInterval     time.Duration
	AlertWebhookTimeout   time.Duration
	RetentionSweepInterval time.Duration

	// Features
	EnableDebugEndpoints bool
	TestMode             bool
	MetricsEnabled       bool
	MetricsPort          int
}

// Load loads configuration based on the ENVIRONMENT environment variable.
func Load() (*Config, error) {
	envStr := os.Getenv("ENVIRONMENT")
	if envStr == "" {
		envStr = string(sruntime.Development)
	}

	parsedEnv, ok := sruntime.ParseEnvironment(envStr)
	if !ok {
		return nil, fmt.Errorf("invalid ENVIRONMENT: %s (must be development, testing, or production)", envStr)
	}

	// Load environment-specific .env file. Optional; only warn on parse
	// errors, not on a missing file, to keep tests and CI quiet.
	configFile := filepath.Join("config", fmt.Sprintf("%s.env", parsedEnv))
	if err := godotenv.Load(configFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Warning: could not load %s: %v\n", configFile, err)
		}
	}

	cfg := &Config{
		Env: parsedEnv,
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() error {
	var err error

	// HTTP server
	c.Host = getEnv("HOST", "0.0.0.0")
	c.Port = getIntEnv("PORT", 8080)

	// Database
	c.DatabaseURL = getEnv("DATABASE_URL", "")
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	c.DBMaxConnections = getIntEnv("DB_MAX_CONNECTIONS", 20)
	dbIdleTimeout := getEnv("DB_IDLE_TIMEOUT", "5m")
	c.DBIdleTimeout, err = time.ParseDuration(dbIdleTimeout)
	if err != nil {
		return fmt.Errorf("invalid DB_IDLE_TIMEOUT: %w", err)
	}

	// Logging
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")

	// Authentication
	c.JWTAccessSecret = getEnv("JWT_ACCESS_SECRET", "")
	c.JWTRefreshSecret = getEnv("JWT_REFRESH_SECRET", "")
	if c.Env == Production && (c.JWTAccessSecret == "" || c.JWTRefreshSecret == "") {
		return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required in production")
	}
	if c.JWTAccessSecret == "" {
		c.JWTAccessSecret = "dev-access-secret-change-me"
	}
	if c.JWTRefreshSecret == "" {
		c.JWTRefreshSecret = "dev-refresh-secret-change-me"
	}
	accessTTL := getEnv("ACCESS_TOKEN_TTL", "15m")
	c.AccessTokenTTL, err = time.ParseDuration(accessTTL)
	if err != nil {
		return fmt.Errorf("invalid ACCESS_TOKEN_TTL: %w", err)
	}
	refreshTTLDays := getIntEnv("REFRESH_TOKEN_DURATION_DAYS", 30)
	c.RefreshTokenTTL = time.Duration(refreshTTLDays) * 24 * time.Hour
	c.StrictIdentityMode = getBoolEnv("STRICT_IDENTITY_MODE", c.Env == Production)

	// Rate limiting
	c.RateLimitEnabled = getBoolEnv("RATE_LIMIT_ENABLED", true)
	c.RateLimitRequests = getIntEnv("RATE_LIMIT_REQUESTS", 100)
	rateLimitWindow := getEnv("RATE_LIMIT_WINDOW", "1m")
	c.RateLimitWindow, err = time.ParseDuration(rateLimitWindow)
	if err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_WINDOW: %w", err)
	}
	c.CORSOrigins = strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "*"), ",")

	// Telemetry ingestion
	c.IngestMaxBatchSize = getIntEnv("INGEST_MAX_BATCH_SIZE", 1000)
	c.DefaultRetentionDays = getIntEnv("DEFAULT_RETENTION_DAYS", 30)
	c.MinRetentionDays = getIntEnv("MIN_RETENTION_DAYS", 1)
	c.MaxRetentionDays = getIntEnv("MAX_RETENTION_DAYS", 365)

	// Real-time log stream
	c.StreamChannelBuffer = getIntEnv("STREAM_CHANNEL_BUFFER", 256)
	c.StreamDemuxChannel = getEnv("STREAM_DEMUX_CHANNEL", "altenia_log_events")

	// Alert evaluator / retention sweeper
	alertEvalInterval := getEnv("ALERT_EVAL_INTERVAL", "1m")
	c.AlertEvalInterval, err = time.ParseDuration(alertEvalInterval)
	if err != nil {
		return fmt.Errorf("invalid ALERT_EVAL_INTERVAL: %w", err)
	}
	alertWebhookTimeout := getEnv("ALERT_WEBHOOK_TIMEOUT", "10s")
	c.AlertWebhookTimeout, err = time.ParseDuration(alertWebhookTimeout)
	if err != nil {
		return fmt.Errorf("invalid ALERT_WEBHOOK_TIMEOUT: %w", err)
	}
	retentionSweepInterval := getEnv("RETENTION_SWEEP_INTERVAL", "1h")
	c.RetentionSweepInterval, err = time.ParseDuration(retentionSweepInterval)
	if err != nil {
		return fmt.Errorf("invalid RETENTION_SWEEP_INTERVAL: %w", err)
	}

	// Features
	c.EnableDebugEndpoints = getBoolEnv("ENABLE_DEBUG_ENDPOINTS", false)
	c.TestMode = getBoolEnv("TEST_MODE", false)
	c.MetricsEnabled = getBoolEnv("METRICS_ENABLED", c.Env == Production)
	c.MetricsPort = getIntEnv("METRICS_PORT", 9090)

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Env == Development
}

// IsTesting returns true if running in testing environment
func (c *Config) IsTesting() bool {
	return c.Env == Testing
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Env == Production
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.EnableDebugEndpoints {
			return fmt.Errorf("ENABLE_DEBUG_ENDPOINTS must be false in production")
		}
		if c.TestMode {
			return fmt.Errorf("TEST_MODE must be false in production")
		}
		if !c.RateLimitEnabled {
			return fmt.Errorf("RATE_LIMIT_ENABLED must be true in production")
		}
		if !c.StrictIdentityMode {
			return fmt.Errorf("STRICT_IDENTITY_MODE must be true in production")
		}
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d (must be between 1 and 65535)", c.Port)
	}
	if c.MinRetentionDays < 1 {
		return fmt.Errorf("MIN_RETENTION_DAYS must be at least 1")
	}
	if c.MaxRetentionDays < c.MinRetentionDays {
		return fmt.Errorf("MAX_RETENTION_DAYS must be >= MIN_RETENTION_DAYS")
	}
	if c.DefaultRetentionDays < c.MinRetentionDays || c.DefaultRetentionDays > c.MaxRetentionDays {
		return fmt.Errorf("DEFAULT_RETENTION_DAYS must be within [MIN_RETENTION_DAYS, MAX_RETENTION_DAYS]")
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
