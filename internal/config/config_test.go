package config

import (
	"os"
	"testing"
	"time"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENVIRONMENT", "HOST", "PORT", "DATABASE_URL", "DB_MAX_CONNECTIONS",
		"DB_IDLE_TIMEOUT", "LOG_LEVEL", "LOG_FORMAT", "JWT_ACCESS_SECRET",
		"JWT_REFRESH_SECRET", "ACCESS_TOKEN_TTL", "REFRESH_TOKEN_DURATION_DAYS",
		"STRICT_IDENTITY_MODE", "RATE_LIMIT_ENABLED", "RATE_LIMIT_REQUESTS",
		"RATE_LIMIT_WINDOW", "CORS_ALLOWED_ORIGINS", "INGEST_MAX_BATCH_SIZE",
		"DEFAULT_RETENTION_DAYS", "MIN_RETENTION_DAYS", "MAX_RETENTION_DAYS",
		"STREAM_CHANNEL_BUFFER", "STREAM_DEMUX_CHANNEL", "ALERT_EVAL_INTERVAL",
		"ALERT_WEBHOOK_TIMEOUT", "RETENTION_SWEEP_INTERVAL",
		"ENABLE_DEBUG_ENDPOINTS", "TEST_MODE", "METRICS_ENABLED", "METRICS_PORT",
	} {
		os.Unsetenv(key)
	}
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	clearConfigEnv(t)
	defer clearConfigEnv(t)

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error when DATABASE_URL is unset")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)
	defer clearConfigEnv(t)

	t.Setenv("DATABASE_URL", "postgres://localhost/altenia?sslmode=disable")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Env != Development {
		t.Errorf("Env = %v, want %v", cfg.Env, Development)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 15m", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 30*24*time.Hour {
		t.Errorf("RefreshTokenTTL = %v, want 30d", cfg.RefreshTokenTTL)
	}
	if cfg.DefaultRetentionDays != 30 {
		t.Errorf("DefaultRetentionDays = %d, want 30", cfg.DefaultRetentionDays)
	}
	if cfg.JWTAccessSecret == "" || cfg.JWTRefreshSecret == "" {
		t.Error("dev JWT secrets should default to a non-empty placeholder")
	}
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	clearConfigEnv(t)
	defer clearConfigEnv(t)

	t.Setenv("DATABASE_URL", "postgres://localhost/altenia")
	t.Setenv("ENVIRONMENT", "staging")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for unknown ENVIRONMENT value")
	}
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	clearConfigEnv(t)
	defer clearConfigEnv(t)

	t.Setenv("DATABASE_URL", "postgres://localhost/altenia")
	t.Setenv("ENVIRONMENT", "production")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error when JWT secrets are unset in production")
	}
}

func TestConfig_EnvironmentHelpers(t *testing.T) {
	cfg := &Config{Env: Production}
	if !cfg.IsProduction() || cfg.IsDevelopment() || cfg.IsTesting() {
		t.Error("environment helper mismatch for production config")
	}
}

func TestConfig_Validate_RetentionBounds(t *testing.T) {
	cfg := &Config{
		Port:                 8080,
		MinRetentionDays:     7,
		MaxRetentionDays:     5,
		DefaultRetentionDays: 6,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error when MaxRetentionDays < MinRetentionDays")
	}
}

func TestConfig_Validate_ProductionRequiresRateLimit(t *testing.T) {
	cfg := &Config{
		Env:                  Production,
		Port:                 8080,
		MinRetentionDays:     1,
		MaxRetentionDays:     30,
		DefaultRetentionDays: 14,
		RateLimitEnabled:     false,
		StrictIdentityMode:   true,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error when rate limiting disabled in production")
	}
}

func TestConfig_Validate_OK(t *testing.T) {
	cfg := &Config{
		Port:                 8080,
		MinRetentionDays:     1,
		MaxRetentionDays:     30,
		DefaultRetentionDays: 14,
		RateLimitEnabled:     true,
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}
