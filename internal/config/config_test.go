package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("MAX_SEND_ATTEMPTS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.MaxSendAttempts != 5 {
		t.Fatalf("expected default max attempts, got %d", cfg.MaxSendAttempts)
	}
	if cfg.AlertDebounceWindow != 30*time.Second {
		t.Fatalf("expected default debounce window, got %s", cfg.AlertDebounceWindow)
	}
	if cfg.StuckClaimTimeout != 5*time.Minute {
		t.Fatalf("expected default stuck claim timeout, got %s", cfg.StuckClaimTimeout)
	}
	if !cfg.IsDevelopment() {
		t.Fatalf("expected development env by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "Production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("DISPATCH_BATCH_SIZE", "25")
	t.Setenv("DISPATCH_MAX_INTERVAL", "4s")
	t.Setenv("QUIET_HOURS_START", "09:00")
	t.Setenv("RATE_LIMIT_MAX_INBOUND", "20")
	t.Setenv("HTTP_RATE_LIMIT_PER_SEC", "2.5")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env normalized to lowercase, got %s", cfg.Env)
	}
	if cfg.IsDevelopment() {
		t.Fatalf("production env should not report development")
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.DispatchBatchSize != 25 {
		t.Fatalf("expected batch size override, got %d", cfg.DispatchBatchSize)
	}
	if cfg.DispatchMaxInterval != 4*time.Second {
		t.Fatalf("expected max interval override, got %s", cfg.DispatchMaxInterval)
	}
	if cfg.QuietHoursStart != "09:00" {
		t.Fatalf("expected quiet hours override, got %s", cfg.QuietHoursStart)
	}
	if cfg.RateLimitMaxInbound != 20 {
		t.Fatalf("expected inbound rate override, got %d", cfg.RateLimitMaxInbound)
	}
	if cfg.HTTPRateLimitPerSec != 2.5 {
		t.Fatalf("expected float override, got %f", cfg.HTTPRateLimitPerSec)
	}
}
