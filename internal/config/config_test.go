package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("FALLBACK_ON_ERROR", "")
	t.Setenv("CAMPAIGN_SEND_DELAY", "")
	t.Setenv("QUOTE_VALIDITY_DAYS", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if !cfg.FallbackOnError {
		t.Fatalf("expected fallback on error by default")
	}
	if cfg.CampaignSendDelay != 2*time.Second {
		t.Fatalf("expected 2s campaign delay, got %s", cfg.CampaignSendDelay)
	}
	if cfg.QuoteValidityDays != 7 {
		t.Fatalf("expected 7 day quote validity, got %d", cfg.QuoteValidityDays)
	}
	if cfg.DefaultCreditTermDays != 30 {
		t.Fatalf("expected 30 day credit term, got %d", cfg.DefaultCreditTermDays)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("expected no cors origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("FALLBACK_ON_ERROR", "false")
	t.Setenv("CAMPAIGN_CONCURRENCY", "4")
	t.Setenv("CAMPAIGN_SEND_DELAY", "500ms")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("PLAN_TIER", "PRO")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected port override, got %s", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log level override, got %s", cfg.LogLevel)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("unexpected database url %s", cfg.DatabaseURL)
	}
	if cfg.FallbackOnError {
		t.Fatalf("expected fail-closed policy")
	}
	if cfg.CampaignConcurrency != 4 {
		t.Fatalf("expected concurrency 4, got %d", cfg.CampaignConcurrency)
	}
	if cfg.CampaignSendDelay != 500*time.Millisecond {
		t.Fatalf("expected 500ms delay, got %s", cfg.CampaignSendDelay)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected 2.5 rps, got %v", cfg.RateLimitRPS)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.PlanTier != "pro" {
		t.Fatalf("expected lowercased plan tier, got %s", cfg.PlanTier)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("WORKER_COUNT", "many")
	t.Setenv("CAMPAIGN_SEND_DELAY", "soon")
	cfg := Load()
	if cfg.WorkerCount != 2 {
		t.Fatalf("expected default worker count, got %d", cfg.WorkerCount)
	}
	if cfg.CampaignSendDelay != 2*time.Second {
		t.Fatalf("expected default delay, got %s", cfg.CampaignSendDelay)
	}
}
