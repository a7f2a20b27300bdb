package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_DSN", "host=localhost user=test dbname=test")
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "3000" {
		t.Errorf("port = %q, want 3000", cfg.Port)
	}
	if cfg.DispatchBatchSize != 25 || cfg.OverNotifyFactor != 3.0 {
		t.Errorf("dispatch defaults = %d/%v", cfg.DispatchBatchSize, cfg.OverNotifyFactor)
	}
	if cfg.DonorCooldown != 90*24*time.Hour {
		t.Errorf("cooldown = %v", cfg.DonorCooldown)
	}
}

func TestLoadMissingDSN(t *testing.T) {
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("JWT_SECRET", "test-secret")

	if _, err := Load(); err == nil {
		t.Fatal("Load without DATABASE_DSN should fail")
	}
}

func TestLoadAllowedOrigins(t *testing.T) {
	setRequired(t)
	t.Setenv("CLIENT_URL", "https://bloodlink.example.com")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, https://staging.example.com ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"https://bloodlink.example.com",
		"https://app.example.com",
		"https://staging.example.com",
	}
	if len(cfg.AllowedOrigins) != len(want) {
		t.Fatalf("origins = %v, want %v", cfg.AllowedOrigins, want)
	}
	for i, origin := range want {
		if cfg.AllowedOrigins[i] != origin {
			t.Errorf("origin %d = %q, want %q", i, cfg.AllowedOrigins[i], origin)
		}
	}
}
