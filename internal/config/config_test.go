package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoad_MissingSecretsFatal(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "")

	_, err := Load()

	if !errors.Is(err, ErrMissingAccessSecret) {
		t.Fatalf("expected ErrMissingAccessSecret, got %v", err)
	}

	t.Setenv("JWT_ACCESS_SECRET", "access-secret")

	_, err = Load()

	if !errors.Is(err, ErrMissingRefreshSecret) {
		t.Fatalf("expected ErrMissingRefreshSecret, got %v", err)
	}
}

func TestLoad_RejectsSharedSecret(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "same-secret")
	t.Setenv("JWT_REFRESH_SECRET", "same-secret")

	if _, err := Load(); !errors.Is(err, ErrSharedJWTSecret) {
		t.Fatalf("expected ErrSharedJWTSecret, got %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")

	cfg, err := Load()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.AccessTTL != 24*time.Hour {
		t.Errorf("AccessTTL = %v, want 24h", cfg.AccessTTL)
	}

	if cfg.RefreshTTL != 7*24*time.Hour {
		t.Errorf("RefreshTTL = %v, want 168h", cfg.RefreshTTL)
	}

	if cfg.ResetTokenTTL != time.Hour {
		t.Errorf("ResetTokenTTL = %v, want 1h", cfg.ResetTokenTTL)
	}
}

func TestLoad_CORSOrigins(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "a")
	t.Setenv("JWT_REFRESH_SECRET", "r")
	t.Setenv("CORS_ORIGINS", "https://app.stagepass.dev, https://admin.stagepass.dev")

	cfg, err := Load()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("got %d origins, want 2", len(cfg.CORSOrigins))
	}

	if cfg.CORSOrigins[1] != "https://admin.stagepass.dev" {
		t.Errorf("second origin = %q", cfg.CORSOrigins[1])
	}
}
