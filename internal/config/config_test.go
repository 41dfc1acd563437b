package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsAndValidation(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")

	cfg, errs := Load("")
	if cfg == nil {
		t.Fatal("expected config even with validation errors")
	}
	if cfg.Port != DefaultPort {
		t.Fatalf("unexpected port: %d", cfg.Port)
	}
	if cfg.AccessTTLMinutes != DefaultAccessTTLMinutes {
		t.Fatalf("unexpected access ttl: %d", cfg.AccessTTLMinutes)
	}

	var gotDB, gotJWT bool
	for _, err := range errs {
		if errors.Is(err, ErrMissingDatabaseURL) {
			gotDB = true
		}
		if errors.Is(err, ErrMissingJWTSecret) {
			gotJWT = true
		}
	}
	if !gotDB || !gotJWT {
		t.Fatalf("expected missing database and jwt errors, got %v", errs)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("port: 9000\ndatabase_url: postgres://file:pw@db/veritrail\njwt_secret: file-secret\nsession_ttl_hours: 6\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("VERITRAIL_PORT", "9100")
	t.Setenv("DATABASE_URL", "postgres://env:pw@db/veritrail")
	t.Setenv("JWT_SECRET", "")

	cfg, errs := Load(path)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if cfg.Port != 9100 {
		t.Fatalf("env should win over file, got port %d", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://env:pw@db/veritrail" {
		t.Fatalf("env should win over file, got %s", cfg.DatabaseURL)
	}
	if cfg.JWTSecret != "file-secret" {
		t.Fatalf("file value should apply when env empty, got %s", cfg.JWTSecret)
	}
	if cfg.SessionTTLHours != 6 {
		t.Fatalf("unexpected session ttl: %d", cfg.SessionTTLHours)
	}
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv("VERITRAIL_PORT", "not-a-port")
	t.Setenv("DATABASE_URL", "postgres://db/veritrail")
	t.Setenv("JWT_SECRET", "secret-value")

	_, errs := Load("")
	found := false
	for _, err := range errs {
		if errors.Is(err, ErrInvalidPort) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected invalid port error, got %v", errs)
	}
}

func TestLogSummaryMasksSecrets(t *testing.T) {
	cfg := &Config{
		DatabaseURL: "postgres://app:hunter2@db:5432/veritrail",
		JWTSecret:   "super-secret-value",
	}
	summary := cfg.LogSummary()
	if summary["database_url"] != "postgres://app:****@db:5432/veritrail" {
		t.Fatalf("password not masked: %s", summary["database_url"])
	}
	if summary["jwt_secret"] != "supe****" {
		t.Fatalf("secret not masked: %s", summary["jwt_secret"])
	}
}
