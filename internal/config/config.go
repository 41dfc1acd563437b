// Package config provides configuration loading and validation for the API
// server. It uses koanf to merge environment variables with optional file
// overrides; environment variables take precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Session tokens
	JWTSecret         string `koanf:"jwt_secret"`
	AccessTTLMinutes  int    `koanf:"access_ttl_minutes"`
	SessionTTLHours   int    `koanf:"session_ttl_hours"`

	// HTTP limits
	RateBurst     int   `koanf:"rate_burst"`
	RatePerSecond int   `koanf:"rate_per_second"`
	MaxBodyBytes  int64 `koanf:"max_body_bytes"`

	// Background jobs
	OverdueSweepMinutes int `koanf:"overdue_sweep_minutes"`

	// Schema management
	MigrationsDir string `koanf:"migrations_dir"`
	SeedsDir      string `koanf:"seeds_dir"`

	// First-login bootstrap. When both are set, startup ensures a system
	// principal with this email exists and holds every builtin grant.
	BootstrapEmail    string `koanf:"bootstrap_email"`
	BootstrapPassword string `koanf:"bootstrap_password"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret   = errors.New("JWT_SECRET is required")
	ErrInvalidPort        = errors.New("PORT must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultPort                = 8080
	DefaultEnv                 = "development"
	DefaultAccessTTLMinutes    = 15
	DefaultSessionTTLHours     = 12
	DefaultRateBurst           = 50
	DefaultRatePerSecond       = 25
	DefaultMaxBodyBytes        = 1 << 20
	DefaultOverdueSweepMinutes = 10
	DefaultMigrationsDir       = "migrations"
	DefaultSeedsDir            = "seeds"
)

// Load reads configuration from environment variables and an optional YAML
// file. Returns the loaded config and a slice of validation errors (empty if
// valid).
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// File first (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, err := getEnvIntOrDefault("VERITRAIL_PORT", k.Int("port"), DefaultPort)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	accessTTL, err := getEnvIntOrDefault("ACCESS_TTL_MINUTES", k.Int("access_ttl_minutes"), DefaultAccessTTLMinutes)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	sessionTTL, err := getEnvIntOrDefault("SESSION_TTL_HOURS", k.Int("session_ttl_hours"), DefaultSessionTTLHours)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	rateBurst, err := getEnvIntOrDefault("RATE_BURST", k.Int("rate_burst"), DefaultRateBurst)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	ratePerSecond, err := getEnvIntOrDefault("RATE_PER_SECOND", k.Int("rate_per_second"), DefaultRatePerSecond)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	maxBody, err := getEnvIntOrDefault("MAX_BODY_BYTES", k.Int("max_body_bytes"), DefaultMaxBodyBytes)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	sweep, err := getEnvIntOrDefault("OVERDUE_SWEEP_MINUTES", k.Int("overdue_sweep_minutes"), DefaultOverdueSweepMinutes)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	cfg := &Config{
		Port:                port,
		Env:                 getEnvOrDefault("VERITRAIL_ENV", k.String("env"), DefaultEnv),
		DatabaseURL:         getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		JWTSecret:           getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		AccessTTLMinutes:    accessTTL,
		SessionTTLHours:     sessionTTL,
		RateBurst:           rateBurst,
		RatePerSecond:       ratePerSecond,
		MaxBodyBytes:        int64(maxBody),
		OverdueSweepMinutes: sweep,
		MigrationsDir:       getEnvOrDefault("MIGRATIONS_DIR", k.String("migrations_dir"), DefaultMigrationsDir),
		SeedsDir:            getEnvOrDefault("SEEDS_DIR", k.String("seeds_dir"), DefaultSeedsDir),
		BootstrapEmail:      getEnvOrKoanf("BOOTSTRAP_EMAIL", k, "bootstrap_email"),
		BootstrapPassword:   getEnvOrKoanf("BOOTSTRAP_PASSWORD", k, "bootstrap_password"),
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// AccessTTL returns the access token lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTTLMinutes) * time.Minute
}

// SessionTTL returns the session lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// OverdueSweepInterval returns how often the overdue sweep runs.
func (c *Config) OverdueSweepInterval() time.Duration {
	return time.Duration(c.OverdueSweepMinutes) * time.Minute
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// Secrets are masked.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                  fmt.Sprintf("%d", c.Port),
		"env":                   c.Env,
		"database_url":          maskDatabaseURL(c.DatabaseURL),
		"jwt_secret":            maskSecret(c.JWTSecret),
		"access_ttl_minutes":    fmt.Sprintf("%d", c.AccessTTLMinutes),
		"session_ttl_hours":     fmt.Sprintf("%d", c.SessionTTLHours),
		"rate_burst":            fmt.Sprintf("%d", c.RateBurst),
		"rate_per_second":       fmt.Sprintf("%d", c.RatePerSecond),
		"max_body_bytes":        fmt.Sprintf("%d", c.MaxBodyBytes),
		"overdue_sweep_minutes": fmt.Sprintf("%d", c.OverdueSweepMinutes),
		"migrations_dir":        c.MigrationsDir,
		"seeds_dir":             c.SeedsDir,
		"bootstrap_email":       c.BootstrapEmail,
		"bootstrap_password":    maskSecret(c.BootstrapPassword),
	}
}

func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidPort)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// maskSecret shows only the first 4 characters of a secret.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a database URL.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}
	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}
	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s
	}
	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s
	}
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]
	return scheme + user + ":****" + hostAndPath
}
