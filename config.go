package geoquest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/minus-twelve/geoquest/catalog"
	"github.com/minus-twelve/geoquest/types"
)

type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// ChallengeConfig holds the tunables of the challenge itself.
type ChallengeConfig struct {
	JWTSecret               string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TotalRiddles            int           `yaml:"total_riddles" env:"TOTAL_RIDDLES"`
	MaxAttemptsPerRiddle    int           `yaml:"max_attempts_per_riddle" env:"MAX_ATTEMPTS_PER_RIDDLE"`
	LocationToleranceMeters float64       `yaml:"location_tolerance_meters" env:"LOCATION_TOLERANCE_METERS"`
	SessionTimeoutMinutes   int           `yaml:"session_timeout_minutes" env:"SESSION_TIMEOUT_MINUTES"`
	SessionRetention        time.Duration `yaml:"session_retention" env:"SESSION_RETENTION"`
	CleanupInterval         time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
}

// SecurityConfig configures request throttling. A zero RateLimitRPS
// disables the limiter.
type SecurityConfig struct {
	RateLimitRPS   float64  `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	TrustedProxies []string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES" envSeparator:","`
}

type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Challenge ChallengeConfig   `yaml:"challenge"`
	Store     types.StoreConfig `yaml:"store"`
	Security  SecurityConfig    `yaml:"security"`
	Riddles   []catalog.Source  `yaml:"riddles"`

	catalog *catalog.Catalog
}

// DefaultConfig returns the built-in defaults. JWTSecret and the riddles
// have no default.
func DefaultConfig() Config {
	cfg := Config{
		Server: ServerConfig{
			Port:            3001,
			LogLevel:        "info",
			ShutdownTimeout: 10 * time.Second,
		},
		Challenge: ChallengeConfig{
			TotalRiddles:            3,
			MaxAttemptsPerRiddle:    3,
			LocationToleranceMeters: 2,
			SessionTimeoutMinutes:   60,
			CleanupInterval:         time.Hour,
		},
		Security: SecurityConfig{
			RateLimitRPS:   5,
			RateLimitBurst: 10,
		},
	}
	cfg.Store.StoreType = "memory"
	cfg.Store.Redis.Addr = "localhost:6379"
	cfg.Store.Redis.Prefix = "geoquest:"
	return cfg
}

// LoadConfig layers defaults, the optional YAML file at path and the
// environment, then validates the result and builds the riddle catalog.
// A nil environ reads the process environment.
func LoadConfig(path string, environ map[string]string) (*Config, error) {
	if environ == nil {
		environ = environMap(os.Environ())
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, wrapError(CodeConfig, "read config file", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, wrapError(CodeConfig, "parse config file "+path, err)
		}
	}

	opts := env.Options{Environment: environ}
	for _, section := range []any{&cfg.Server, &cfg.Challenge, &cfg.Store, &cfg.Security} {
		if err := env.ParseWithOptions(section, opts); err != nil {
			return nil, wrapError(CodeConfig, "parse env", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, wrapError(CodeConfig, "config validation", err)
	}

	riddles, err := catalog.FromEnv(cfg.Challenge.TotalRiddles, environ, cfg.Riddles)
	if err != nil {
		return nil, wrapError(CodeConfig, "riddle configuration error", err)
	}
	cat, err := catalog.New(cfg.Challenge.TotalRiddles, riddles)
	if err != nil {
		return nil, wrapError(CodeConfig, "riddle configuration error", err)
	}
	cfg.catalog = cat

	return &cfg, nil
}

// Validate checks the scalar settings. The riddle set is checked separately
// when the catalog is built.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Challenge.JWTSecret) == "" {
		return newError(CodeConfig, "JWT_SECRET is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if _, err := c.Server.SlogLevel(); err != nil {
		return err
	}
	if c.Challenge.TotalRiddles < 1 {
		return fmt.Errorf("TOTAL_RIDDLES must be positive, got %d", c.Challenge.TotalRiddles)
	}
	if c.Challenge.MaxAttemptsPerRiddle < 1 {
		return fmt.Errorf("MAX_ATTEMPTS_PER_RIDDLE must be positive, got %d", c.Challenge.MaxAttemptsPerRiddle)
	}
	if c.Challenge.LocationToleranceMeters < 0 {
		return fmt.Errorf("LOCATION_TOLERANCE_METERS must not be negative, got %v", c.Challenge.LocationToleranceMeters)
	}
	if c.Challenge.SessionTimeoutMinutes < 1 {
		return fmt.Errorf("SESSION_TIMEOUT_MINUTES must be positive, got %d", c.Challenge.SessionTimeoutMinutes)
	}
	if c.Challenge.SessionRetention < 0 {
		return fmt.Errorf("SESSION_RETENTION must not be negative, got %s", c.Challenge.SessionRetention)
	}
	if c.Challenge.SessionRetention > 0 && c.Challenge.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be positive when SESSION_RETENTION is set")
	}
	if c.Security.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative, got %v", c.Security.RateLimitRPS)
	}
	if c.Security.RateLimitRPS > 0 && c.Security.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}
	switch c.Store.StoreType {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("STORE_TYPE must be memory or redis, got %q", c.Store.StoreType)
	}
	return nil
}

// Catalog returns the riddle catalog built by LoadConfig.
func (c *Config) Catalog() *catalog.Catalog {
	return c.catalog
}

// Rules returns the attempt and tolerance settings for NewChallenge.
func (c *Config) Rules() Rules {
	return Rules{
		MaxAttempts:     c.Challenge.MaxAttemptsPerRiddle,
		ToleranceMeters: c.Challenge.LocationToleranceMeters,
	}
}

// SessionTimeout is the lifetime of a continuation token.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Challenge.SessionTimeoutMinutes) * time.Minute
}

func (s ServerConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q: %w", s.LogLevel, err)
	}
	return lvl, nil
}

func environMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}
