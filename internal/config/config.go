package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure. Settings that fail
// validation are fatal: the process must not start with them.
var ErrInvalid = errors.New("invalid configuration")

// Server modes. Production tightens validation (notably the secret key).
const (
	ModeDevelopment = "development"
	ModeStaging     = "staging"
	ModeProduction  = "production"
)

// Settings is the immutable top-level configuration value. It is constructed
// once at process start and handed to the components that need it; there is
// no cached global.
type Settings struct {
	Server   ServerSettings   `yaml:"server"`
	Database DatabaseSettings `yaml:"database"`
	Auth     AuthSettings     `yaml:"auth"`
	Limits   LimitSettings    `yaml:"rate_limit"`
	Logging  LoggingSettings  `yaml:"logging"`
}

// ServerSettings controls the HTTP server behavior.
type ServerSettings struct {
	Mode            string   `yaml:"mode"`
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	CORSOrigins     []string `yaml:"cors_origins"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
}

// DatabaseSettings selects the persistence backend. SQLite is the
// zero-config default; MySQL is the production backend.
type DatabaseSettings struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	DataDir string `yaml:"data_dir"`
}

// AuthSettings controls credential verification and token issuance.
type AuthSettings struct {
	SecretKey                string `yaml:"secret_key"`
	Algorithm                string `yaml:"algorithm"`
	AccessTokenExpireMinutes int    `yaml:"access_token_expire_minutes"`
	APIKeysEnabled           bool   `yaml:"api_keys_enabled"`
}

// LimitSettings controls the global per-IP rate limit.
type LimitSettings struct {
	Requests      int `yaml:"requests"`
	WindowSeconds int `yaml:"window_seconds"`
}

// LoggingSettings controls log output.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns Settings pre-filled with development defaults.
func Default() Settings {
	return Settings{
		Server: ServerSettings{
			Mode:            ModeDevelopment,
			Host:            "0.0.0.0",
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:3000"},
			ShutdownTimeout: "30s",
		},
		Database: DatabaseSettings{
			Driver: "sqlite",
		},
		Auth: AuthSettings{
			SecretKey:                "change-this-secret-key-in-production",
			Algorithm:                "HS256",
			AccessTokenExpireMinutes: 30,
			APIKeysEnabled:           true,
		},
		Limits: LimitSettings{
			Requests:      100,
			WindowSeconds: 60,
		},
		Logging: LoggingSettings{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML settings file over the defaults. Environment variables
// referenced as ${VAR_NAME} in the file are expanded before parsing. The
// result is validated before being returned.
func Load(path string) (Settings, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read config file: %w", err)
	}
	content := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return Settings{}, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

// Validate checks every startup invariant. Any violation is wrapped with
// ErrInvalid and must abort startup.
func (s Settings) Validate() error {
	switch s.Server.Mode {
	case ModeDevelopment, ModeStaging, ModeProduction:
	default:
		return fmt.Errorf("%w: server mode must be one of development, staging, production; got %q",
			ErrInvalid, s.Server.Mode)
	}

	if s.Server.Port < 1 || s.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range 1-65535", ErrInvalid, s.Server.Port)
	}

	if _, err := s.ShutdownTimeout(); err != nil {
		return fmt.Errorf("%w: shutdown_timeout: %v", ErrInvalid, err)
	}

	switch s.Database.Driver {
	case "sqlite":
	case "mysql":
		if s.Database.DSN == "" {
			return fmt.Errorf("%w: mysql driver requires a dsn", ErrInvalid)
		}
		if !strings.Contains(s.Database.DSN, "@") || !strings.Contains(s.Database.DSN, "/") {
			return fmt.Errorf("%w: mysql dsn must follow user:password@protocol(host)/dbname", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: database driver must be sqlite or mysql; got %q",
			ErrInvalid, s.Database.Driver)
	}

	// The signing algorithm is a fixed, explicit choice. It is never
	// negotiated from tokens, and only HS256 is supported.
	if s.Auth.Algorithm != "HS256" {
		return fmt.Errorf("%w: signing algorithm must be HS256; got %q", ErrInvalid, s.Auth.Algorithm)
	}

	if s.IsProduction() && len(s.Auth.SecretKey) < 32 {
		return fmt.Errorf("%w: secret key must be at least 32 characters in production", ErrInvalid)
	}

	if s.Auth.AccessTokenExpireMinutes < 1 || s.Auth.AccessTokenExpireMinutes > 1440 {
		return fmt.Errorf("%w: access token expiry %d out of range 1-1440 minutes",
			ErrInvalid, s.Auth.AccessTokenExpireMinutes)
	}

	if s.Limits.Requests < 1 {
		return fmt.Errorf("%w: rate limit requests must be positive", ErrInvalid)
	}
	if s.Limits.WindowSeconds < 1 || s.Limits.WindowSeconds > 3600 {
		return fmt.Errorf("%w: rate limit window %d out of range 1-3600 seconds",
			ErrInvalid, s.Limits.WindowSeconds)
	}

	return nil
}

// IsProduction reports whether the server runs in production mode.
func (s Settings) IsProduction() bool {
	return s.Server.Mode == ModeProduction
}

// AccessTokenTTL returns the configured default token lifetime.
func (s Settings) AccessTokenTTL() time.Duration {
	return time.Duration(s.Auth.AccessTokenExpireMinutes) * time.Minute
}

// ShutdownTimeout parses the configured graceful-shutdown window.
func (s Settings) ShutdownTimeout() (time.Duration, error) {
	if s.Server.ShutdownTimeout == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(s.Server.ShutdownTimeout)
}

// RateLimitWindow returns the configured rate-limit window.
func (s Settings) RateLimitWindow() time.Duration {
	return time.Duration(s.Limits.WindowSeconds) * time.Second
}
