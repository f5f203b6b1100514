package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default settings should validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{"unknown mode", func(s *Settings) { s.Server.Mode = "testing" }, "server mode"},
		{"port too low", func(s *Settings) { s.Server.Port = 0 }, "port"},
		{"port too high", func(s *Settings) { s.Server.Port = 70000 }, "port"},
		{"bad shutdown timeout", func(s *Settings) { s.Server.ShutdownTimeout = "soon" }, "shutdown_timeout"},
		{"unknown driver", func(s *Settings) { s.Database.Driver = "postgres" }, "database driver"},
		{"mysql without dsn", func(s *Settings) { s.Database.Driver = "mysql" }, "dsn"},
		{"mysql malformed dsn", func(s *Settings) {
			s.Database.Driver = "mysql"
			s.Database.DSN = "just-a-hostname"
		}, "mysql dsn"},
		{"unsupported algorithm", func(s *Settings) { s.Auth.Algorithm = "RS256" }, "algorithm"},
		{"token expiry too low", func(s *Settings) { s.Auth.AccessTokenExpireMinutes = 0 }, "expiry"},
		{"token expiry too high", func(s *Settings) { s.Auth.AccessTokenExpireMinutes = 1441 }, "expiry"},
		{"rate limit zero", func(s *Settings) { s.Limits.Requests = 0 }, "rate limit"},
		{"rate limit window too long", func(s *Settings) { s.Limits.WindowSeconds = 7200 }, "window"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Default()
			tc.mutate(&s)
			err := s.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("error does not wrap ErrInvalid: %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestWeakSecretRejectedOnlyInProduction(t *testing.T) {
	s := Default()
	s.Auth.SecretKey = "short"

	if err := s.Validate(); err != nil {
		t.Errorf("weak secret should pass in development: %v", err)
	}

	s.Server.Mode = ModeProduction
	if err := s.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("weak secret in production: got %v, want ErrInvalid", err)
	}

	s.Auth.SecretKey = strings.Repeat("k", 32)
	if err := s.Validate(); err != nil {
		t.Errorf("32-char secret should pass in production: %v", err)
	}
}

func TestLoadYAMLWithEnvExpansion(t *testing.T) {
	t.Setenv("CONDUIT_TEST_SECRET", strings.Repeat("s", 40))

	dir := t.TempDir()
	path := filepath.Join(dir, "conduit.yaml")
	content := `
server:
  mode: production
  port: 9090
auth:
  secret_key: ${CONDUIT_TEST_SECRET}
  access_token_expire_minutes: 60
database:
  driver: mysql
  dsn: conduit:secret@tcp(localhost:3306)/conduit
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("got port %d, want 9090", cfg.Server.Port)
	}
	if cfg.Auth.SecretKey != strings.Repeat("s", 40) {
		t.Error("secret key was not expanded from the environment")
	}
	if cfg.AccessTokenTTL() != time.Hour {
		t.Errorf("got TTL %v, want 1h", cfg.AccessTokenTTL())
	}
	// Defaults survive for unspecified sections.
	if !cfg.Auth.APIKeysEnabled {
		t.Error("expected api_keys_enabled default to survive")
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conduit.yaml")
	os.WriteFile(path, []byte("server:\n  mode: nonsense\n"), 0644)

	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Errorf("got %v, want ErrInvalid", err)
	}
}
