package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/conduitdb/conduit/internal/config"
	"github.com/conduitdb/conduit/internal/store"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// CONDUIT_DATA_DIR env var, the settings file, or ~/.conduit as fallback.
func resolveDataDir(cfg config.Settings) string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("CONDUIT_DATA_DIR"); envDir != "" {
		return envDir
	}
	if cfg.Database.DataDir != "" {
		return cfg.Database.DataDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.conduit"
}

// loadSettings reads the settings file located by viper (or the defaults when
// no file exists) and applies CONDUIT_* environment overrides for the
// credential-sensitive values.
func loadSettings() (config.Settings, error) {
	var cfg config.Settings
	var err error

	if path := viper.ConfigFileUsed(); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return config.Settings{}, err
		}
	} else {
		cfg = config.Default()
	}

	if secret := viper.GetString("auth.secret_key"); secret != "" {
		cfg.Auth.SecretKey = secret
	}
	if dsn := viper.GetString("database.dsn"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	return cfg, nil
}

// openStore opens the backing store selected by the settings: SQLite in the
// data directory, or MySQL via DSN.
func openStore(cfg config.Settings) (*store.Store, error) {
	if cfg.Database.Driver == "mysql" {
		return store.NewStore("mysql", cfg.Database.DSN)
	}
	return store.NewStore("sqlite", resolveDataDir(cfg))
}

// newLogger builds the process logger from the logging settings.
func newLogger(cfg config.Settings) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
