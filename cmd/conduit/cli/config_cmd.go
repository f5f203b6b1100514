package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conduitdb/conduit/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage Conduit configuration",
		Long:  "Initialize a default configuration file, display the effective configuration, or validate a settings file.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigValidateCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default conduit.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")

	return cmd
}

const defaultConfigFile = `# Conduit Configuration

server:
  mode: development   # development, staging, production
  host: 0.0.0.0
  port: 8080
  shutdown_timeout: 30s
  cors_origins:
    - "http://localhost:3000"

# Backing store. SQLite needs no configuration; MySQL takes a DSN of the form
# user:password@tcp(host:3306)/dbname
database:
  driver: sqlite
  data_dir: ""        # default: ~/.conduit
  dsn: ""             # mysql only, e.g. ${CONDUIT_DATABASE_DSN}

# Credential verification and token issuance.
auth:
  secret_key: ${CONDUIT_AUTH_SECRET_KEY}
  algorithm: HS256
  access_token_expire_minutes: 30
  api_keys_enabled: true

# Global per-IP rate limit.
rate_limit:
  requests: 100
  window_seconds: 60

logging:
  level: info    # debug, info, warn, error
  format: text   # text or json
`

func runConfigInit(force bool) error {
	path := "conduit.yaml"

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := os.WriteFile(path, []byte(defaultConfigFile), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	fmt.Println("Set CONDUIT_AUTH_SECRET_KEY, then run 'conduit serve'.")
	return nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	return cmd
}

func runConfigShow() error {
	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		fmt.Printf("Config file: %s\n", configFile)
	} else {
		fmt.Println("Config file: (none found, using defaults)")
	}
	fmt.Println()

	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	fmt.Printf("  server.mode:              %s\n", cfg.Server.Mode)
	fmt.Printf("  server.host:              %s\n", cfg.Server.Host)
	fmt.Printf("  server.port:              %d\n", cfg.Server.Port)
	fmt.Printf("  database.driver:          %s\n", cfg.Database.Driver)
	fmt.Printf("  auth.algorithm:           %s\n", cfg.Auth.Algorithm)
	fmt.Printf("  auth.secret_key:          %s\n", redactSecret(cfg.Auth.SecretKey))
	fmt.Printf("  auth.token_ttl_minutes:   %d\n", cfg.Auth.AccessTokenExpireMinutes)
	fmt.Printf("  auth.api_keys_enabled:    %t\n", cfg.Auth.APIKeysEnabled)
	fmt.Printf("  rate_limit.requests:      %d\n", cfg.Limits.Requests)
	fmt.Printf("  rate_limit.window_secs:   %d\n", cfg.Limits.WindowSeconds)
	fmt.Printf("  logging.level:            %s\n", cfg.Logging.Level)
	fmt.Printf("  logging.format:           %s\n", cfg.Logging.Format)

	return nil
}

// redactSecret shows only enough of a secret to confirm which one is set.
func redactSecret(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "****"
}

// ---------- config validate ----------

func newConfigValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a configuration file",
		Long:  "Check a settings file against the same rules the server applies before listening.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runConfigValidate(path)
		},
	}

	return cmd
}

func runConfigValidate(path string) error {
	var cfg config.Settings
	var err error

	switch {
	case path != "":
		cfg, err = config.Load(path)
	case viper.ConfigFileUsed() != "":
		path = viper.ConfigFileUsed()
		cfg, err = config.Load(path)
	default:
		cfg = config.Default()
		path = "(defaults)"
	}
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Printf("%s: configuration is valid\n", path)
	return nil
}
