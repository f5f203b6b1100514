package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conduitdb/conduit/internal/config"
	"github.com/conduitdb/conduit/internal/server"
	"github.com/conduitdb/conduit/internal/service"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Conduit API server",
		Long:  "Start the HTTP server that issues tokens, verifies API keys, and serves the query history log.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging, CORS *)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(cmd *cobra.Command, host string, port int, dev bool) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("host") {
		cfg.Server.Host = host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}
	if dev {
		cfg.Server.Mode = config.ModeDevelopment
		cfg.Server.CORSOrigins = []string{"*"}
		cfg.Logging.Level = "debug"
	}

	// Refuse to start on an invalid configuration. In production mode this
	// includes the weak-secret check.
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg)

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	logger.Info("store initialized", "driver", cfg.Database.Driver)

	keys := service.NewKeyService(st, logger)
	tokens := service.NewTokenService(st, cfg.Auth.SecretKey, cfg.AccessTokenTTL(), logger)

	srv := server.New(cfg, st, keys, tokens, logger)

	fmt.Printf("→ Conduit %s (%s mode)\n", server.Version, cfg.Server.Mode)
	fmt.Printf("→ Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()

	return srv.ListenAndServe()
}
