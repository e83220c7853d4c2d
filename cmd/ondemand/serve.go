package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/ondemand/bootstrap"
	"github.com/artpar/ondemand/config"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the ondemand server.

The server will:
  - Load configuration from ondemand.yaml (or --config)
  - Or load configuration from ONDEMAND_* environment variables
  - Connect to the database
  - Mount every model recorded in the artifact store
  - Accept new models at POST /rest/generate-rest-api

Environment variables (for Docker deployments):
  ONDEMAND_DATABASE_DRIVER   - sqlite or postgres (default: sqlite)
  ONDEMAND_DATABASE_DSN      - Database DSN (default: ondemand.db)
  ONDEMAND_SERVER_PORT       - Server port (default: 8000)
  ONDEMAND_ARTIFACTS_DIR     - Artifact directory (default: models)
  ONDEMAND_LOG_LEVEL         - Log level: debug, info, warn, error

Examples:
  ondemand serve
  ondemand serve --config /etc/ondemand/config.yaml
  ondemand serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "apply logging.level and server.request_timeout on SIGHUP and config file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	var cfg *config.Config
	var holder *config.Holder

	if hasConfigFile && hotReload {
		// Hot reload only works with config file
		h, err := config.NewHolder(cfgFile, zerolog.New(os.Stdout).With().Timestamp().Logger())
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		holder = h
		cfg = h.Get()
	} else {
		c, err := config.LoadWithFallback(cfgFile)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		if !hasConfigFile {
			fmt.Fprintln(cmd.OutOrStdout(), "Running with environment variables (no config file)")
		}
		cfg = c
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}
	defer app.Close()

	if holder != nil {
		holder.OnChange(app.Reconfigure)
		go func() {
			if err := holder.Watch(ctx); err != nil {
				app.Logger.Warn().Err(err).Msg("config file watch disabled")
			}
		}()
	}

	// Run (blocks until shutdown)
	return app.Run(ctx)
}
