package cli

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mongo-bridge/internal/app"
	"mongo-bridge/internal/config"
)

func newServeCmd() *cobra.Command {
	var (
		configFile string
		envFile    string
		listen     string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the datasource HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return fmt.Errorf("load env file: %w", err)
			}
			if configFile == "" {
				configFile = os.Getenv("CONFIG_FILE")
			}
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = listen
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			logger := cfg.NewLogger(cmd.ErrOrStderr())
			for _, w := range cfg.Warnings {
				logger.Warn(w)
			}

			a, err := app.New(app.Deps{
				Cfg:       cfg,
				Logger:    logger,
				Datastore: newDatastore(logger, cfg.MongoConnectTimeout),
			})
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}

			ln, err := net.Listen("tcp", cfg.ListenAddr)
			if err != nil {
				a.Close()
				return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Serve(ctx, ln)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "YAML config file (default $CONFIG_FILE)")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides LISTEN_ADDR)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")

	return cmd
}
