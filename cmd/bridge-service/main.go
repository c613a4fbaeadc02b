package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hookbridge/internal/config"
	"hookbridge/internal/constants"
	"hookbridge/internal/credentials"
	"hookbridge/internal/logger"
	"hookbridge/internal/oauth"
	"hookbridge/internal/security"
	"hookbridge/internal/usermapping"
	"hookbridge/pkg/logging"
	"hookbridge/pkg/migrations"
)

var (
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          constants.ServiceName,
		Short:        "Webhook bridge between a chat platform and the planning backend",
		Long:         "Bridge Service verifies chat platform webhooks, acknowledges them immediately and processes them asynchronously. It also runs the workspace install/uninstall flow.",
		RunE:         serveCmd().RunE,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (or CONFIG_FILE)")

	rootCmd.AddCommand(serveCmd(), migrateCmd(), installURLCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(earlyLog *logging.EarlyLog) (*config.Config, error) {
	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
		if configFile == "" {
			earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
			return nil, fmt.Errorf("config file is required")
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge service",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog(cmd.OutOrStdout(), cmd.ErrOrStderr())

			cfg, err := loadConfig(earlyLog)
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting Bridge Service")

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				_ = app.Shutdown(context.Background())
				return err
			}

			log.InfowCtx(ctx, "Service running")
			if err := app.Run(ctx); err != nil && err != context.Canceled {
				log.ErrorwCtx(ctx, "Service stopped with error", "error", err)
				return err
			}
			log.InfowCtx(ctx, "Service shutdown complete")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the credential store schema",
	}

	for _, direction := range []string{migrations.DirectionUp, migrations.DirectionDown} {
		cmd.AddCommand(&cobra.Command{
			Use:   direction,
			Short: fmt.Sprintf("Run PostgreSQL migrations %s", direction),
			RunE: func(cmd *cobra.Command, args []string) error {
				earlyLog := logging.NewEarlyLog(cmd.OutOrStdout(), cmd.ErrOrStderr())

				cfg, err := loadConfig(earlyLog)
				if err != nil {
					return err
				}
				if cfg.Database.Postgres.Host == "" {
					earlyLog.Error("database.postgres.host is not configured")
					return fmt.Errorf("postgres is not configured")
				}

				if err := migrations.RunPostgres(cfg.Database.Postgres.DSN(), direction); err != nil {
					earlyLog.Error("Migration failed: %v", err)
					return err
				}
				earlyLog.Info("Migrations %s applied", direction)
				return nil
			},
		})
	}

	return cmd
}

func installURLCmd() *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "install-url",
		Short: "Print a workspace installation URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog(cmd.OutOrStdout(), cmd.ErrOrStderr())

			cfg, err := loadConfig(earlyLog)
			if err != nil {
				return err
			}

			cipher, err := security.NewTokenCipher(cfg.Security.EncryptionSecret, cfg.Security.KeyDerivation)
			if err != nil {
				return err
			}

			log := logger.NopLogger()
			manager, err := oauth.NewManager(cfg.OAuth, cipher,
				credentials.NewMemoryStore(),
				usermapping.NewMemoryStore(),
				oauth.NewProviderClient(cfg.OAuth, cfg.CircuitBreaker.Overrides(), log),
				log,
			)
			if err != nil {
				return err
			}

			url, err := manager.GenerateInstallURL(state)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "CSRF state to embed (a signed state is issued when empty)")
	return cmd
}
