// Package main implements the entry point for the Owl API server, which runs
// short-video analysis tasks against a bounded pool of GPU units.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/owl-api/internal/config"
	"github.com/phrazzld/owl-api/internal/domain"
	"github.com/phrazzld/owl-api/internal/platform/logger"
	"github.com/phrazzld/owl-api/internal/platform/postgres"
	"github.com/phrazzld/owl-api/internal/service/auth"
	"github.com/spf13/cobra"
)

// version is set at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "owl-api",
		Short:        "Short-video analysis API server",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "",
		"path to a YAML config file (default ./config.yaml if present)")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		return cfg, nil
	}

	root.AddCommand(
		newServeCmd(loadConfig),
		newMigrateCmd(loadConfig),
		newTokenCmd(loadConfig),
	)
	return root
}

type configLoader func() (*config.Config, error)

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log, closeLog, err := logger.Setup(cfg.Server)
			if err != nil {
				return fmt.Errorf("failed to set up logger: %w", err)
			}
			defer func() { _ = closeLog() }()

			log.Info("server configuration loaded",
				"port", cfg.Server.Port,
				"log_level", cfg.Server.LogLevel,
				"database", cfg.Database.URL != "",
				"llm", cfg.LLM.Enabled())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newApplication(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
			if err != nil {
				_ = app.shutdown(context.Background())
				return fmt.Errorf("failed to listen: %w", err)
			}
			return app.serve(ctx, ln)
		},
	}
}

func newMigrateCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <up|down|status|reset>",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "status", "reset"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command, err := postgres.ParseMigrationCommand(args[0])
			if err != nil {
				return err
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("database.url is not configured")
			}
			level, _ := logger.ParseLevel(cfg.Server.LogLevel)
			log := logger.New(cmd.ErrOrStderr(), level)

			db, err := postgres.Open(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			return postgres.Migrate(cmd.Context(), db, command, log)
		},
	}
}

func newTokenCmd(load configLoader) *cobra.Command {
	var subject, email, role string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed access token for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			svc, err := auth.NewJWTService(cfg.Auth)
			if err != nil {
				return err
			}
			tok, err := svc.GenerateToken(cmd.Context(), domain.Principal{
				ID:    subject,
				Email: email,
				Role:  domain.ParseRole(role),
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "user ID placed in the sub claim")
	cmd.Flags().StringVar(&email, "email", "", "optional email claim")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleUser), "user, admin or super_admin")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
