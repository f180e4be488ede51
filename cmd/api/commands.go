package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"notes-auth/internal/app"
	"notes-auth/internal/auth"
	"notes-auth/internal/config"
	"notes-auth/internal/db"
	"notes-auth/internal/maintenance"
	"notes-auth/internal/observability"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "notes-auth",
		Short:         "Authentication service for the notes backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(newServeCmd(), newMigrateCmd(), newCleanupCmd())
	return root
}

type serveConfig struct {
	migrate bool
}

func newServeCmd() *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.migrate, "migrate", true, "apply pending migrations before serving")

	return cmd
}

func runServe(ctx context.Context, cfg *serveConfig) error {
	ctx, stop := signal.NotifyContext(contextOrBackground(ctx), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(ctx, app.Options{LoadDotEnv: true, RunMigrations: cfg.migrate})
	if err != nil {
		observability.NewLogger().Error("bootstrap_failed", map[string]any{"error": err.Error()})
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.Logger.Error("shutdown_failed", map[string]any{"error": err.Error()})
		}
	}()

	srv := &http.Server{
		Addr:              ":" + rt.Config.Port,
		Handler:           rt.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		rt.Logger.Info("server_start", map[string]any{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			rt.Logger.Error("server_failed", map[string]any{"error": err.Error()})
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rt.Logger.Info("server_stop", nil)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}

	return nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := contextOrBackground(cmd.Context())
			logger := observability.NewLogger()

			cfg, err := config.Load(ctx, true)
			if err != nil {
				return err
			}

			database, err := app.OpenDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := db.RunMigrations(ctx, database); err != nil {
				logger.Error("migrations_failed", map[string]any{"error": err.Error()})
				return err
			}

			version, err := db.MigrationVersion(ctx, database)
			if err != nil {
				return err
			}

			logger.Info("migrations_applied", map[string]any{"version": version})
			return nil
		},
	}
}

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired and revoked auth data once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := contextOrBackground(cmd.Context())

			cfg, err := config.Load(ctx, true)
			if err != nil {
				return err
			}
			logger := observability.NewLoggerWithWriter(cmd.OutOrStdout(), cfg.LogLevel)

			database, err := app.OpenDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			cleanup := maintenance.NewCleanupHandler(auth.NewRepository(database), logger, cfg.CronSecret, cfg.RefreshTokenRetention, cfg.CleanupBatchSize)
			_, err = cleanup.Run(ctx)
			return err
		},
	}
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
