package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"notes-auth/internal/auth"
	"notes-auth/internal/config"
	"notes-auth/internal/db"
	"notes-auth/internal/mail"
	"notes-auth/internal/maintenance"
	"notes-auth/internal/observability"
	"notes-auth/internal/throttle"
)

const serviceName = "notes-auth"

type Options struct {
	LoadDotEnv bool
	// RunMigrations forces migrations on startup regardless of config.
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Config  config.Config
	Logger  *observability.Logger
	Cleanup *maintenance.CleanupHandler
	Close   func() error
}

func Build(ctx context.Context, options Options) (*Runtime, error) {
	cfg, err := config.Load(ctx, options.LoadDotEnv)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLoggerWithWriter(os.Stdout, cfg.LogLevel)

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv, cfg.Release); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	shutdownTracing, err := observability.InitTracing(ctx, serviceName, cfg.AppEnv, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("init_tracing_failed", map[string]any{"error": err.Error()})
		shutdownTracing = func(context.Context) error { return nil }
	}

	// Closers run in reverse on shutdown and on any failed step below.
	closers := []func() error{func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("shutdown_tracing_failed", map[string]any{"error": err.Error()})
		}
		observability.FlushSentry()
		return nil
	}}
	fail := func(err error) (*Runtime, error) {
		_ = closeAll(closers)
		return nil, err
	}

	database, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, database.Close)

	if options.RunMigrations || cfg.RunMigrations {
		if err := db.RunMigrations(ctx, database); err != nil {
			return fail(fmt.Errorf("run migrations: %w", err))
		}
	}

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		return fail(err)
	}

	loginLimiter, closeLimiter, err := newLoginLimiter(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeLimiter)

	repo := auth.NewRepository(database)
	wiring, err := NewWiring(Dependencies{
		Config:       cfg,
		Logger:       logger,
		Metrics:      observability.NewMetrics(),
		Store:        repo,
		Cleaner:      repo,
		Mailer:       mailer,
		LoginLimiter: loginLimiter,
		Health:       database.PingContext,
	})
	if err != nil {
		return fail(err)
	}

	logger.Info("app_built", map[string]any{
		"env":            cfg.AppEnv,
		"reset_strategy": cfg.ResetStrategy,
		"smtp_enabled":   cfg.SMTPEnabled(),
		"redis_enabled":  cfg.RedisURL != "",
	})

	return &Runtime{
		Handler: wiring.Handler,
		Config:  cfg,
		Logger:  logger,
		Cleanup: wiring.Cleanup,
		Close:   func() error { return closeAll(closers) },
	}, nil
}

// closeAll runs closers last to first and returns the first error.
func closeAll(closers []func() error) error {
	var firstErr error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// OpenDatabase opens the pool with configured limits and pings it.
func OpenDatabase(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return database, nil
}

func newMailer(cfg config.Config, logger *observability.Logger) (auth.Mailer, error) {
	if !cfg.SMTPEnabled() {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("SMTP_HOST is required in production")
		}
		logger.Warn("smtp_disabled", map[string]any{"reason": "SMTP_HOST not set, reset mail is only logged"})
		return mail.NewLogMailer(logger), nil
	}

	mailer, err := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Timeout:  cfg.SMTPTimeout,
		StartTLS: cfg.SMTPStartTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("init smtp mailer: %w", err)
	}

	return mailer, nil
}

// newLoginLimiter prefers Redis so limits hold across instances, and falls
// back to process memory when REDIS_URL is unset.
func newLoginLimiter(ctx context.Context, cfg config.Config, logger *observability.Logger) (throttle.Limiter, func() error, error) {
	if cfg.RedisURL == "" {
		return throttle.NewMemoryLimiter(cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow), func() error { return nil }, nil
	}

	client, err := throttle.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("init redis limiter: %w", err)
	}
	logger.Info("login_limiter_redis", nil)

	return throttle.NewRedisLimiter(client, cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow, ""), client.Close, nil
}
