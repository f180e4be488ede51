package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const (
	ResetStrategyCode = "code"
	ResetStrategyLink = "link"
)

// Config holds runtime configuration for the auth service.
type Config struct {
	AppEnv        string `env:"APP_ENV,default=development"`
	Release       string `env:"APP_RELEASE"`
	Port          string `env:"PORT,default=8080"`
	LogLevel      string `env:"LOG_LEVEL,default=info"`
	RunMigrations bool   `env:"RUN_MIGRATIONS_ON_STARTUP,default=false"`

	DatabaseURL       string        `env:"DATABASE_URL,required"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=10"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME,default=10m"`

	JWTSecret         string        `env:"JWT_SECRET,required"`
	JWTIssuer         string        `env:"JWT_ISSUER,default=notes-auth"`
	AccessTokenTTL    time.Duration `env:"ACCESS_TOKEN_TTL,default=30m"`
	RefreshTokenTTL   time.Duration `env:"REFRESH_TOKEN_TTL,default=24h"`
	RememberMeTTL     time.Duration `env:"REMEMBER_ME_TTL,default=1440h"`
	DisplayAccessTTL  time.Duration `env:"REMEMBER_ME_DISPLAY_ACCESS_TTL,default=720h"`
	DisplayRefreshTTL time.Duration `env:"REMEMBER_ME_DISPLAY_REFRESH_TTL,default=1440h"`

	Argon2MemoryKB    uint32 `env:"ARGON2_MEMORY_KB,default=65536"`
	Argon2Iterations  uint32 `env:"ARGON2_ITERATIONS,default=1"`
	Argon2Parallelism uint8  `env:"ARGON2_PARALLELISM,default=4"`

	ResetStrategy string        `env:"RESET_STRATEGY,default=code"`
	ResetCodeTTL  time.Duration `env:"RESET_CODE_TTL,default=15m"`
	ResetLinkTTL  time.Duration `env:"RESET_LINK_TTL,default=72h"`
	FrontendURL   string        `env:"FRONTEND_URL,default=http://localhost:5173"`

	SMTPHost     string        `env:"SMTP_HOST"`
	SMTPPort     int           `env:"SMTP_PORT,default=587"`
	SMTPUsername string        `env:"SMTP_USER"`
	SMTPPassword string        `env:"SMTP_PASS"`
	SMTPFrom     string        `env:"SMTP_FROM,default=no-reply@localhost"`
	SMTPTimeout  time.Duration `env:"SMTP_TIMEOUT,default=10s"`
	SMTPStartTLS bool          `env:"SMTP_STARTTLS,default=true"`

	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:5173"`
	// TrustedProxyHops counts the reverse proxies whose X-Forwarded-For
	// entries identify the client. Zero keys on the connection peer.
	TrustedProxyHops int `env:"TRUSTED_PROXY_HOPS,default=0"`

	RedisURL             string        `env:"REDIS_URL"`
	LoginRateLimitMax    int           `env:"LOGIN_RATE_LIMIT_MAX,default=10"`
	LoginRateLimitWindow time.Duration `env:"LOGIN_RATE_LIMIT_WINDOW,default=1m"`
	ResetRateLimitMax    int           `env:"RESET_RATE_LIMIT_MAX,default=5"`
	ResetRateLimitWindow time.Duration `env:"RESET_RATE_LIMIT_WINDOW,default=1m"`

	SentryDSN    string `env:"SENTRY_DSN"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	CronSecret            string        `env:"CRON_SECRET"`
	RefreshTokenRetention time.Duration `env:"AUTH_REFRESH_TOKEN_RETENTION,default=336h"`
	CleanupBatchSize      int           `env:"AUTH_CLEANUP_BATCH_SIZE,default=500"`
}

// Load reads the environment, optionally seeded from a local .env file.
func Load(ctx context.Context, loadDotEnv bool) (Config, error) {
	if loadDotEnv {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	c.ResetStrategy = strings.ToLower(strings.TrimSpace(c.ResetStrategy))
	switch c.ResetStrategy {
	case ResetStrategyCode, ResetStrategyLink:
	default:
		return fmt.Errorf("invalid RESET_STRATEGY %q: want %q or %q", c.ResetStrategy, ResetStrategyCode, ResetStrategyLink)
	}

	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.RememberMeTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}

	if c.ResetCodeTTL <= 0 || c.ResetLinkTTL <= 0 {
		return fmt.Errorf("reset lifetimes must be positive")
	}

	if c.TrustedProxyHops < 0 {
		return fmt.Errorf("TRUSTED_PROXY_HOPS must not be negative")
	}

	c.FrontendURL = strings.TrimRight(strings.TrimSpace(c.FrontendURL), "/")

	return nil
}

// SMTPEnabled reports whether outbound mail should go through SMTP.
func (c Config) SMTPEnabled() bool {
	return strings.TrimSpace(c.SMTPHost) != ""
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}
