package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/cors"

	"notes-auth/internal/auth"
	"notes-auth/internal/config"
	"notes-auth/internal/mail"
	"notes-auth/internal/maintenance"
	"notes-auth/internal/observability"
	"notes-auth/internal/throttle"
)

// Dependencies are the collaborators the HTTP surface is assembled from.
// Build supplies the Postgres repository; tests supply fakes.
type Dependencies struct {
	Config       config.Config
	Logger       *observability.Logger
	Metrics      *observability.Metrics
	Store        auth.Store
	Cleaner      maintenance.Cleaner
	Mailer       auth.Mailer
	LoginLimiter throttle.Limiter
	Health       func(ctx context.Context) error
}

type Wiring struct {
	Handler http.Handler
	Cleanup *maintenance.CleanupHandler
}

// NewWiring builds the auth services, picks the reset strategy, mounts the
// routes with their rate limits and wraps the middleware chain.
func NewWiring(deps Dependencies) (*Wiring, error) {
	cfg := deps.Config

	renderer, err := mail.NewRenderer()
	if err != nil {
		return nil, err
	}

	hasher := auth.NewArgon2idHasher(auth.Argon2Params{
		Memory:      cfg.Argon2MemoryKB,
		Iterations:  cfg.Argon2Iterations,
		Parallelism: cfg.Argon2Parallelism,
	})
	signer := auth.NewJWTSigner(cfg.JWTSecret, cfg.JWTIssuer)
	policy := auth.DefaultPasswordPolicy()

	authService := auth.NewService(deps.Store, hasher, signer)
	authService.WithTokenConfig(cfg.AccessTokenTTL, cfg.RefreshTokenTTL, cfg.RememberMeTTL, cfg.DisplayAccessTTL, cfg.DisplayRefreshTTL)

	codes := auth.NewResetCodeCoordinator(deps.Store, hasher, policy, deps.Mailer, renderer)
	codes.WithTTL(cfg.ResetCodeTTL)

	links := auth.NewResetLinkCoordinator(deps.Store, hasher, policy, signer, deps.Mailer, renderer, cfg.JWTSecret, cfg.FrontendURL)
	links.WithTTL(cfg.ResetLinkTTL)

	authHandler := auth.NewHandler(auth.HandlerOptions{
		Service:   authService,
		Registrar: auth.NewRegistrar(deps.Store, hasher, policy),
		Requester: selectRequester(cfg.ResetStrategy, codes, links),
		Codes:     codes,
		Links:     links,
		Logger:    deps.Logger,
		Events:    deps.Metrics,
	})

	key := throttle.ClientKey(cfg.TrustedProxyHops)
	loginGuard := throttle.NewGuard(deps.LoginLimiter, "login", key, deps.Logger, deps.Metrics)

	cleanupHandler := maintenance.NewCleanupHandler(deps.Cleaner, deps.Logger, cfg.CronSecret, cfg.RefreshTokenRetention, cfg.CleanupBatchSize)

	mux := http.NewServeMux()
	authHandler.RegisterRoutes(mux, auth.RouteGuards{
		Login:        loginGuard.Middleware,
		ResetRequest: throttle.PerClient(cfg.ResetRateLimitMax, cfg.ResetRateLimitWindow, key),
	})
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(deps.Health))
	mux.Handle("GET /metrics", deps.Metrics.Handler())

	var handler http.Handler = observability.RecoverMiddleware(deps.Logger, observability.RequestLoggingMiddleware(deps.Logger, deps.Metrics, mux))
	handler = cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	})(handler)
	handler = observability.TracingMiddleware(serviceName, handler)

	return &Wiring{Handler: handler, Cleanup: cleanupHandler}, nil
}

func selectRequester(strategy string, codes, links auth.ResetRequester) auth.ResetRequester {
	if strategy == config.ResetStrategyLink {
		return links
	}
	return codes
}

func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
