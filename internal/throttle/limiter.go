// Package throttle limits request rates per client key.
package throttle

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"notes-auth/internal/observability"
)

// Limiter decides whether another hit for key is allowed at now. When it is
// not, the returned duration says how long the caller should wait.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (bool, time.Duration, error)
}

// ClientKey keys requests by client address. trustedProxyHops is the number
// of reverse proxies whose X-Forwarded-For entries are believed; zero keys on
// the connection peer only.
func ClientKey(trustedProxyHops int) httprate.KeyFunc {
	return func(r *http.Request) (string, error) {
		return observability.ClientIP(r, trustedProxyHops), nil
	}
}

// PerClient is a fixed-window in-process limit keyed like Guard, answering
// over-limit requests with the same JSON body.
func PerClient(limit int, window time.Duration, key httprate.KeyFunc) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeTooManyRequests(w, 0)
		}),
	)
}

type Guard struct {
	limiter Limiter
	key     httprate.KeyFunc
	logger  *observability.Logger
	metrics *observability.Metrics
	scope   string
	now     func() time.Time
}

// NewGuard wraps limiter as HTTP middleware. scope prefixes the key so one
// backend can serve several routes.
func NewGuard(limiter Limiter, scope string, key httprate.KeyFunc, logger *observability.Logger, metrics *observability.Metrics) *Guard {
	if key == nil {
		key = ClientKey(0)
	}

	return &Guard{
		limiter: limiter,
		key:     key,
		logger:  logger,
		metrics: metrics,
		scope:   scope,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Middleware rejects over-limit clients with 429. Limiter failures let the
// request through.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, err := g.key(r)
		if err != nil {
			g.failOpen(w, r, next, err)
			return
		}

		allowed, retryAfter, err := g.limiter.Allow(r.Context(), g.scope+":"+client, g.now())
		if err != nil {
			g.failOpen(w, r, next, err)
			return
		}

		if !allowed {
			writeTooManyRequests(w, retryAfter)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (g *Guard) failOpen(w http.ResponseWriter, r *http.Request, next http.Handler, err error) {
	g.metrics.RecordLimiterFailure()
	g.logger.Warn("rate_limiter_failed", map[string]any{
		"scope": g.scope,
		"error": err.Error(),
	})
	next.ServeHTTP(w, r)
}

// writeTooManyRequests sets Retry-After from retryAfter when positive and
// otherwise keeps any value already on the response.
func writeTooManyRequests(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 || w.Header().Get("Retry-After") == "" {
		seconds := int(retryAfter.Round(time.Second).Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": "too many requests",
		"code":  "RATE_LIMITED",
	})
}
