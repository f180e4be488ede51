package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const accountIDKey contextKey = "auth.account_id"

// TokenAuthenticator validates an access token and returns its account id.
type TokenAuthenticator interface {
	Authenticate(accessToken string) (string, error)
}

// Middleware requires a valid Bearer access token and stores the account id
// in the request context.
func Middleware(authenticator TokenAuthenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing authorization token")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid authorization format")
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid authorization token")
			return
		}

		accountID, err := authenticator.Authenticate(tokenStr)
		if err != nil {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountIDKey, accountID)))
	})
}

func AccountIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(accountIDKey).(string)
	return id, ok && id != ""
}
