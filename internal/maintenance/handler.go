package maintenance

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"notes-auth/internal/auth"
	"notes-auth/internal/observability"
)

// Cleaner purges auth rows that can no longer be used.
type Cleaner interface {
	CleanupStaleAuthData(ctx context.Context, refreshRetention, resetCodeRetention time.Duration, batchSize int) (auth.CleanupResult, error)
}

// ResetCodeRetention keeps spent or expired codes around briefly for auditing.
const ResetCodeRetention = 30 * time.Minute

type CleanupHandler struct {
	cleaner          Cleaner
	logger           *observability.Logger
	cronSecret       string
	refreshRetention time.Duration
	batchSize        int
}

func NewCleanupHandler(
	cleaner Cleaner,
	logger *observability.Logger,
	cronSecret string,
	refreshRetention time.Duration,
	batchSize int,
) *CleanupHandler {
	return &CleanupHandler{
		cleaner:          cleaner,
		logger:           logger,
		cronSecret:       strings.TrimSpace(cronSecret),
		refreshRetention: refreshRetention,
		batchSize:        batchSize,
	}
}

// Run performs one cleanup pass. Shared by the HTTP hook and the CLI.
func (h *CleanupHandler) Run(ctx context.Context) (auth.CleanupResult, error) {
	result, err := h.cleaner.CleanupStaleAuthData(ctx, h.refreshRetention, ResetCodeRetention, h.batchSize)
	if err != nil {
		h.logger.Error("auth_cleanup_failed", map[string]any{"error": err.Error()})
		return auth.CleanupResult{}, err
	}

	h.logger.Info("auth_cleanup_completed", map[string]any{
		"deleted_refresh_tokens":     result.DeletedRefreshTokens,
		"deleted_remember_me_tokens": result.DeletedRememberMeTokens,
		"deleted_reset_codes":        result.DeletedResetCodes,
	})

	return result, nil
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") ||
		subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(h.cronSecret)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	result, err := h.Run(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
