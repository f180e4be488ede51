package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"notes-auth/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

// EventRecorder counts auth outcomes.
type EventRecorder interface {
	RecordAuthEvent(event, outcome string)
}

type HandlerOptions struct {
	Service   *Service
	Registrar *Registrar
	// Requester is the reset strategy used by the request endpoint.
	Requester ResetRequester
	Codes     *ResetCodeCoordinator
	Links     *ResetLinkCoordinator
	Logger    *observability.Logger
	Events    EventRecorder
}

type Handler struct {
	service   *Service
	registrar *Registrar
	requester ResetRequester
	codes     *ResetCodeCoordinator
	links     *ResetLinkCoordinator
	logger    *observability.Logger
	events    EventRecorder
}

func NewHandler(opts HandlerOptions) *Handler {
	events := opts.Events
	if events == nil {
		events = noopRecorder{}
	}

	return &Handler{
		service:   opts.Service,
		registrar: opts.Registrar,
		requester: opts.Requester,
		codes:     opts.Codes,
		links:     opts.Links,
		logger:    opts.Logger,
		events:    events,
	}
}

// RouteGuards wrap the abuse-prone endpoints. Nil guards are skipped.
type RouteGuards struct {
	Login        func(http.Handler) http.Handler
	ResetRequest func(http.Handler) http.Handler
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux, guards RouteGuards) {
	mux.Handle("POST /login", guard(guards.Login, http.HandlerFunc(h.Login)))
	mux.HandleFunc("POST /register", h.Register)
	mux.HandleFunc("POST /token/refresh", h.Refresh)
	mux.HandleFunc("POST /logout", h.Logout)
	mux.Handle("GET /me", Middleware(h.service, http.HandlerFunc(h.Me)))
	mux.Handle("POST /password/request-reset", guard(guards.ResetRequest, http.HandlerFunc(h.RequestReset)))
	mux.HandleFunc("POST /password/confirm-reset", h.ConfirmResetCode)
	mux.HandleFunc("POST /password/confirm-reset/{uid}/{token}", h.ConfirmResetLink)
}

type loginRequest struct {
	Login      string `json:"login"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type requestResetRequest struct {
	Email string `json:"email"`
}

type confirmResetCodeRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type confirmResetLinkRequest struct {
	NewPassword string `json:"new_password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body, false) {
		return
	}

	login := strings.TrimSpace(body.Login)
	if login == "" {
		login = strings.TrimSpace(body.Username)
	}
	if login == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "Username or email and password are required.")
		return
	}

	tokens, err := h.service.Login(r.Context(), login, body.Password, body.RememberMe)
	if err != nil {
		h.events.RecordAuthEvent("login", "failure")
		h.writeDomainError(w, r, err)
		return
	}

	h.events.RecordAuthEvent("login", "success")
	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeJSON(w, r, &body, false) {
		return
	}

	profile, err := h.registrar.Register(r.Context(), RegistrationInput{
		Username:  body.Username,
		Email:     body.Email,
		Password:  body.Password,
		FirstName: body.FirstName,
		LastName:  body.LastName,
	})
	if err != nil {
		h.events.RecordAuthEvent("register", "failure")
		h.writeDomainError(w, r, err)
		return
	}

	h.events.RecordAuthEvent("register", "success")
	h.logger.Info("account_registered", map[string]any{"account_id": profile.ID})
	writeJSON(w, http.StatusCreated, profile)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body, false) {
		return
	}

	tokens, err := h.service.Refresh(r.Context(), body.Refresh)
	if err != nil {
		h.events.RecordAuthEvent("refresh", "failure")
		h.writeDomainError(w, r, err)
		return
	}

	h.events.RecordAuthEvent("refresh", "success")
	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body, false) {
		return
	}

	if strings.TrimSpace(body.Refresh) == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "Refresh token is required.")
		return
	}

	if err := h.service.Logout(r.Context(), body.Refresh); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.events.RecordAuthEvent("logout", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := AccountIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing authorization token")
		return
	}

	profile, err := h.service.Profile(r.Context(), accountID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var body requestResetRequest
	if !decodeJSON(w, r, &body, true) {
		return
	}

	message, err := h.requester.RequestReset(r.Context(), body.Email)
	if err != nil {
		h.events.RecordAuthEvent("reset_request", "failure")
		h.writeDomainError(w, r, err)
		return
	}

	h.events.RecordAuthEvent("reset_request", "accepted")
	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

func (h *Handler) ConfirmResetCode(w http.ResponseWriter, r *http.Request) {
	var body confirmResetCodeRequest
	if !decodeJSON(w, r, &body, false) {
		return
	}

	message, err := h.codes.ConfirmReset(r.Context(), body.Email, body.Code, body.NewPassword)
	if err != nil {
		h.events.RecordAuthEvent("reset_confirm", "failure")
		h.writeDomainError(w, r, err)
		return
	}

	h.events.RecordAuthEvent("reset_confirm", "success")
	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

// ConfirmResetLink accepts an empty body so a missing password is reported
// after the link itself has been checked.
func (h *Handler) ConfirmResetLink(w http.ResponseWriter, r *http.Request) {
	var body confirmResetLinkRequest
	if !decodeJSON(w, r, &body, true) {
		return
	}

	message, err := h.links.ConfirmReset(r.Context(), r.PathValue("uid"), r.PathValue("token"), body.NewPassword)
	if err != nil {
		h.events.RecordAuthEvent("reset_confirm", "failure")
		h.writeDomainError(w, r, err)
		return
	}

	h.events.RecordAuthEvent("reset_confirm", "success")
	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

// writeDomainError is the one place errors become responses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := ErrorCode(err)
	status := HTTPStatus(err)

	if status >= http.StatusInternalServerError {
		h.logger.Error("auth_request_failed", map[string]any{
			"path":  r.URL.Path,
			"code":  code,
			"error": err.Error(),
		})
		observability.CaptureError(err, map[string]string{"code": code, "path": r.URL.Path})
	}

	body := map[string]string{
		"error": PublicMessage(err),
		"code":  code,
	}
	if details := PublicDetails(err); details != "" {
		body["details"] = details
	}

	writeJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, CodeInvalidInput, "invalid json body")
		return false
	}

	return true
}

func guard(wrap func(http.Handler) http.Handler, next http.Handler) http.Handler {
	if wrap == nil {
		return next
	}
	return wrap(next)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

type noopRecorder struct{}

func (noopRecorder) RecordAuthEvent(string, string) {}
