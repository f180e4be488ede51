package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notes-auth/internal/auth"
	"notes-auth/internal/config"
	"notes-auth/internal/mail"
	"notes-auth/internal/observability"
	"notes-auth/internal/throttle"
)

// accountDirectory knows one active account and nothing else. Methods the
// routes under test never reach are left to the embedded nil Store.
type accountDirectory struct {
	auth.Store
	account auth.Account
}

func (d *accountDirectory) FindByUsername(_ context.Context, username string) (auth.Account, error) {
	if username == d.account.Username {
		return d.account, nil
	}
	return auth.Account{}, auth.ErrNotFound
}

func (d *accountDirectory) FindByEmail(_ context.Context, email string) (auth.Account, error) {
	if strings.EqualFold(email, d.account.Email) {
		return d.account, nil
	}
	return auth.Account{}, auth.ErrNotFound
}

func (d *accountDirectory) ReplaceResetCode(context.Context, auth.PasswordResetCode) error {
	return nil
}

type outbox struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (o *outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) subjects() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.sent))
	for _, msg := range o.sent {
		out = append(out, msg.Subject)
	}
	return out
}

type wiringFixture struct {
	server *httptest.Server
	outbox *outbox
}

func newWiringFixture(t *testing.T, env map[string]string, health func(context.Context) error) wiringFixture {
	t.Helper()

	t.Setenv("DATABASE_URL", "postgres://localhost/notes")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("ARGON2_MEMORY_KB", "1024")
	t.Setenv("ARGON2_PARALLELISM", "1")
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := config.Load(context.Background(), false)
	require.NoError(t, err)

	if health == nil {
		health = func(context.Context) error { return nil }
	}

	box := &outbox{}
	wiring, err := NewWiring(Dependencies{
		Config:  cfg,
		Logger:  observability.NewLoggerWithWriter(io.Discard, "error"),
		Metrics: observability.NewMetrics(),
		Store: &accountDirectory{account: auth.Account{
			ID:       "0190a6b2-1c3d-7e4f-8a9b-0c1d2e3f4a5b",
			Username: "alice",
			Email:    "alice@x.com",
			IsActive: true,
		}},
		Mailer:       box,
		LoginLimiter: throttle.NewMemoryLimiter(cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow),
		Health:       health,
	})
	require.NoError(t, err)

	server := httptest.NewServer(wiring.Handler)
	t.Cleanup(server.Close)

	return wiringFixture{server: server, outbox: box}
}

func (f wiringFixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()

	resp, err := f.server.Client().Post(f.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	require.NoError(t, resp.Body.Close())
	return resp
}

func TestWiringResetStrategySelectsMail(t *testing.T) {
	cases := map[string]string{
		config.ResetStrategyCode: "Your Password Reset Code",
		config.ResetStrategyLink: "Reset your password",
	}

	for strategy, subject := range cases {
		t.Run(strategy, func(t *testing.T) {
			f := newWiringFixture(t, map[string]string{"RESET_STRATEGY": strategy}, nil)

			resp := f.post(t, "/password/request-reset", `{"email":"alice@x.com"}`)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, []string{subject}, f.outbox.subjects())
		})
	}
}

func TestWiringGuardsLogin(t *testing.T) {
	f := newWiringFixture(t, map[string]string{"LOGIN_RATE_LIMIT_MAX": "1"}, nil)

	first := f.post(t, "/login", `{"login":"ghost","password":"whatever"}`)
	assert.NotEqual(t, http.StatusTooManyRequests, first.StatusCode)

	second := f.post(t, "/login", `{"login":"ghost","password":"whatever"}`)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.NotEmpty(t, second.Header.Get("Retry-After"))

	// Other routes are not behind the login bucket.
	register := f.post(t, "/register", `{}`)
	assert.NotEqual(t, http.StatusTooManyRequests, register.StatusCode)
}

func TestWiringGuardsResetRequest(t *testing.T) {
	f := newWiringFixture(t, map[string]string{"RESET_RATE_LIMIT_MAX": "1"}, nil)

	first := f.post(t, "/password/request-reset", `{"email":"ghost@x.com"}`)
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second := f.post(t, "/password/request-reset", `{"email":"ghost@x.com"}`)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.Empty(t, f.outbox.subjects())
}

func TestWiringHealth(t *testing.T) {
	healthy := newWiringFixture(t, nil, nil)
	resp, err := healthy.server.Client().Get(healthy.server.URL + "/health")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	degraded := newWiringFixture(t, nil, func(context.Context) error { return errors.New("connection refused") })
	resp, err = degraded.server.Client().Get(degraded.server.URL + "/health")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
