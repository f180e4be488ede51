package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
)

const (
	defaultAccessTTL         = 30 * time.Minute
	defaultRefreshTTL        = 24 * time.Hour
	defaultRememberMeTTL     = 60 * 24 * time.Hour
	defaultDisplayAccessTTL  = 30 * 24 * time.Hour
	defaultDisplayRefreshTTL = 60 * 24 * time.Hour
)

var tracer = otel.Tracer("notes-auth/internal/auth")

// Service issues, rotates and revokes credentials.
type Service struct {
	store    Store
	resolver *IdentityResolver
	hasher   PasswordHasher
	signer   Signer
	clock    Clock

	accessTTL         time.Duration
	refreshTTL        time.Duration
	rememberMeTTL     time.Duration
	displayAccessTTL  time.Duration
	displayRefreshTTL time.Duration
}

func NewService(store Store, hasher PasswordHasher, signer Signer) *Service {
	return &Service{
		store:             store,
		resolver:          NewIdentityResolver(store),
		hasher:            hasher,
		signer:            signer,
		clock:             systemClock{},
		accessTTL:         defaultAccessTTL,
		refreshTTL:        defaultRefreshTTL,
		rememberMeTTL:     defaultRememberMeTTL,
		displayAccessTTL:  defaultDisplayAccessTTL,
		displayRefreshTTL: defaultDisplayRefreshTTL,
	}
}

// WithTokenConfig overrides token lifetimes. Zero values keep the defaults.
// The display lifetimes are only reported to remember-me clients.
func (s *Service) WithTokenConfig(accessTTL, refreshTTL, rememberMeTTL, displayAccessTTL, displayRefreshTTL time.Duration) {
	if accessTTL > 0 {
		s.accessTTL = accessTTL
	}
	if refreshTTL > 0 {
		s.refreshTTL = refreshTTL
	}
	if rememberMeTTL > 0 {
		s.rememberMeTTL = rememberMeTTL
	}
	if displayAccessTTL > 0 {
		s.displayAccessTTL = displayAccessTTL
	}
	if displayRefreshTTL > 0 {
		s.displayRefreshTTL = displayRefreshTTL
	}
}

func (s *Service) WithClock(clock Clock) {
	if clock != nil {
		s.clock = clock
	}
}

// Login resolves the identifier, checks the password against the canonical
// username and issues a token pair. With rememberMe the account's single
// remember-me row is created or replaced.
func (s *Service) Login(ctx context.Context, login, password string, rememberMe bool) (Tokens, error) {
	ctx, span := tracer.Start(ctx, "auth.Login")
	defer span.End()

	account, err := s.resolver.Resolve(ctx, login)
	if err != nil {
		return Tokens{}, err
	}

	account, err = s.authenticate(ctx, account.Username, password)
	if err != nil {
		return Tokens{}, err
	}

	now := s.clock.Now()
	tokens, err := s.issueTokens(ctx, account, now)
	if err != nil {
		return Tokens{}, err
	}

	if rememberMe {
		if err := s.store.UpsertRememberMe(ctx, account.ID, tokens.Refresh, now.Add(s.rememberMeTTL), now); err != nil {
			return Tokens{}, internalError(err, "upsert_remember_me")
		}

		accessExpires := now.Add(s.displayAccessTTL)
		refreshExpires := now.Add(s.displayRefreshTTL)
		tokens.AccessExpires = &accessExpires
		tokens.RefreshExpires = &refreshExpires
	}

	return tokens, nil
}

// authenticate is the single password check. Inactive accounts fail only
// after the password matched.
func (s *Service) authenticate(ctx context.Context, username, password string) (Account, error) {
	account, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Account{}, newError(CodeAccountNotFound, "account disappeared during login")
		}
		return Account{}, internalError(err, "load_account")
	}

	ok, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return Account{}, internalError(err, "verify_password")
	}
	if !ok {
		return Account{}, newError(CodeInvalidCredentials, "password mismatch")
	}

	if !account.IsActive {
		return Account{}, newError(CodeAccountInactive, "account is inactive")
	}

	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		if upgraded, err := s.hasher.Hash(password); err == nil {
			if err := s.store.UpdatePassword(ctx, account.ID, upgraded, s.clock.Now()); err == nil {
				account.PasswordHash = upgraded
			}
		}
	}

	return account, nil
}

// Refresh exchanges a live refresh token for a new pair. The presented token
// is blacklisted in the same step.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	ctx, span := tracer.Start(ctx, "auth.Refresh")
	defer span.End()

	refreshToken = strings.TrimSpace(refreshToken)
	now := s.clock.Now()

	claims, err := s.signer.Verify(refreshToken, TokenTypeRefresh, now)
	if err != nil {
		return Tokens{}, newError(CodeInvalidRefreshToken, "refresh token rejected: %v", err)
	}

	account, err := s.store.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Tokens{}, newError(CodeInvalidRefreshToken, "refresh token subject not found")
		}
		return Tokens{}, internalError(err, "load_account")
	}
	if !account.IsActive {
		return Tokens{}, newError(CodeAccountInactive, "account is inactive")
	}

	newRefresh, _, err := s.signer.Issue(Claims{
		Type:             TokenTypeRefresh,
		RegisteredClaims: subject(account.ID),
	}, s.refreshTTL, now)
	if err != nil {
		return Tokens{}, internalError(err, "issue_refresh_token")
	}

	if _, err := s.store.RotateRefreshToken(ctx, refreshToken, newRefresh, now.Add(s.refreshTTL), now); err != nil {
		if errors.Is(err, ErrRefreshTokenNotActive) {
			return Tokens{}, newError(CodeInvalidRefreshToken, "refresh token is blacklisted")
		}
		return Tokens{}, internalError(err, "rotate_refresh_token")
	}

	access, err := s.issueAccess(account, now)
	if err != nil {
		return Tokens{}, err
	}

	return Tokens{Access: access, Refresh: newRefresh}, nil
}

// Logout blacklists the refresh token and drops a remember-me row bound to it.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	now := s.clock.Now()

	if _, err := s.signer.Verify(refreshToken, TokenTypeRefresh, now); err != nil {
		return newError(CodeInvalidRefreshToken, "refresh token rejected: %v", err)
	}

	if err := s.store.RevokeRefreshToken(ctx, refreshToken, now); err != nil {
		return internalError(err, "revoke_refresh_token")
	}
	if err := s.store.DeleteRememberMe(ctx, refreshToken); err != nil {
		return internalError(err, "delete_remember_me")
	}

	return nil
}

// Authenticate validates an access token and returns its account id.
func (s *Service) Authenticate(accessToken string) (string, error) {
	claims, err := s.signer.Verify(strings.TrimSpace(accessToken), TokenTypeAccess, s.clock.Now())
	if err != nil {
		return "", newError(CodeUnauthorized, "access token rejected: %v", err)
	}
	return claims.Subject, nil
}

func (s *Service) Profile(ctx context.Context, accountID string) (Profile, error) {
	account, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Profile{}, newError(CodeUnauthorized, "account for token not found")
		}
		return Profile{}, internalError(err, "load_profile")
	}
	if !account.IsActive {
		return Profile{}, newError(CodeUnauthorized, "account is inactive")
	}

	return account.Profile(), nil
}

func (s *Service) issueTokens(ctx context.Context, account Account, now time.Time) (Tokens, error) {
	access, err := s.issueAccess(account, now)
	if err != nil {
		return Tokens{}, err
	}

	refresh, expiresAt, err := s.signer.Issue(Claims{
		Type:             TokenTypeRefresh,
		RegisteredClaims: subject(account.ID),
	}, s.refreshTTL, now)
	if err != nil {
		return Tokens{}, internalError(err, "issue_refresh_token")
	}

	if err := s.store.CreateSession(ctx, account.ID, refresh, expiresAt, now); err != nil {
		return Tokens{}, internalError(err, "create_session")
	}

	return Tokens{Access: access, Refresh: refresh}, nil
}

func (s *Service) issueAccess(account Account, now time.Time) (string, error) {
	access, _, err := s.signer.Issue(Claims{
		Type:             TokenTypeAccess,
		Username:         account.Username,
		RegisteredClaims: subject(account.ID),
	}, s.accessTTL, now)
	if err != nil {
		return "", internalError(err, "issue_access_token")
	}
	return access, nil
}
