package auth

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrUsernameConflict      = errors.New("username already exists")
	ErrEmailConflict         = errors.New("email already exists")
	ErrRefreshTokenNotActive = errors.New("refresh token is revoked, expired or unknown")
)

type AccountStore interface {
	FindByUsername(ctx context.Context, username string) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)
	CreateAccount(ctx context.Context, input NewAccount) (Account, error)
	UpdatePassword(ctx context.Context, accountID, passwordHash string, now time.Time) error
	// UpdatePasswordIfUnchanged swaps the hash only while it still equals
	// oldHash and reports whether it did.
	UpdatePasswordIfUnchanged(ctx context.Context, accountID, oldHash, newHash string, now time.Time) (bool, error)
}

// SessionStore persists refresh tokens by hash. Revocation is the blacklist.
type SessionStore interface {
	// CreateSession records a refresh token and stamps the account's last login.
	CreateSession(ctx context.Context, accountID, rawToken string, expiresAt, now time.Time) error
	// RotateRefreshToken revokes the old token, stores the new one and moves any
	// remember-me row pointing at the old token. Returns the owning account id.
	RotateRefreshToken(ctx context.Context, rawOldToken, rawNewToken string, newExpiresAt, now time.Time) (string, error)
	RevokeRefreshToken(ctx context.Context, rawToken string, now time.Time) error
}

type RememberMeStore interface {
	// UpsertRememberMe keeps at most one row per account.
	UpsertRememberMe(ctx context.Context, accountID, rawToken string, expiresAt, now time.Time) error
	DeleteRememberMe(ctx context.Context, rawToken string) error
}

type ResetCodeStore interface {
	// ReplaceResetCode deletes the account's unused codes and stores code.
	ReplaceResetCode(ctx context.Context, code PasswordResetCode) error
	// HasRedeemableResetCode reports whether an unused, unexpired code matches.
	// It does not consume it.
	HasRedeemableResetCode(ctx context.Context, accountID, code string, now time.Time) (bool, error)
	// ConsumeResetCode marks a matching redeemable code used and sets the new
	// password hash in one transaction. Only one caller can win per code.
	ConsumeResetCode(ctx context.Context, accountID, code, passwordHash string, now time.Time) (bool, error)
}

type Store interface {
	AccountStore
	SessionStore
	RememberMeStore
	ResetCodeStore
}
