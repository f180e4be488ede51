package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"notes-auth/internal/mail"
)

const defaultResetLinkTTL = 72 * time.Hour

// ResetLinkCoordinator runs the emailed link flow. The link token embeds a
// fingerprint of the account's password hash and last login, so a password
// change or a new login invalidates every outstanding link.
type ResetLinkCoordinator struct {
	store       Store
	hasher      PasswordHasher
	policy      PasswordPolicy
	signer      Signer
	mailer      Mailer
	renderer    ResetMailRenderer
	clock       Clock
	secret      []byte
	frontendURL string
	ttl         time.Duration
}

func NewResetLinkCoordinator(
	store Store,
	hasher PasswordHasher,
	policy PasswordPolicy,
	signer Signer,
	mailer Mailer,
	renderer ResetMailRenderer,
	secret string,
	frontendURL string,
) *ResetLinkCoordinator {
	return &ResetLinkCoordinator{
		store:       store,
		hasher:      hasher,
		policy:      policy,
		signer:      signer,
		mailer:      mailer,
		renderer:    renderer,
		clock:       systemClock{},
		secret:      []byte(secret),
		frontendURL: strings.TrimRight(frontendURL, "/"),
		ttl:         defaultResetLinkTTL,
	}
}

func (c *ResetLinkCoordinator) WithTTL(ttl time.Duration) {
	if ttl > 0 {
		c.ttl = ttl
	}
}

func (c *ResetLinkCoordinator) WithClock(clock Clock) {
	if clock != nil {
		c.clock = clock
	}
}

func (c *ResetLinkCoordinator) RequestReset(ctx context.Context, email string) (string, error) {
	ctx, span := tracer.Start(ctx, "auth.RequestResetLink")
	defer span.End()

	account, ok, err := lookupResetTarget(ctx, c.store, email)
	if err != nil {
		return "", err
	}
	if !ok {
		return resetLinkRequestedMessage, nil
	}

	uid, token, err := c.MakeToken(account)
	if err != nil {
		return "", internalError(err, "make_reset_token")
	}

	msg, err := c.renderer.ResetLink(account.Email, mail.ResetLinkData{
		Username:       account.Username,
		Link:           c.frontendURL + "/reset-password/" + uid + "/" + token,
		ExpiresInHours: int(c.ttl / time.Hour),
	})
	if err != nil {
		return "", internalError(err, "render_reset_link")
	}

	if err := deliverResetMail(ctx, c.mailer, msg); err != nil {
		return "", err
	}

	return resetLinkRequestedMessage, nil
}

// MakeToken returns the encoded account id and a signed token bound to the
// account's current state.
func (c *ResetLinkCoordinator) MakeToken(account Account) (string, string, error) {
	token, _, err := c.signer.Issue(Claims{
		Type:             TokenTypePasswordReset,
		Fingerprint:      c.fingerprint(account),
		RegisteredClaims: subject(account.ID),
	}, c.ttl, c.clock.Now())
	if err != nil {
		return "", "", err
	}

	return EncodeUID(account.ID), token, nil
}

// ConfirmReset checks, in order, the encoded id, the token and the presence
// of a new password before applying it.
func (c *ResetLinkCoordinator) ConfirmReset(ctx context.Context, uid, token, newPassword string) (string, error) {
	ctx, span := tracer.Start(ctx, "auth.ConfirmResetLink")
	defer span.End()

	accountID, err := DecodeUID(uid)
	if err != nil {
		return "", newError(CodeInvalidResetLink, "undecodable uid: %v", err)
	}

	account, err := c.store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", newError(CodeInvalidResetLink, "uid does not name an account")
		}
		return "", internalError(err, "load_reset_account")
	}

	if !c.checkToken(account, token) {
		return "", newError(CodeInvalidOrExpiredToken, "reset token rejected")
	}

	if newPassword == "" {
		return "", newError(CodePasswordRequired, "new password missing")
	}

	if err := c.policy.Validate(newPassword, userAttributes(account.Username, account.Email, account.FirstName, account.LastName)...); err != nil {
		return "", err
	}

	hash, err := c.hasher.Hash(newPassword)
	if err != nil {
		return "", internalError(err, "hash_password")
	}

	// The swap only succeeds against the hash the token was checked with, so
	// one link sets one password even when confirms race.
	swapped, err := c.store.UpdatePasswordIfUnchanged(ctx, account.ID, account.PasswordHash, hash, c.clock.Now())
	if err != nil {
		return "", internalError(err, "update_password")
	}
	if !swapped {
		return "", newError(CodeInvalidOrExpiredToken, "password changed while confirming")
	}

	return resetCompletedMessage, nil
}

func (c *ResetLinkCoordinator) checkToken(account Account, token string) bool {
	claims, err := c.signer.Verify(strings.TrimSpace(token), TokenTypePasswordReset, c.clock.Now())
	if err != nil {
		return false
	}
	if claims.Subject != account.ID {
		return false
	}
	return hmac.Equal([]byte(claims.Fingerprint), []byte(c.fingerprint(account)))
}

func (c *ResetLinkCoordinator) fingerprint(account Account) string {
	lastLogin := ""
	if account.LastLoginAt != nil {
		lastLogin = strconv.FormatInt(account.LastLoginAt.Unix(), 10)
	}

	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte("password-reset\x00" + account.ID + "\x00" + account.PasswordHash + "\x00" + lastLogin))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func EncodeUID(accountID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(accountID))
}

func DecodeUID(uid string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(uid))
	if err != nil {
		return "", err
	}
	if len(decoded) == 0 {
		return "", errors.New("empty uid")
	}
	return string(decoded), nil
}
