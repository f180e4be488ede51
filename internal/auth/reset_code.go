package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"notes-auth/internal/mail"
)

const (
	resetCodeDigits     = 6
	defaultResetCodeTTL = 15 * time.Minute
)

var resetCodeSpace = big.NewInt(1_000_000)

// ResetCodeCoordinator runs the emailed six-digit code flow.
type ResetCodeCoordinator struct {
	store    Store
	hasher   PasswordHasher
	policy   PasswordPolicy
	mailer   Mailer
	renderer ResetMailRenderer
	clock    Clock
	random   io.Reader
	ttl      time.Duration
}

func NewResetCodeCoordinator(store Store, hasher PasswordHasher, policy PasswordPolicy, mailer Mailer, renderer ResetMailRenderer) *ResetCodeCoordinator {
	return &ResetCodeCoordinator{
		store:    store,
		hasher:   hasher,
		policy:   policy,
		mailer:   mailer,
		renderer: renderer,
		clock:    systemClock{},
		random:   rand.Reader,
		ttl:      defaultResetCodeTTL,
	}
}

func (c *ResetCodeCoordinator) WithTTL(ttl time.Duration) {
	if ttl > 0 {
		c.ttl = ttl
	}
}

func (c *ResetCodeCoordinator) WithClock(clock Clock) {
	if clock != nil {
		c.clock = clock
	}
}

// RequestReset replaces any outstanding code for the account and emails a new one.
func (c *ResetCodeCoordinator) RequestReset(ctx context.Context, email string) (string, error) {
	ctx, span := tracer.Start(ctx, "auth.RequestResetCode")
	defer span.End()

	account, ok, err := lookupResetTarget(ctx, c.store, email)
	if err != nil {
		return "", err
	}
	if !ok {
		return resetCodeRequestedMessage, nil
	}

	code, err := c.generateCode()
	if err != nil {
		return "", internalError(err, "generate_reset_code")
	}

	now := c.clock.Now()
	if err := c.store.ReplaceResetCode(ctx, PasswordResetCode{
		AccountID: account.ID,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}); err != nil {
		return "", internalError(err, "store_reset_code")
	}

	msg, err := c.renderer.ResetCode(account.Email, mail.ResetCodeData{
		Username:         account.Username,
		Code:             code,
		ExpiresInMinutes: int(c.ttl / time.Minute),
	})
	if err != nil {
		return "", internalError(err, "render_reset_code")
	}

	if err := deliverResetMail(ctx, c.mailer, msg); err != nil {
		return "", err
	}

	return resetCodeRequestedMessage, nil
}

// ConfirmReset redeems code for email and sets newPassword. Every failure
// before the code is known to be redeemable reads as a bad code, so the answer
// does not depend on whether the account exists.
func (c *ResetCodeCoordinator) ConfirmReset(ctx context.Context, email, code, newPassword string) (string, error) {
	ctx, span := tracer.Start(ctx, "auth.ConfirmResetCode")
	defer span.End()

	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" || newPassword == "" {
		return "", newPublicError(CodeInvalidInput, "Email, code and new password are required.")
	}

	if !isResetCodeShape(code) {
		return "", newError(CodeInvalidOrExpiredCode, "malformed reset code")
	}

	account, ok, err := lookupResetTarget(ctx, c.store, email)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", newError(CodeInvalidOrExpiredCode, "no active account for email")
	}

	redeemable, err := c.store.HasRedeemableResetCode(ctx, account.ID, code, c.clock.Now())
	if err != nil {
		return "", internalError(err, "check_reset_code")
	}
	if !redeemable {
		return "", newError(CodeInvalidOrExpiredCode, "reset code not redeemable")
	}

	if err := c.policy.Validate(newPassword, userAttributes(account.Username, account.Email, account.FirstName, account.LastName)...); err != nil {
		return "", err
	}

	hash, err := c.hasher.Hash(newPassword)
	if err != nil {
		return "", internalError(err, "hash_password")
	}

	// The check above can race with another confirm; only the consume is atomic.
	consumed, err := c.store.ConsumeResetCode(ctx, account.ID, code, hash, c.clock.Now())
	if err != nil {
		return "", internalError(err, "consume_reset_code")
	}
	if !consumed {
		return "", newError(CodeInvalidOrExpiredCode, "reset code not redeemable")
	}

	return resetCompletedMessage, nil
}

func (c *ResetCodeCoordinator) generateCode() (string, error) {
	n, err := rand.Int(c.random, resetCodeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", resetCodeDigits, n.Int64()), nil
}

func isResetCodeShape(code string) bool {
	if len(code) != resetCodeDigits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
