package auth

import (
	"context"
	"errors"
	"strings"

	"notes-auth/internal/mail"
)

const (
	resetCodeRequestedMessage = "If an account exists with this email, you will receive a reset code."
	resetLinkRequestedMessage = "If an account exists with this email, you will receive a password reset link."
	resetCompletedMessage     = "Password reset successful. You can now log in with your new password."
)

type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// ResetMailRenderer builds the reset emails for both strategies.
type ResetMailRenderer interface {
	ResetCode(to string, data mail.ResetCodeData) (mail.Message, error)
	ResetLink(to string, data mail.ResetLinkData) (mail.Message, error)
}

// ResetRequester starts a password reset. The returned message is the same
// whether or not the email belongs to an account.
type ResetRequester interface {
	RequestReset(ctx context.Context, email string) (string, error)
}

// lookupResetTarget returns ok=false when no reset should be sent. The caller
// still answers with the generic message.
func lookupResetTarget(ctx context.Context, accounts AccountStore, email string) (Account, bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return Account{}, false, newPublicError(CodeInvalidInput, "Email is required")
	}

	account, err := accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Account{}, false, nil
		}
		return Account{}, false, internalError(err, "find_reset_account")
	}
	if !account.IsActive {
		return Account{}, false, nil
	}

	return account, true, nil
}

func deliverResetMail(ctx context.Context, mailer Mailer, msg mail.Message) error {
	if err := mailer.Send(ctx, msg); err != nil {
		return oopsMailError(err)
	}
	return nil
}
