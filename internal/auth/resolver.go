package auth

import (
	"context"
	"errors"
	"strings"
)

// IdentityResolver maps a login identifier to the account it names. The
// identifier is tried as a username first and then as an email.
type IdentityResolver struct {
	accounts AccountStore
}

func NewIdentityResolver(accounts AccountStore) *IdentityResolver {
	return &IdentityResolver{accounts: accounts}
}

func (r *IdentityResolver) Resolve(ctx context.Context, login string) (Account, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return Account{}, newError(CodeAccountNotFound, "empty login identifier")
	}

	account, err := r.accounts.FindByUsername(ctx, login)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Account{}, internalError(err, "resolve_by_username")
	}

	account, err = r.accounts.FindByEmail(ctx, login)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Account{}, internalError(err, "resolve_by_email")
	}

	return Account{}, newError(CodeAccountNotFound, "no account matches the login identifier")
}
