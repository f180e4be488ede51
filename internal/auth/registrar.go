package auth

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

const maxEmailLength = 254

var usernamePattern = regexp.MustCompile(`^[\w.@+-]{1,150}$`)

type RegistrationInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Registrar creates accounts. Username conflicts are reported before email
// conflicts, and both before password strength.
type Registrar struct {
	accounts AccountStore
	hasher   PasswordHasher
	policy   PasswordPolicy
}

func NewRegistrar(accounts AccountStore, hasher PasswordHasher, policy PasswordPolicy) *Registrar {
	return &Registrar{accounts: accounts, hasher: hasher, policy: policy}
}

func (r *Registrar) Register(ctx context.Context, input RegistrationInput) (Profile, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)

	if err := validateRegistration(input); err != nil {
		return Profile{}, err
	}

	if err := r.ensureAvailable(ctx, input); err != nil {
		return Profile{}, err
	}

	if err := r.policy.Validate(input.Password, userAttributes(input.Username, input.Email, input.FirstName, input.LastName)...); err != nil {
		return Profile{}, err
	}

	hash, err := r.hasher.Hash(input.Password)
	if err != nil {
		return Profile{}, internalError(err, "hash_password")
	}

	account, err := r.accounts.CreateAccount(ctx, NewAccount{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
	})
	switch {
	case errors.Is(err, ErrUsernameConflict):
		return Profile{}, newError(CodeUsernameTaken, "username %q is taken", input.Username)
	case errors.Is(err, ErrEmailConflict):
		return Profile{}, newError(CodeEmailTaken, "email is taken")
	case err != nil:
		return Profile{}, internalError(err, "create_account")
	}

	return account.Profile(), nil
}

func (r *Registrar) ensureAvailable(ctx context.Context, input RegistrationInput) error {
	_, err := r.accounts.FindByUsername(ctx, input.Username)
	if err == nil {
		return newError(CodeUsernameTaken, "username %q is taken", input.Username)
	}
	if !errors.Is(err, ErrNotFound) {
		return internalError(err, "check_username")
	}

	_, err = r.accounts.FindByEmail(ctx, input.Email)
	if err == nil {
		return newError(CodeEmailTaken, "email is taken")
	}
	if !errors.Is(err, ErrNotFound) {
		return internalError(err, "check_email")
	}

	return nil
}

func validateRegistration(input RegistrationInput) error {
	if input.Username == "" || input.Email == "" || input.Password == "" {
		return newPublicError(CodeInvalidInput, "Username, email and password are required.")
	}
	if !usernamePattern.MatchString(input.Username) {
		return newPublicError(CodeInvalidInput, "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters.")
	}
	if !validEmail(input.Email) {
		return newPublicError(CodeInvalidInput, "Enter a valid email address.")
	}
	if len(input.FirstName) > 150 || len(input.LastName) > 150 {
		return newPublicError(CodeInvalidInput, "Names may be at most 150 characters.")
	}
	return nil
}

func validEmail(email string) bool {
	if len(email) > maxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func userAttributes(username, email, firstName, lastName string) []UserAttribute {
	return []UserAttribute{
		{Label: "username", Value: username},
		{Label: "email address", Value: email},
		{Label: "first name", Value: firstName},
		{Label: "last name", Value: lastName},
	}
}
