package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistrar(store AccountStore) *Registrar {
	return NewRegistrar(store, testHasher(), DefaultPasswordPolicy())
}

func TestRegisterCreatesAccount(t *testing.T) {
	store := newMemStore()

	profile, err := newTestRegistrar(store).Register(context.Background(), RegistrationInput{
		Username:  " alice ",
		Email:     "alice@x.com",
		Password:  "Str0ngP@ss",
		FirstName: "Alice",
		LastName:  "Liddell",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, profile.ID)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, "alice@x.com", profile.Email)
	assert.Equal(t, "Alice", profile.FirstName)

	stored := store.account(profile.ID)
	assert.True(t, stored.IsActive)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))

	ok, err := testHasher().Verify("Str0ngP@ss", stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegisterConflicts(t *testing.T) {
	store := newMemStore()
	seedAccount(store, "alice", "alice@x.com", "Str0ngP@ss")
	registrar := newTestRegistrar(store)

	cases := []struct {
		name    string
		input   RegistrationInput
		code    string
		message string
		details string
	}{
		{
			name:    "username taken",
			input:   RegistrationInput{Username: "alice", Email: "other@x.com", Password: "Str0ngP@ss"},
			code:    CodeUsernameTaken,
			message: "Username already exists",
			details: "A user with that username already exists.",
		},
		{
			name:    "email taken",
			input:   RegistrationInput{Username: "alice2", Email: "alice@x.com", Password: "Str0ngP@ss"},
			code:    CodeEmailTaken,
			message: "Email already exists",
			details: "A user with that email already exists.",
		},
		{
			name:    "username reported before weak password",
			input:   RegistrationInput{Username: "alice", Email: "alice@x.com", Password: "123"},
			code:    CodeUsernameTaken,
			message: "Username already exists",
			details: "A user with that username already exists.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := registrar.Register(context.Background(), tc.input)
			require.Error(t, err)
			assert.Equal(t, tc.code, ErrorCode(err))
			assert.Equal(t, 409, HTTPStatus(err))
			assert.Equal(t, tc.message, PublicMessage(err))
			assert.Equal(t, tc.details, PublicDetails(err))
		})
	}
}

func TestRegisterWeakPassword(t *testing.T) {
	registrar := newTestRegistrar(newMemStore())

	cases := map[string]string{
		"short":    "This password is too short. It must contain at least 8 characters.",
		"password": "This password is too common.",
		"90817263": "This password is entirely numeric.",
		"alice123": "The password is too similar to the username.",
	}

	for password, message := range cases {
		t.Run(password, func(t *testing.T) {
			_, err := registrar.Register(context.Background(), RegistrationInput{
				Username: "alice",
				Email:    "alice@x.com",
				Password: password,
			})
			require.Error(t, err)
			assert.Equal(t, CodeWeakPassword, ErrorCode(err))
			assert.Equal(t, 400, HTTPStatus(err))
			assert.Equal(t, message, PublicMessage(err))
		})
	}
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	registrar := newTestRegistrar(newMemStore())

	cases := []RegistrationInput{
		{Username: "", Email: "alice@x.com", Password: "Str0ngP@ss"},
		{Username: "alice", Email: "", Password: "Str0ngP@ss"},
		{Username: "alice", Email: "alice@x.com", Password: ""},
		{Username: "al ice", Email: "alice@x.com", Password: "Str0ngP@ss"},
		{Username: "alice", Email: "not-an-email", Password: "Str0ngP@ss"},
		{Username: "alice", Email: "Alice <alice@x.com>", Password: "Str0ngP@ss"},
		{Username: "alice", Email: "alice@x.com", Password: "Str0ngP@ss", FirstName: strings.Repeat("a", 151)},
	}

	for _, input := range cases {
		_, err := registrar.Register(context.Background(), input)
		require.Error(t, err)
		assert.Equal(t, CodeInvalidInput, ErrorCode(err), "%+v", input)
	}
}

type racingAccounts struct {
	*memStore
	createErr error
}

func (r racingAccounts) CreateAccount(context.Context, NewAccount) (Account, error) {
	return Account{}, r.createErr
}

func TestRegisterMapsInsertConflicts(t *testing.T) {
	cases := map[error]string{
		ErrUsernameConflict:        CodeUsernameTaken,
		ErrEmailConflict:           CodeEmailTaken,
		errors.New("disk is full"): CodeInternal,
	}

	for createErr, code := range cases {
		registrar := newTestRegistrar(racingAccounts{memStore: newMemStore(), createErr: createErr})

		_, err := registrar.Register(context.Background(), RegistrationInput{
			Username: "alice",
			Email:    "alice@x.com",
			Password: "Str0ngP@ss",
		})
		require.Error(t, err)
		assert.Equal(t, code, ErrorCode(err))
	}
}
