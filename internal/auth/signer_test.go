package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerRoundTrip(t *testing.T) {
	signer := NewJWTSigner(testSecret, "notes-auth-test")
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	token, expiresAt, err := signer.Issue(Claims{
		Type:             TokenTypeAccess,
		Username:         "alice",
		RegisteredClaims: subject("acct-1"),
	}, 30*time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*time.Minute), expiresAt)

	claims, err := signer.Verify(token, TokenTypeAccess, now.Add(29*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "notes-auth-test", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestSignerRejects(t *testing.T) {
	signer := NewJWTSigner(testSecret, "notes-auth-test")
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	token, _, err := signer.Issue(Claims{Type: TokenTypeRefresh, RegisteredClaims: subject("acct-1")}, time.Hour, now)
	require.NoError(t, err)

	_, err = signer.Verify(token, TokenTypeAccess, now)
	assert.ErrorIs(t, err, errTokenInvalid, "wrong type")

	_, err = signer.Verify(token, TokenTypeRefresh, now.Add(2*time.Hour))
	assert.ErrorIs(t, err, errTokenInvalid, "expired")

	_, err = NewJWTSigner("another-secret-0123456789abcdef-0123", "notes-auth-test").Verify(token, TokenTypeRefresh, now)
	assert.ErrorIs(t, err, errTokenInvalid, "foreign key")

	_, err = NewJWTSigner(testSecret, "someone-else").Verify(token, TokenTypeRefresh, now)
	assert.ErrorIs(t, err, errTokenInvalid, "foreign issuer")

	noSubject, _, err := signer.Issue(Claims{Type: TokenTypeRefresh}, time.Hour, now)
	require.NoError(t, err)
	_, err = signer.Verify(noSubject, TokenTypeRefresh, now)
	assert.ErrorIs(t, err, errTokenInvalid, "missing subject")
}

func TestSignerRejectsOtherAlgorithms(t *testing.T) {
	signer := NewJWTSigner(testSecret, "notes-auth-test")
	now := time.Now()

	claims := Claims{Type: TokenTypeAccess, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "acct-1",
		Issuer:    "notes-auth-test",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = signer.Verify(token, TokenTypeAccess, now)
	assert.ErrorIs(t, err, errTokenInvalid)
}

func TestSignerTokensAreUnique(t *testing.T) {
	signer := NewJWTSigner(testSecret, "notes-auth-test")
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	claims := Claims{Type: TokenTypeRefresh, RegisteredClaims: subject("acct-1")}

	first, _, err := signer.Issue(claims, time.Hour, now)
	require.NoError(t, err)
	second, _, err := signer.Issue(claims, time.Hour, now)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}
