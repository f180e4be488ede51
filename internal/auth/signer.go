package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess        = "access"
	TokenTypeRefresh       = "refresh"
	TokenTypePasswordReset = "password_reset"
)

var errTokenInvalid = errors.New("token is invalid")

type Claims struct {
	Type        string `json:"typ"`
	Username    string `json:"username,omitempty"`
	Fingerprint string `json:"fp,omitempty"`
	jwt.RegisteredClaims
}

// Signer issues and verifies the service's signed tokens.
type Signer interface {
	Issue(claims Claims, ttl time.Duration, now time.Time) (string, time.Time, error)
	// Verify checks signature, issuer, expiry at now and that typ equals want.
	Verify(token, want string, now time.Time) (*Claims, error)
}

type JWTSigner struct {
	secret []byte
	issuer string
}

func NewJWTSigner(secret, issuer string) *JWTSigner {
	return &JWTSigner{secret: []byte(secret), issuer: issuer}
}

// Issue fills in the registered claims and returns the token and its expiry.
// Every token gets a fresh jti so two tokens issued in the same second differ.
func (s *JWTSigner) Issue(claims Claims, ttl time.Duration, now time.Time) (string, time.Time, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate token id: %w", err)
	}

	expiresAt := now.Add(ttl)
	claims.ID = id.String()
	claims.Issuer = s.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign jwt: %w", err)
	}

	return encoded, expiresAt, nil
}

func (s *JWTSigner) Verify(tokenString, want string, now time.Time) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errTokenInvalid, err)
	}
	if !token.Valid {
		return nil, errTokenInvalid
	}
	if claims.Type != want {
		return nil, fmt.Errorf("%w: token type %q, want %q", errTokenInvalid, claims.Type, want)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", errTokenInvalid)
	}

	return claims, nil
}

func subject(id string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{Subject: id}
}
