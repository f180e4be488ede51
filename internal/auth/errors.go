package auth

import (
	"fmt"
	"net/http"

	"github.com/samber/oops"
)

// Error codes surfaced to API clients.
const (
	CodeAccountNotFound       = "ACCOUNT_NOT_FOUND"
	CodeInvalidCredentials    = "INVALID_CREDENTIALS"
	CodeAccountInactive       = "ACCOUNT_INACTIVE"
	CodeUsernameTaken         = "USERNAME_TAKEN"
	CodeEmailTaken            = "EMAIL_TAKEN"
	CodeWeakPassword          = "WEAK_PASSWORD"
	CodeInvalidInput          = "INVALID_INPUT"
	CodeInvalidOrExpiredCode  = "INVALID_OR_EXPIRED_CODE"
	CodeInvalidResetLink      = "INVALID_RESET_LINK"
	CodeInvalidOrExpiredToken = "INVALID_OR_EXPIRED_TOKEN"
	CodePasswordRequired      = "PASSWORD_REQUIRED"
	CodeMailDeliveryFailed    = "MAIL_DELIVERY_FAILED"
	CodeInvalidRefreshToken   = "INVALID_REFRESH_TOKEN"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeInternal              = "INTERNAL_ERROR"
)

// contextMessage is the oops context key carrying a client-facing message
// that overrides the default for the code.
const contextMessage = "message"

type errorEntry struct {
	status  int
	message string
	details string
}

var errorTable = map[string]errorEntry{
	CodeAccountNotFound:       {http.StatusBadRequest, "Account not found. Please check your username or email.", ""},
	CodeInvalidCredentials:    {http.StatusBadRequest, "Invalid password.", ""},
	CodeAccountInactive:       {http.StatusBadRequest, "This account is inactive.", ""},
	CodeUsernameTaken:         {http.StatusConflict, "Username already exists", "A user with that username already exists."},
	CodeEmailTaken:            {http.StatusConflict, "Email already exists", "A user with that email already exists."},
	CodeWeakPassword:          {http.StatusBadRequest, "Password is too weak.", ""},
	CodeInvalidInput:          {http.StatusBadRequest, "Invalid request.", ""},
	CodeInvalidOrExpiredCode:  {http.StatusBadRequest, "The reset code is invalid or has expired.", ""},
	CodeInvalidResetLink:      {http.StatusBadRequest, "Invalid reset link.", ""},
	CodeInvalidOrExpiredToken: {http.StatusBadRequest, "The reset link is invalid or has expired.", ""},
	CodePasswordRequired:      {http.StatusBadRequest, "New password is required.", ""},
	CodeMailDeliveryFailed:    {http.StatusInternalServerError, "Failed to send email", "There was an error sending the reset email. Please try again later."},
	CodeInvalidRefreshToken:   {http.StatusUnauthorized, "Invalid or expired refresh token.", ""},
	CodeUnauthorized:          {http.StatusUnauthorized, "Authentication credentials were not provided or are invalid.", ""},
	CodeInternal:              {http.StatusInternalServerError, "An unexpected error occurred. Please try again later.", ""},
}

// ErrorCode extracts the client-facing code from err. Errors that carry no
// known code map to INTERNAL_ERROR.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return CodeInternal
	}

	code := fmt.Sprint(oopsErr.Code())
	if _, known := errorTable[code]; !known {
		return CodeInternal
	}

	return code
}

// HTTPStatus maps err to the response status through its code.
func HTTPStatus(err error) int {
	return errorTable[ErrorCode(err)].status
}

// PublicMessage is the text safe to show the caller for err.
func PublicMessage(err error) string {
	code := ErrorCode(err)
	if code != CodeInternal {
		if oopsErr, ok := oops.AsOops(err); ok {
			if msg, ok := oopsErr.Context()[contextMessage].(string); ok && msg != "" {
				return msg
			}
		}
	}

	return errorTable[code].message
}

// PublicDetails returns the secondary explanation attached to some codes.
func PublicDetails(err error) string {
	return errorTable[ErrorCode(err)].details
}

func newError(code string, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

// newPublicError builds an error whose message is shown to the caller as is.
func newPublicError(code, message string) error {
	return oops.Code(code).With(contextMessage, message).Errorf("%s", message)
}

func internalError(err error, action string) error {
	return oops.Code(CodeInternal).With("action", action).Wrap(err)
}

func oopsMailError(err error) error {
	return oops.Code(CodeMailDeliveryFailed).With("action", "send_reset_mail").Wrap(err)
}
