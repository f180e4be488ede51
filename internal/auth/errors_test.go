package auth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomyStatuses(t *testing.T) {
	cases := map[string]int{
		CodeAccountNotFound:       400,
		CodeInvalidCredentials:    400,
		CodeAccountInactive:       400,
		CodeUsernameTaken:         409,
		CodeEmailTaken:            409,
		CodeWeakPassword:          400,
		CodeInvalidOrExpiredCode:  400,
		CodeInvalidResetLink:      400,
		CodeInvalidOrExpiredToken: 400,
		CodePasswordRequired:      400,
		CodeMailDeliveryFailed:    500,
		CodeInvalidRefreshToken:   401,
		CodeUnauthorized:          401,
		CodeInternal:              500,
	}

	for code, status := range cases {
		err := newError(code, "boom")
		assert.Equal(t, code, ErrorCode(err))
		assert.Equal(t, status, HTTPStatus(err), code)
		assert.NotEmpty(t, PublicMessage(err), code)
	}
}

func TestUnclassifiedErrorsAreInternal(t *testing.T) {
	for _, err := range []error{
		errors.New("plain"),
		oops.Code("SOMETHING_ELSE").Errorf("unknown code"),
		oops.Errorf("no code"),
	} {
		assert.Equal(t, CodeInternal, ErrorCode(err))
		assert.Equal(t, 500, HTTPStatus(err))
		assert.Equal(t, "An unexpected error occurred. Please try again later.", PublicMessage(err))
	}

	assert.Equal(t, "", ErrorCode(nil))
}

func TestPublicMessageNeverLeaksInternalDetail(t *testing.T) {
	err := internalError(errors.New("pq: password authentication failed for user admin"), "find_account")

	assert.Equal(t, CodeInternal, ErrorCode(err))
	assert.NotContains(t, PublicMessage(err), "admin")
}

func TestPublicErrorCarriesMessageThroughWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", newPublicError(CodeWeakPassword, "This password is too common."))

	assert.Equal(t, CodeWeakPassword, ErrorCode(err))
	assert.Equal(t, "This password is too common.", PublicMessage(err))
}

func TestMailErrorDetails(t *testing.T) {
	err := oopsMailError(errors.New("dial tcp: timeout"))

	assert.Equal(t, CodeMailDeliveryFailed, ErrorCode(err))
	assert.Equal(t, "Failed to send email", PublicMessage(err))
	assert.Equal(t, "There was an error sending the reset email. Please try again later.", PublicDetails(err))
}
