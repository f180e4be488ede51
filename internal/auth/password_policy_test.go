package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordPolicyAcceptsStrongPassword(t *testing.T) {
	policy := DefaultPasswordPolicy()

	assert.NoError(t, policy.Validate("Str0ngP@ss", userAttributes("alice", "alice@x.com", "Alice", "Liddell")...))
	assert.NoError(t, policy.Validate("correct horse battery staple"))
}

func TestPasswordPolicyReportsFirstFailure(t *testing.T) {
	policy := DefaultPasswordPolicy()

	cases := []struct {
		name     string
		password string
		attrs    []UserAttribute
		want     string
	}{
		{name: "similar beats short", password: "alice", attrs: userAttributes("alice", "", "", ""), want: "The password is too similar to the username."},
		{name: "similar to email local part", password: "maryjones1", attrs: userAttributes("mj", "maryjones@x.com", "", ""), want: "The password is too similar to the email address."},
		{name: "short beats numeric", password: "1234", want: "This password is too short. It must contain at least 8 characters."},
		{name: "common beats numeric", password: "12345678", want: "This password is too common."},
		{name: "common ignores case", password: "PassWord", want: "This password is too common."},
		{name: "numeric", password: "90817263", want: "This password is entirely numeric."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := policy.Validate(tc.password, tc.attrs...)
			require.Error(t, err)
			assert.Equal(t, CodeWeakPassword, ErrorCode(err))
			assert.Equal(t, tc.want, PublicMessage(err))
		})
	}
}

func TestPasswordPolicySkipsShortAttributeParts(t *testing.T) {
	policy := DefaultPasswordPolicy()

	// "x" is far shorter than the password and is not compared.
	assert.NoError(t, policy.Validate("xxxxxxxxxxxxxxxxxxxxxxx9", UserAttribute{Label: "username", Value: "x"}))
}

func TestPasswordPolicyCountsRunes(t *testing.T) {
	policy := DefaultPasswordPolicy()

	assert.NoError(t, policy.Validate("пароль-дл"))
	assert.Error(t, policy.Validate("пароль"))
}

func TestQuickRatio(t *testing.T) {
	assert.InDelta(t, 1.0, quickRatio("abc", "cba"), 1e-9)
	assert.InDelta(t, 0.0, quickRatio("abc", "xyz"), 1e-9)
	assert.InDelta(t, 2*5.0/13.0, quickRatio("alice123", "alice"), 1e-9)
	assert.InDelta(t, 1.0, quickRatio("", ""), 1e-9)
}
