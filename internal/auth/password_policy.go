package auth

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	defaultMinPasswordLength = 8
	defaultMaxSimilarity     = 0.7
)

//go:embed common_passwords.txt
var commonPasswordList string

var nonWord = regexp.MustCompile(`\W+`)

// UserAttribute is a named value a password must not resemble.
type UserAttribute struct {
	Label string
	Value string
}

// PasswordPolicy applies the rules in order and reports the first failure.
type PasswordPolicy struct {
	MinLength     int
	MaxSimilarity float64
	common        map[string]struct{}
}

func DefaultPasswordPolicy() PasswordPolicy {
	common := make(map[string]struct{})
	for _, line := range strings.Split(commonPasswordList, "\n") {
		line = strings.TrimSpace(strings.ToLower(line))
		if line != "" && !strings.HasPrefix(line, "#") {
			common[line] = struct{}{}
		}
	}

	return PasswordPolicy{
		MinLength:     defaultMinPasswordLength,
		MaxSimilarity: defaultMaxSimilarity,
		common:        common,
	}
}

// Validate returns a WEAK_PASSWORD error carrying the first failed rule's message.
func (p PasswordPolicy) Validate(password string, attrs ...UserAttribute) error {
	if msg := p.firstViolation(password, attrs); msg != "" {
		return newPublicError(CodeWeakPassword, msg)
	}
	return nil
}

func (p PasswordPolicy) firstViolation(password string, attrs []UserAttribute) string {
	lowered := strings.ToLower(password)

	for _, attr := range attrs {
		if p.tooSimilar(lowered, attr.Value) {
			return fmt.Sprintf("The password is too similar to the %s.", attr.Label)
		}
	}

	if utf8.RuneCountInString(password) < p.MinLength {
		return fmt.Sprintf("This password is too short. It must contain at least %d characters.", p.MinLength)
	}

	if _, ok := p.common[strings.TrimSpace(lowered)]; ok {
		return "This password is too common."
	}

	if isAllDigits(password) {
		return "This password is entirely numeric."
	}

	return ""
}

func (p PasswordPolicy) tooSimilar(password, value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return false
	}

	parts := append(nonWord.Split(value, -1), value)
	for _, part := range parts {
		if part == "" || exceedsLengthRatio(password, part, p.MaxSimilarity) {
			continue
		}
		if quickRatio(password, part) >= p.MaxSimilarity {
			return true
		}
	}

	return false
}

// exceedsLengthRatio skips parts too short relative to the password to ever
// reach the similarity threshold.
func exceedsLengthRatio(password, value string, maxSimilarity float64) bool {
	pwdLen := utf8.RuneCountInString(password)
	valueLen := utf8.RuneCountInString(value)
	lengthBound := maxSimilarity / 2 * float64(pwdLen)
	return pwdLen >= 10*valueLen && float64(valueLen) < lengthBound
}

// quickRatio is 2*M/T where M counts characters the two strings share
// regardless of order.
func quickRatio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 1
	}

	available := make(map[rune]int)
	for _, r := range b {
		available[r]++
	}

	matches := 0
	for _, r := range a {
		if available[r] > 0 {
			available[r]--
			matches++
		}
	}

	return 2 * float64(matches) / float64(total)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
