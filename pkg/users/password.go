package users

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
	MaxEmailLength    = 320
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// commonPasswords are refused even when they meet the character rules
var commonPasswords = map[string]struct{}{
	"password":     {},
	"123456":       {},
	"12345678":     {},
	"qwerty":       {},
	"abc123":       {},
	"password123":  {},
	"admin":        {},
	"letmein":      {},
	"welcome":      {},
	"monkey":       {},
	"password1!":   {},
	"password123!": {},
	"p@ssw0rd":     {},
	"p@ssw0rd1":    {},
	"p@ssword1":    {},
	"passw0rd!":    {},
	"qwerty123!":   {},
	"welcome1!":    {},
	"welcome123!":  {},
	"letmein1!":    {},
	"admin123!":    {},
	"changeme1!":   {},
}

func weak(message string) *apperr.Error {
	return apperr.Validation("password", message).WithDetail("reason", "weak_password")
}

// ValidatePasswordStrength enforces length, character class and
// common-password rules. Failures are KindValidation on field "password".
func ValidatePasswordStrength(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return weak(fmt.Sprintf("Password must be at least %d characters long", MinPasswordLength))
	}
	if n > MaxPasswordLength {
		return weak(fmt.Sprintf("Password must be no more than %d characters long", MaxPasswordLength))
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	switch {
	case !upper:
		return weak("Password must contain at least one uppercase letter")
	case !lower:
		return weak("Password must contain at least one lowercase letter")
	case !digit:
		return weak("Password must contain at least one digit")
	case !special:
		return weak("Password must contain at least one special character")
	}

	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		return weak("Password is too common and easily guessable")
	}
	return nil
}

// ValidateEmail checks that email looks like local@domain.tld
func ValidateEmail(email string) error {
	if email == "" {
		return apperr.Validation("email", "email is required")
	}
	if len(email) > MaxEmailLength || !emailPattern.MatchString(email) {
		return apperr.Validation("email", fmt.Sprintf("invalid email format: %s", email))
	}
	return nil
}
