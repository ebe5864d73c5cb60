package users

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/apperr"
)

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		message  string
	}{
		{name: "strong", password: "Correct-Horse-9"},
		{name: "unicode letters count", password: "Ünïcødé-Pass-1"},
		{name: "too short", password: "Aa1!aaa", message: "at least 8 characters"},
		{name: "too long", password: "Aa1!" + strings.Repeat("a", 125), message: "no more than 128 characters"},
		{name: "no uppercase", password: "correct-horse-9", message: "uppercase"},
		{name: "no lowercase", password: "CORRECT-HORSE-9", message: "lowercase"},
		{name: "no digit", password: "Correct-Horse-Nine", message: "digit"},
		{name: "no special", password: "CorrectHorse9", message: "special character"},
		{name: "common", password: "P@ssw0rd", message: "too common"},
		{name: "common ignores case", password: "Welcome1!", message: "too common"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePasswordStrength(tt.password)
			if tt.message == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Contains(t, err.Error(), tt.message)

			var appErr *apperr.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, "password", appErr.Details["field"])
			assert.Equal(t, "weak_password", appErr.Details["reason"])
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"ada@example.com", true},
		{"ada.lovelace+tag@sub.example.co.uk", true},
		{"", false},
		{"ada", false},
		{"ada@example", false},
		{"ada@@example.com", false},
		{"ada lovelace@example.com", false},
		{"ada@" + strings.Repeat("a", 320) + ".com", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			}
		})
	}
}
