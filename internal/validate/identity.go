// Package validate holds the field validators used at the edges of the
// service: identities, passwords, and the traveller/scooter record fields.
package validate

import (
	"regexp"
	"strings"
	"unicode"

	"urbanmobility/internal/apperr"
	"urbanmobility/internal/models"
)

var (
	usernameRx     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_'.]*$`)
	passwordCharRx = regexp.MustCompile(`^[A-Za-z0-9!@#$%^&*(),.?":{}|<>]+$`)
)

const passwordSpecials = `!@#$%^&*(),.?":{}|<>`

// Username normalizes and checks an identity. The seeded super admin name is
// accepted as-is; every other identity is 8-10 characters.
func Username(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == models.SuperAdminUsername {
		return username, nil
	}
	if n := len(username); n < 8 || n > 10 {
		return "", apperr.Validation("username must be 8-10 characters")
	}
	if !usernameRx.MatchString(username) {
		return "", apperr.Validation("username must start with a letter or underscore and contain only letters, digits, _ ' .")
	}
	return username, nil
}

func Password(pw string) error {
	if n := len(pw); n < 12 || n > 30 {
		return apperr.Validation("password must be 12-30 characters")
	}
	if !passwordCharRx.MatchString(pw) {
		return apperr.Validation("password contains invalid characters")
	}
	var lower, upper, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	switch {
	case !lower:
		return apperr.Validation("password must contain a lowercase letter")
	case !upper:
		return apperr.Validation("password must contain an uppercase letter")
	case !digit:
		return apperr.Validation("password must contain a digit")
	case !special:
		return apperr.Validation("password must contain a special character")
	}
	return nil
}

// Text rejects empty, oversized, or control-character input.
func Text(field, value string) (string, error) {
	if value == "" {
		return "", apperr.Validation("%s cannot be empty", field)
	}
	if len(value) > 1000 {
		return "", apperr.Validation("%s is too long", field)
	}
	for _, r := range value {
		if r < 32 || r == 127 {
			return "", apperr.Validation("%s contains invalid characters", field)
		}
	}
	return value, nil
}
