// Package apperr holds the error classes shared by every layer. Callers match
// them with errors.Is; messages are deliberately generic.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrForbidden          = errors.New("access denied")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("not found")
	ErrIntegrity          = errors.New("backup is missing or corrupt")
	ErrRecovery           = errors.New("restore code is invalid or already used")
	ErrStorage            = errors.New("storage failure")
	ErrValidation         = errors.New("validation failed")
)

// ErrThrottled is returned while an identity is cooling down. It matches
// ErrInvalidCredentials so callers that only know the generic class still
// treat it as a failed login.
var ErrThrottled = fmt.Errorf("%w: please wait a moment before trying again", ErrInvalidCredentials)

// Validation wraps a field-level message so it matches ErrValidation.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
