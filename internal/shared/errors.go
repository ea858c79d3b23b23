package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure. Unknown usernames and bad
	// passwords both map here.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken indicates a refresh token that is missing, expired or revoked.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenReused indicates an already consumed refresh token was presented again.
	ErrTokenReused = fmt.Errorf("%w: refresh token reused", ErrInvalidToken)
	// ErrUserNotFound indicates the token owner no longer exists.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnavailable indicates a store or cache dependency failure.
	ErrUnavailable = errors.New("dependency unavailable")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("conflict")
	// ErrProtected indicates an attempt to remove a system record.
	ErrProtected = errors.New("protected record")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
)

// Unavailable wraps a dependency failure so callers can match ErrUnavailable
// while keeping the underlying cause.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
