package errors

import (
	"errors"
	"fmt"
)

// Domain errors - these map to specific HTTP responses
var (
	// Challenge issuance errors
	ErrInvalidEmail    = errors.New("invalid email")
	ErrDeliveryFailed  = errors.New("code delivery failed")
	ErrResendCooldown  = errors.New("code recently sent")
	ErrInvalidCode     = errors.New("code must be 6 digits")
	ErrChallengeExists = errors.New("challenge collision")

	// Challenge verification errors. Only ErrTooManyAttempts is surfaced
	// distinctly to callers; the rest collapse to "invalid or expired code".
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrAlreadyUsed       = errors.New("challenge already used")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrTooManyAttempts   = errors.New("too many attempts")
	ErrEmailMismatch     = errors.New("challenge email mismatch")
	ErrCodeMismatch      = errors.New("code mismatch")

	// Token errors
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenInvalid     = errors.New("token invalid")

	// Session errors
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrSessionEnded         = errors.New("session ended")

	// General errors
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInternal         = errors.New("internal error")
	ErrUnauthorized     = errors.New("unauthorized")
)

// IsInvalidCode reports whether err is one of the verification failures
// that must not be distinguished to an unauthenticated caller.
func IsInvalidCode(err error) bool {
	return errors.Is(err, ErrChallengeNotFound) ||
		errors.Is(err, ErrAlreadyUsed) ||
		errors.Is(err, ErrChallengeExpired) ||
		errors.Is(err, ErrEmailMismatch) ||
		errors.Is(err, ErrCodeMismatch)
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Unavailable marks an infrastructure failure as ErrStoreUnavailable while
// keeping the underlying cause in the chain.
func Unavailable(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", message, ErrStoreUnavailable, err)
}
