package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	// Access token failures.
	// ErrTokenExpired also covers a stale auth-version: the signature may
	// still be fine but the session is over.
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token is expired")
	ErrTokenRevoked = errors.New("token is revoked")

	// Refresh token failures.
	// ErrTokenReused means a rotated or revoked refresh token was presented
	// again. Externally it must be reported as a generic unauthorized.
	ErrTokenReused          = errors.New("refresh token reuse detected")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")

	// Authorization failure: authenticated but lacking role, permission or scope.
	ErrForbidden = errors.New("forbidden")

	// A dependency (cache, database) timed out or failed. Callers must not
	// report this as a credential failure.
	ErrUnavailable = errors.New("auth dependency unavailable")
)
