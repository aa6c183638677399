package domain

import "errors"

// Error is an application error with a stable machine-readable code.
// Callers match on the sentinel values below with errors.Is.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Session and token errors
var (
	ErrNotFound       = newError("NOT_FOUND", "resource not found")
	ErrInvalidToken   = newError("INVALID_TOKEN", "invalid token")
	ErrTokenExpired   = newError("TOKEN_EXPIRED", "token expired")
	ErrSessionRevoked = newError("SESSION_REVOKED", "session has been revoked")
	ErrSessionExpired = newError("SESSION_EXPIRED", "session has expired")
	ErrInvalidSession = newError("INVALID_SESSION", "invalid session")
	ErrUserInactive   = newError("USER_INACTIVE", "user is not active")
)

// Account errors
var (
	ErrInvalidCredentials = newError("INVALID_CREDENTIALS", "invalid credentials")
	ErrEmailExists        = newError("EMAIL_EXISTS", "email already registered")
	ErrInvalidStatus      = newError("INVALID_STATUS", "invalid user status")
	ErrInvalidResetToken  = newError("INVALID_RESET_TOKEN", "invalid or expired reset token")
	ErrForbidden          = newError("FORBIDDEN", "insufficient permissions")
)

var ErrStorageUnavailable = newError("STORAGE_UNAVAILABLE", "upload storage is not configured")

// CodeOf returns the application code carried by err, or "" when err is not
// an application error.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
