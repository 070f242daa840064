package shared

import "errors"

var (
	// ErrNotFound is returned by repositories for unknown records.
	ErrNotFound = errors.New("shared: not found")
	// ErrInvalidCredentials covers every failed login, whatever the cause.
	ErrInvalidCredentials = errors.New("shared: invalid credentials")
	// ErrSessionMissing is returned when no session is attached to the request.
	ErrSessionMissing = errors.New("shared: session missing")
	// ErrCSRFTokenMissing occurs when the request or the session has no token.
	ErrCSRFTokenMissing = errors.New("shared: csrf token missing")
	// ErrCSRFTokenMismatch occurs when the tokens differ.
	ErrCSRFTokenMismatch = errors.New("shared: csrf token mismatch")
)
