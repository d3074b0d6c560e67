package shared

import "errors"

var (
	// ErrNotAuthenticated indicates the session carries no sign-in.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
