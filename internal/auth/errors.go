package auth

import "errors"

// Token verification failures. They never cross the authentication boundary.
var (
	ErrTokenMalformed        = errors.New("auth: malformed token")
	ErrTokenSignatureInvalid = errors.New("auth: token signature invalid")
	ErrTokenExpired          = errors.New("auth: token expired")
)

// Authentication failures visible to callers.
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

var ErrMissingSecret = errors.New("auth: signing secret is not configured")
