package billing

import "errors"

var (
	ErrNoSecret          = errors.New("billing: webhook secret is not configured")
	ErrMissingSignature  = errors.New("billing: missing signature")
	ErrSignatureMismatch = errors.New("billing: invalid signature")
	ErrMalformedPayload  = errors.New("billing: malformed payload")
	ErrAccountNotFound   = errors.New("billing: account not found")
)
