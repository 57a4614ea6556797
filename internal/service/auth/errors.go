package auth

import "errors"

// Token validation failures. The middleware maps ErrExpiredToken to its own
// message and treats the rest as an invalid credential.
var (
	ErrInvalidToken     = errors.New("invalid authentication token")
	ErrExpiredToken     = errors.New("authentication token has expired")
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")
	ErrMissingToken     = errors.New("authentication token is missing")
	// ErrMissingSubject is returned for tokens without a sub claim and when
	// minting a token for an empty principal.
	ErrMissingSubject = errors.New("authentication token has no subject")
)
