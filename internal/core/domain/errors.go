package domain

import "errors"

var (
	ErrUserExists         = errors.New("account already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("access forbidden")
	ErrInvalidInput       = errors.New("invalid input")
)

// Token verification failures. They are distinguished for logs and metrics
// only; the transport layer reports all of them as ErrUnauthorized.
var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrMalformedToken = errors.New("malformed token")
)

// IsTokenError reports whether err is one of the token verification failures.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrMalformedToken)
}

// TokenErrorReason returns a short label for a token failure, suitable for
// log fields and metric labels.
func TokenErrorReason(err error) string {
	switch {
	case errors.Is(err, ErrExpiredToken):
		return "expired"
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	case errors.Is(err, ErrInvalidToken):
		return "invalid"
	default:
		return "unknown"
	}
}
