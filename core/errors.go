package core

import "errors"

var (
	// ErrMalformedToken is returned when a token cannot be decoded or its
	// signature does not verify.
	ErrMalformedToken = errors.New("malformed token")

	// ErrExpired is returned when a token or session has passed its expiry.
	ErrExpired = errors.New("session has expired")

	// ErrRevoked is returned when a session has been revoked, either by a
	// version mismatch or a per-session revocation flag.
	ErrRevoked = errors.New("session has been revoked")

	// ErrNotFound is returned when a session record does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrStoreUnavailable is returned when the authority store cannot be
	// reached. It is never folded into a stale answer.
	ErrStoreUnavailable = errors.New("authority store unavailable")
)

// IsRejection reports whether err is an expected validation rejection as
// opposed to an infrastructure fault.
func IsRejection(err error) bool {
	return errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrRevoked) ||
		errors.Is(err, ErrNotFound)
}
