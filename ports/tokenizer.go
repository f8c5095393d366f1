package ports

import "github.com/layer-3/rangda/core"

// Tokenizer converts between session records and opaque bearer tokens.
// Implementations provide tamper evidence; the embedded issuance version
// and expiry are immutable once the token is signed.
type Tokenizer interface {
	// SessionToToken encodes a session into a signed bearer string.
	SessionToToken(session *core.Session) (string, error)

	// TokenToSession decodes and verifies a bearer string. Any decode or
	// signature failure is reported as core.ErrMalformedToken.
	TokenToSession(token string) (*core.Session, error)
}
