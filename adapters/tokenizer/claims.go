package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims combines standard claims with the session-specific ones.
// The registered ID carries the session identifier and Subject the user.
type SessionClaims struct {
	jwt.RegisteredClaims
	TenantID        string `json:"tid"`
	DeviceID        string `json:"did"`
	IssuanceVersion int64  `json:"ver"`
}
