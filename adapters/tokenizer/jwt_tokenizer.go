package tokenizer

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

// AudienceSession marks tokens minted by this service.
const AudienceSession = "session:access"

// JWTTokenizer implements the Tokenizer interface using ES256 JWTs.
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
}

// NewJWTTokenizer creates a new JWT tokenizer signing with the given key.
func NewJWTTokenizer(signKey *ecdsa.PrivateKey) ports.Tokenizer {
	return &JWTTokenizer{signKey: signKey}
}

// SessionToToken converts a session into a signed JWT.
func (j *JWTTokenizer) SessionToToken(session *core.Session) (string, error) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		TenantID:        session.TenantID,
		DeviceID:        session.DeviceID,
		IssuanceVersion: session.IssuanceVersion,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// TokenToSession parses and verifies a JWT, returning the embedded session.
// Every decode failure collapses to core.ErrMalformedToken so callers leak
// nothing about why a token was rejected.
func (j *JWTTokenizer) TokenToSession(tokenStr string) (*core.Session, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithoutClaimsValidation())

	if err != nil || !token.Valid {
		return nil, core.ErrMalformedToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, core.ErrMalformedToken
	}
	// Expiry is checked by the caller so it stays distinguishable from a
	// decode failure; the audience still has to match.
	if len(claims.Audience) == 0 || claims.Audience[0] != AudienceSession {
		return nil, core.ErrMalformedToken
	}
	if claims.TenantID == "" || claims.ID == "" {
		return nil, core.ErrMalformedToken
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, core.ErrMalformedToken
	}

	return &core.Session{
		ID:              claims.ID,
		TenantID:        claims.TenantID,
		UserID:          claims.Subject,
		DeviceID:        claims.DeviceID,
		IssuanceVersion: claims.IssuanceVersion,
		IssuedAt:        claims.IssuedAt.Time,
		ExpiresAt:       claims.ExpiresAt.Time,
	}, nil
}
