package core

import "time"

// SessionStatus is the lifecycle state of a session record.
type SessionStatus string

const (
	// StatusActive marks a session that may still validate.
	StatusActive SessionStatus = "active"

	// StatusRevoked is terminal. A revoked session is never reactivated;
	// a new login mints a new session ID instead.
	StatusRevoked SessionStatus = "revoked"
)

// Session represents an authenticated user session
type Session struct {
	ID              string        // Unique session identifier within the tenant
	TenantID        string        // Tenant the session belongs to
	UserID          string        // User identifier within the tenant
	DeviceID        string        // Device the session was created on
	IssuanceVersion int64         // User revocation version at issuance time, immutable
	IssuedAt        time.Time     // When the session was created
	ExpiresAt       time.Time     // When the session expires
	Status          SessionStatus // Active or Revoked
	RevokeReason    string        // Set when Status is Revoked
}

// Expired reports whether the session has passed its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Identity is the result of a successful validation.
type Identity struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
}

// UserRevocationState tracks the bulk-revocation counter for a (tenant, user)
// pair. Version starts at 0 and only ever increases; any session whose
// IssuanceVersion differs from the current version is treated as revoked.
type UserRevocationState struct {
	TenantID string
	UserID   string
	Version  int64
}
