package core

// Event topics carried by the invalidation channel.
const (
	TopicUserRevoked    = "rangda.user_revoked"
	TopicSessionRevoked = "rangda.session_revoked"
)

// UserRevokedEvent announces that every session issued for the user before
// Version is now invalid.
type UserRevokedEvent struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	Version  int64  `json:"version"`
}

// SessionRevokedEvent announces that a single session has been revoked.
type SessionRevokedEvent struct {
	TenantID  string `json:"tenant_id"`
	SessionID string `json:"session_id"`
}
