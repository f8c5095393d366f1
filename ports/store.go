package ports

import (
	"context"

	"github.com/layer-3/rangda/core"
)

// AuthorityStore is the durable source of truth for revocation versions and
// session records. All keys are namespaced by tenant; implementations must
// return core.ErrStoreUnavailable on infrastructure failure rather than a
// stale or empty answer.
type AuthorityStore interface {
	// GetVersion returns the current revocation version for a user.
	// Users that were never revoked are at version 0.
	GetVersion(ctx context.Context, tenantID, userID string) (int64, error)

	// IncrementVersion atomically bumps the revocation version and returns
	// the new value. This is the only operation that requires strict
	// cross-caller atomicity.
	IncrementVersion(ctx context.Context, tenantID, userID string) (int64, error)

	// GetSessionRecord fetches a session by (tenant, session) key. Expired
	// records are dropped on lookup and reported as core.ErrNotFound.
	GetSessionRecord(ctx context.Context, tenantID, sessionID string) (*core.Session, error)

	// PutSessionRecord stores a new session record and indexes it under its
	// owner for bulk revocation.
	PutSessionRecord(ctx context.Context, session *core.Session) error

	// MarkRevoked flips a single session to Revoked. It returns false when
	// the session does not exist or is already revoked.
	MarkRevoked(ctx context.Context, tenantID, sessionID, reason string) (bool, error)

	// RevokeUserSessions marks every session of the user Revoked and returns
	// how many were Active immediately before the call.
	RevokeUserSessions(ctx context.Context, tenantID, userID, reason string) (int, error)
}
