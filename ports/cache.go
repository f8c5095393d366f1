package ports

import "context"

// RevocationCache is the per-process, non-authoritative, read-through view
// of revocation state. Reads must be safe for heavy concurrent use and hit
// the AuthorityStore at most once per missed key; the cache never originates
// truth and is always re-derivable from the store.
type RevocationCache interface {
	// Version returns the revocation version for a user, fetching from the
	// authority store on miss.
	Version(ctx context.Context, tenantID, userID string) (int64, error)

	// SessionRevoked reports whether a session is revoked, fetching its
	// record from the authority store on miss. A missing record surfaces as
	// core.ErrNotFound.
	SessionRevoked(ctx context.Context, tenantID, sessionID string) (bool, error)

	// StoreVersion records a version observed from the store or an event.
	// Writes are last-writer-wins by version number: a lower version never
	// overwrites a higher one, so out-of-order events cannot regress state.
	StoreVersion(tenantID, userID string, version int64)

	// StoreSessionRevoked records the per-session revocation flag.
	StoreSessionRevoked(tenantID, sessionID string, revoked bool)
}
