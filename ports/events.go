package ports

import (
	"context"

	"github.com/layer-3/rangda/core"
)

// EventPublisher broadcasts invalidation notices to every node's local
// cache. Delivery is at-least-once; ordering is a best-effort optimization
// because caches compare version numbers before applying updates.
type EventPublisher interface {
	// PublishUserRevoked announces a bulk user revocation at the new version.
	PublishUserRevoked(ctx context.Context, event core.UserRevokedEvent) error

	// PublishSessionRevoked announces a single-session revocation.
	PublishSessionRevoked(ctx context.Context, event core.SessionRevokedEvent) error
}
