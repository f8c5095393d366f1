// Package cache holds the per-process revocation cache that keeps the
// validation hot path free of store I/O. Entries are best-effort derived
// data; on any ambiguity the authority store wins.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

// DefaultTTL bounds how long an entry is trusted without confirmation. It is
// a fail-safe against lost invalidation events, not a correctness mechanism.
const DefaultTTL = 5 * time.Minute

// Metrics receives cache hit/miss observations per keyspace.
type Metrics interface {
	CacheHit(keyspace string)
	CacheMiss(keyspace string)
}

const (
	keyspaceVersion = "version"
	keyspaceSession = "session"
)

type versionEntry struct {
	version   int64
	expiresAt time.Time
}

type flagEntry struct {
	revoked   bool
	expiresAt time.Time
}

// RevocationCache caches (tenant,user) revocation versions and
// (tenant,session) revocation flags, reading through to the authority store
// on miss. Lookups on the hit path take no locks beyond sync.Map's
// lock-free reads.
type RevocationCache struct {
	store    ports.AuthorityStore
	ttl      time.Duration
	now      func() time.Time
	metrics  Metrics
	versions sync.Map // "tenant:user" -> versionEntry
	revoked  sync.Map // "tenant:session" -> flagEntry
}

// New creates a revocation cache backed by the given authority store.
// A non-positive ttl falls back to DefaultTTL.
func New(store ports.AuthorityStore, ttl time.Duration) *RevocationCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RevocationCache{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

var _ ports.RevocationCache = (*RevocationCache)(nil)

// WithNow overrides the clock, primarily for deterministic testing.
func (c *RevocationCache) WithNow(now func() time.Time) *RevocationCache {
	if now != nil {
		c.now = now
	}
	return c
}

// WithMetrics wires hit/miss observers.
func (c *RevocationCache) WithMetrics(metrics Metrics) *RevocationCache {
	c.metrics = metrics
	return c
}

// Version returns the revocation version for a user. Cache hits cost no
// I/O; a miss performs exactly one store read and populates the entry.
func (c *RevocationCache) Version(ctx context.Context, tenantID, userID string) (int64, error) {
	key := cacheKey(tenantID, userID)

	if val, ok := c.versions.Load(key); ok {
		entry := val.(versionEntry)
		if c.now().Before(entry.expiresAt) {
			c.hit(keyspaceVersion)
			return entry.version, nil
		}
		// Expired entries are misses.
		c.versions.CompareAndDelete(key, val)
	}
	c.miss(keyspaceVersion)

	version, err := c.store.GetVersion(ctx, tenantID, userID)
	if err != nil {
		return 0, err
	}

	c.StoreVersion(tenantID, userID, version)
	return version, nil
}

// SessionRevoked reports whether the session is revoked, reading the session
// record from the store on miss. Missing records surface as core.ErrNotFound
// so validators can reject unknown sessions.
func (c *RevocationCache) SessionRevoked(ctx context.Context, tenantID, sessionID string) (bool, error) {
	key := cacheKey(tenantID, sessionID)

	if val, ok := c.revoked.Load(key); ok {
		entry := val.(flagEntry)
		if entry.revoked || c.now().Before(entry.expiresAt) {
			c.hit(keyspaceSession)
			return entry.revoked, nil
		}
		c.revoked.CompareAndDelete(key, val)
	}
	c.miss(keyspaceSession)

	record, err := c.store.GetSessionRecord(ctx, tenantID, sessionID)
	if err != nil {
		return false, err
	}

	isRevoked := record.Status != core.StatusActive
	c.StoreSessionRevoked(tenantID, sessionID, isRevoked)
	return isRevoked, nil
}

// StoreVersion records an observed version. The compare-and-swap loop keeps
// versions monotone per key, which makes out-of-order event delivery safe.
func (c *RevocationCache) StoreVersion(tenantID, userID string, version int64) {
	key := cacheKey(tenantID, userID)
	entry := versionEntry{version: version, expiresAt: c.now().Add(c.ttl)}

	for {
		old, loaded := c.versions.LoadOrStore(key, entry)
		if !loaded {
			return
		}
		if old.(versionEntry).version > version {
			// A later revocation already landed; never regress.
			return
		}
		if c.versions.CompareAndSwap(key, old, entry) {
			return
		}
	}
}

// StoreSessionRevoked records the per-session revocation flag. Revocation is
// terminal, so a revoked flag is never overwritten by an active one.
func (c *RevocationCache) StoreSessionRevoked(tenantID, sessionID string, revoked bool) {
	key := cacheKey(tenantID, sessionID)
	entry := flagEntry{revoked: revoked, expiresAt: c.now().Add(c.ttl)}

	for {
		old, loaded := c.revoked.LoadOrStore(key, entry)
		if !loaded {
			return
		}
		if old.(flagEntry).revoked && !revoked {
			return
		}
		if c.revoked.CompareAndSwap(key, old, entry) {
			return
		}
	}
}

func (c *RevocationCache) hit(keyspace string) {
	if c.metrics != nil {
		c.metrics.CacheHit(keyspace)
	}
}

func (c *RevocationCache) miss(keyspace string) {
	if c.metrics != nil {
		c.metrics.CacheMiss(keyspace)
	}
}

func cacheKey(tenantID, id string) string {
	return fmt.Sprintf("%s:%s", tenantID, id)
}
