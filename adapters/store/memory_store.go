package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

// MemoryStore is an in-memory implementation of the AuthorityStore, intended
// for tests and single-node deployments. Expired records are dropped lazily
// on lookup.
type MemoryStore struct {
	mu       sync.Mutex
	versions map[string]int64
	sessions map[string]*core.Session
	index    map[string]map[string]struct{}
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory authority store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		versions: make(map[string]int64),
		sessions: make(map[string]*core.Session),
		index:    make(map[string]map[string]struct{}),
		now:      time.Now,
	}
}

var _ ports.AuthorityStore = (*MemoryStore)(nil)

// WithNow overrides the clock for deterministic expiry tests.
func (s *MemoryStore) WithNow(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// GetVersion returns the current revocation version, 0 if never incremented.
func (s *MemoryStore) GetVersion(ctx context.Context, tenantID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.versions[versionKey(tenantID, userID)], nil
}

// IncrementVersion bumps the revocation version under the store lock.
func (s *MemoryStore) IncrementVersion(ctx context.Context, tenantID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := versionKey(tenantID, userID)
	s.versions[key]++
	return s.versions[key], nil
}

// GetSessionRecord fetches a session record, dropping it if expired.
func (s *MemoryStore) GetSessionRecord(ctx context.Context, tenantID, sessionID string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(tenantID, sessionID)
	session, ok := s.sessions[key]
	if !ok {
		return nil, core.ErrNotFound
	}

	if session.Expired(s.now()) {
		delete(s.sessions, key)
		s.unindex(session)
		return nil, core.ErrNotFound
	}

	copied := *session
	return &copied, nil
}

// PutSessionRecord stores a session record and indexes it under its owner.
func (s *MemoryStore) PutSessionRecord(ctx context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *session
	s.sessions[sessionKey(session.TenantID, session.ID)] = &copied

	idx := indexKey(session.TenantID, session.UserID)
	if s.index[idx] == nil {
		s.index[idx] = make(map[string]struct{})
	}
	s.index[idx][session.ID] = struct{}{}

	return nil
}

// MarkRevoked revokes a single session, reporting whether it was active.
func (s *MemoryStore) MarkRevoked(ctx context.Context, tenantID, sessionID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.markRevokedLocked(tenantID, sessionID, reason), nil
}

// RevokeUserSessions revokes every indexed session of the user and returns
// how many were active immediately before the call.
func (s *MemoryStore) RevokeUserSessions(ctx context.Context, tenantID, userID, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for sessionID := range s.index[indexKey(tenantID, userID)] {
		if s.markRevokedLocked(tenantID, sessionID, reason) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) markRevokedLocked(tenantID, sessionID, reason string) bool {
	key := sessionKey(tenantID, sessionID)
	session, ok := s.sessions[key]
	if !ok {
		return false
	}

	if session.Expired(s.now()) {
		delete(s.sessions, key)
		s.unindex(session)
		return false
	}

	if session.Status != core.StatusActive {
		return false
	}

	session.Status = core.StatusRevoked
	session.RevokeReason = reason
	return true
}

func (s *MemoryStore) unindex(session *core.Session) {
	idx := indexKey(session.TenantID, session.UserID)
	if members, ok := s.index[idx]; ok {
		delete(members, session.ID)
		if len(members) == 0 {
			delete(s.index, idx)
		}
	}
}
