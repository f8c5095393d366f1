package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

// DefaultTokenTTL keeps tokens short-lived to narrow the revocation window.
const DefaultTokenTTL = 5 * time.Minute

// Revocation reasons recorded on session records.
const (
	ReasonUserRevoked    = "user_revoked"
	ReasonSessionRevoked = "session_revoked"
)

// Metrics captures telemetry hooks for validation and revocation tracking.
type Metrics interface {
	ObserveValidation(outcome string)
	IncRevocation(kind string)
}

// Options configures optional behaviours of the session service.
type Options struct {
	// TokenTTL is the lifetime of issued tokens.
	TokenTTL time.Duration

	// FailOpen accepts tokens at face value when the authority store is
	// unreachable instead of rejecting them. Off by default; enabling it
	// trades revocation latency for availability and every such acceptance
	// is logged.
	FailOpen bool
}

// SessionService composes the tokenizer, authority store, local cache and
// event channel into the session lifecycle operations.
type SessionService struct {
	tokenizer ports.Tokenizer
	store     ports.AuthorityStore
	cache     ports.RevocationCache
	events    ports.EventPublisher

	tokenTTL time.Duration
	failOpen bool
	logger   *zap.Logger
	now      func() time.Time
	metrics  Metrics
}

// NewSessionService creates a new session service.
func NewSessionService(
	tokenizer ports.Tokenizer,
	store ports.AuthorityStore,
	cache ports.RevocationCache,
	events ports.EventPublisher,
	opts Options,
) *SessionService {
	svc := &SessionService{
		tokenizer: tokenizer,
		store:     store,
		cache:     cache,
		events:    events,
		tokenTTL:  opts.TokenTTL,
		failOpen:  opts.FailOpen,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	if svc.tokenTTL <= 0 {
		svc.tokenTTL = DefaultTokenTTL
	}
	return svc
}

// WithLogger attaches a structured logger to the service.
func (s *SessionService) WithLogger(logger *zap.Logger) *SessionService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithNow overrides the clock, primarily for deterministic testing.
func (s *SessionService) WithNow(now func() time.Time) *SessionService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithMetrics wires telemetry observers.
func (s *SessionService) WithMetrics(metrics Metrics) *SessionService {
	s.metrics = metrics
	return s
}

// CreateSession mints a new session for the user on the given device and
// returns its bearer token. The current revocation version is stamped into
// the token and the session record; it never changes afterwards.
func (s *SessionService) CreateSession(ctx context.Context, tenantID, userID, deviceID string) (string, error) {
	version, err := s.cache.Version(ctx, tenantID, userID)
	if err != nil {
		return "", fmt.Errorf("read revocation version: %w", err)
	}

	now := s.now()
	session := &core.Session{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		UserID:          userID,
		DeviceID:        deviceID,
		IssuanceVersion: version,
		IssuedAt:        now,
		ExpiresAt:       now.Add(s.tokenTTL),
		Status:          core.StatusActive,
	}

	if err := s.store.PutSessionRecord(ctx, session); err != nil {
		return "", fmt.Errorf("write session record: %w", err)
	}

	token, err := s.tokenizer.SessionToToken(session)
	if err != nil {
		return "", fmt.Errorf("encode session token: %w", err)
	}

	return token, nil
}

// ValidateSession checks a bearer token and returns the caller's identity.
// Rejections come back as typed errors (malformed, expired, revoked, not
// found) that callers must collapse into a single uniform refusal; only
// store faults are infrastructure errors. On a warm cache this performs no
// I/O at all.
func (s *SessionService) ValidateSession(ctx context.Context, token string) (*core.Identity, error) {
	identity, err := s.validate(ctx, token)
	s.observeValidation(err)
	return identity, err
}

func (s *SessionService) validate(ctx context.Context, token string) (*core.Identity, error) {
	session, err := s.tokenizer.TokenToSession(token)
	if err != nil {
		return nil, core.ErrMalformedToken
	}

	if session.Expired(s.now()) {
		return nil, core.ErrExpired
	}

	identity := &core.Identity{
		TenantID: session.TenantID,
		UserID:   session.UserID,
		DeviceID: session.DeviceID,
	}

	version, err := s.cache.Version(ctx, session.TenantID, session.UserID)
	if err != nil {
		return s.storeFault(identity, err)
	}

	if session.IssuanceVersion != version {
		if session.IssuanceVersion > version {
			// Tokens can only ever carry a version at or below the stored
			// one; anything newer means the store lost writes.
			s.logger.Warn("token version exceeds stored version",
				zap.String("tenant_id", session.TenantID),
				zap.String("user_id", session.UserID),
				zap.Int64("token_version", session.IssuanceVersion),
				zap.Int64("stored_version", version),
			)
		}
		return nil, core.ErrRevoked
	}

	revoked, err := s.cache.SessionRevoked(ctx, session.TenantID, session.ID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrNotFound
		}
		return s.storeFault(identity, err)
	}
	if revoked {
		return nil, core.ErrRevoked
	}

	return identity, nil
}

// storeFault applies the fail-open/fail-closed policy to a store outage
// encountered mid-validation.
func (s *SessionService) storeFault(identity *core.Identity, err error) (*core.Identity, error) {
	if s.failOpen && errors.Is(err, core.ErrStoreUnavailable) {
		s.logger.Warn("accepting session with authority store unavailable",
			zap.String("tenant_id", identity.TenantID),
			zap.String("user_id", identity.UserID),
			zap.Error(err),
		)
		return identity, nil
	}
	return nil, fmt.Errorf("check revocation state: %w", err)
}

// InvalidateUserSessions revokes every session of the user in one shot by
// bumping the revocation version, then marks the individual records and
// announces the new version. Returns how many sessions were active
// immediately before the call; calling again without new logins returns 0
// while the version still increments.
func (s *SessionService) InvalidateUserSessions(ctx context.Context, tenantID, userID string) (int, error) {
	version, err := s.store.IncrementVersion(ctx, tenantID, userID)
	if err != nil {
		return 0, fmt.Errorf("increment revocation version: %w", err)
	}

	// The publishing node must not wait for its own event to loop back.
	s.cache.StoreVersion(tenantID, userID, version)

	count, err := s.store.RevokeUserSessions(ctx, tenantID, userID, ReasonUserRevoked)
	if err != nil {
		return count, fmt.Errorf("revoke user sessions: %w", err)
	}

	if s.metrics != nil {
		s.metrics.IncRevocation("user_bulk")
	}

	event := core.UserRevokedEvent{TenantID: tenantID, UserID: userID, Version: version}
	if err := s.events.PublishUserRevoked(ctx, event); err != nil {
		// The store mutation stands; the caller still learns propagation is
		// degraded.
		return count, fmt.Errorf("publish user_revoked: %w", err)
	}

	return count, nil
}

// InvalidateSession revokes the single session carried by the token. It
// returns false when the token is unreadable, the session is unknown, or it
// was already revoked; the user's revocation version is untouched.
func (s *SessionService) InvalidateSession(ctx context.Context, token string) (bool, error) {
	session, err := s.tokenizer.TokenToSession(token)
	if err != nil {
		return false, nil
	}

	changed, err := s.store.MarkRevoked(ctx, session.TenantID, session.ID, ReasonSessionRevoked)
	if err != nil {
		return false, fmt.Errorf("mark session revoked: %w", err)
	}
	if !changed {
		return false, nil
	}

	s.cache.StoreSessionRevoked(session.TenantID, session.ID, true)

	if s.metrics != nil {
		s.metrics.IncRevocation("session")
	}

	event := core.SessionRevokedEvent{TenantID: session.TenantID, SessionID: session.ID}
	if err := s.events.PublishSessionRevoked(ctx, event); err != nil {
		return true, fmt.Errorf("publish session_revoked: %w", err)
	}

	return true, nil
}

func (s *SessionService) observeValidation(err error) {
	if s.metrics == nil {
		return
	}

	switch {
	case err == nil:
		s.metrics.ObserveValidation("ok")
	case errors.Is(err, core.ErrMalformedToken):
		s.metrics.ObserveValidation("malformed")
	case errors.Is(err, core.ErrExpired):
		s.metrics.ObserveValidation("expired")
	case errors.Is(err, core.ErrRevoked):
		s.metrics.ObserveValidation("revoked")
	case errors.Is(err, core.ErrNotFound):
		s.metrics.ObserveValidation("not_found")
	default:
		s.metrics.ObserveValidation("store_error")
	}
}
