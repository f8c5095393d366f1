package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/rangda/adapters/store"
	"github.com/layer-3/rangda/adapters/tokenizer"
	"github.com/layer-3/rangda/cache"
	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu       sync.Mutex
	users    []core.UserRevokedEvent
	sessions []core.SessionRevokedEvent
}

func (p *recordingPublisher) PublishUserRevoked(ctx context.Context, event core.UserRevokedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = append(p.users, event)
	return nil
}

func (p *recordingPublisher) PublishSessionRevoked(ctx context.Context, event core.SessionRevokedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = append(p.sessions, event)
	return nil
}

// failingStore simulates an authority store outage.
type failingStore struct{}

func (failingStore) GetVersion(context.Context, string, string) (int64, error) {
	return 0, core.ErrStoreUnavailable
}
func (failingStore) IncrementVersion(context.Context, string, string) (int64, error) {
	return 0, core.ErrStoreUnavailable
}
func (failingStore) GetSessionRecord(context.Context, string, string) (*core.Session, error) {
	return nil, core.ErrStoreUnavailable
}
func (failingStore) PutSessionRecord(context.Context, *core.Session) error {
	return core.ErrStoreUnavailable
}
func (failingStore) MarkRevoked(context.Context, string, string, string) (bool, error) {
	return false, core.ErrStoreUnavailable
}
func (failingStore) RevokeUserSessions(context.Context, string, string, string) (int, error) {
	return 0, core.ErrStoreUnavailable
}

type fixture struct {
	svc       *SessionService
	store     ports.AuthorityStore
	tokenizer ports.Tokenizer
	publisher *recordingPublisher
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tk := tokenizer.NewJWTTokenizer(key)
	authorityStore := store.NewMemoryStore()
	revocationCache := cache.New(authorityStore, time.Minute)
	publisher := &recordingPublisher{}

	if opts.TokenTTL == 0 {
		opts.TokenTTL = time.Hour
	}

	svc := NewSessionService(tk, authorityStore, revocationCache, publisher, opts)

	return &fixture{
		svc:       svc,
		store:     authorityStore,
		tokenizer: tk,
		publisher: publisher,
	}
}

func TestSessionService_RoundTrip(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	token, err := f.svc.CreateSession(ctx, "t1", "u1", "phone")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	identity, err := f.svc.ValidateSession(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, &core.Identity{TenantID: "t1", UserID: "u1", DeviceID: "phone"}, identity)
}

func TestSessionService_RejectsMalformedToken(t *testing.T) {
	f := newFixture(t, Options{})

	for _, token := range []string{"", "garbage", "a.b.c"} {
		_, err := f.svc.ValidateSession(context.Background(), token)
		assert.ErrorIs(t, err, core.ErrMalformedToken)
		assert.True(t, core.IsRejection(err))
	}
}

func TestSessionService_RejectsExpiredToken(t *testing.T) {
	f := newFixture(t, Options{TokenTTL: time.Minute})
	ctx := context.Background()

	token, err := f.svc.CreateSession(ctx, "t1", "u1", "phone")
	require.NoError(t, err)

	f.svc.WithNow(func() time.Time { return time.Now().Add(2 * time.Minute) })

	_, err = f.svc.ValidateSession(ctx, token)
	assert.ErrorIs(t, err, core.ErrExpired)
}

func TestSessionService_RejectsUnknownSession(t *testing.T) {
	f := newFixture(t, Options{})

	// A well-signed token whose session was never registered.
	now := time.Now()
	orphan := &core.Session{
		ID:        "ghost",
		TenantID:  "t1",
		UserID:    "u1",
		DeviceID:  "phone",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
		Status:    core.StatusActive,
	}
	token, err := f.tokenizer.SessionToToken(orphan)
	require.NoError(t, err)

	_, err = f.svc.ValidateSession(context.Background(), token)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSessionService_BulkRevocationCompleteness(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	var tokens []string
	for _, device := range []string{"phone", "laptop"} {
		token, err := f.svc.CreateSession(ctx, "t1", "u1", device)
		require.NoError(t, err)
		tokens = append(tokens, token)
	}

	otherUser, err := f.svc.CreateSession(ctx, "t1", "u2", "phone")
	require.NoError(t, err)
	otherTenant, err := f.svc.CreateSession(ctx, "t2", "u1", "phone")
	require.NoError(t, err)

	count, err := f.svc.InvalidateUserSessions(ctx, "t1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for _, token := range tokens {
		_, err := f.svc.ValidateSession(ctx, token)
		assert.ErrorIs(t, err, core.ErrRevoked)
	}

	// Same tenant, different user: untouched.
	_, err = f.svc.ValidateSession(ctx, otherUser)
	assert.NoError(t, err)

	// Same user ID under a different tenant: untouched.
	_, err = f.svc.ValidateSession(ctx, otherTenant)
	assert.NoError(t, err)
}

func TestSessionService_VersionMonotonicity(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	const bumps = 5
	for i := 0; i < bumps; i++ {
		_, err := f.svc.InvalidateUserSessions(ctx, "t1", "u1")
		require.NoError(t, err)
	}

	version, err := f.store.GetVersion(ctx, "t1", "u1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, version, int64(bumps))

	require.Len(t, f.publisher.users, bumps)
	for i, event := range f.publisher.users {
		assert.Equal(t, int64(i+1), event.Version)
	}
}

func TestSessionService_IdempotentCounting(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateSession(ctx, "t1", "u1", "device")
		require.NoError(t, err)
	}

	count, err := f.svc.InvalidateUserSessions(ctx, "t1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = f.svc.InvalidateUserSessions(ctx, "t1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// The version keeps advancing even when nothing is left to mark.
	version, err := f.store.GetVersion(ctx, "t1", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestSessionService_PerSessionIsolation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	phone, err := f.svc.CreateSession(ctx, "t1", "u1", "phone")
	require.NoError(t, err)
	laptop, err := f.svc.CreateSession(ctx, "t1", "u1", "laptop")
	require.NoError(t, err)

	revoked, err := f.svc.InvalidateSession(ctx, phone)
	require.NoError(t, err)
	assert.True(t, revoked)

	_, err = f.svc.ValidateSession(ctx, phone)
	assert.ErrorIs(t, err, core.ErrRevoked)

	// The sibling session of the same user still validates.
	_, err = f.svc.ValidateSession(ctx, laptop)
	assert.NoError(t, err)

	// Revoking again reports no change.
	revoked, err = f.svc.InvalidateSession(ctx, phone)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.Len(t, f.publisher.sessions, 1)
}

func TestSessionService_InvalidateSessionUnknownToken(t *testing.T) {
	f := newFixture(t, Options{})

	revoked, err := f.svc.InvalidateSession(context.Background(), "garbage")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestSessionService_ThreeDeviceScenario(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	phone, err := f.svc.CreateSession(ctx, "t1", "u1", "phone")
	require.NoError(t, err)
	laptop, err := f.svc.CreateSession(ctx, "t1", "u1", "laptop")
	require.NoError(t, err)
	tablet, err := f.svc.CreateSession(ctx, "t1", "u1", "tablet")
	require.NoError(t, err)

	revoked, err := f.svc.InvalidateSession(ctx, phone)
	require.NoError(t, err)
	assert.True(t, revoked)

	count, err := f.svc.InvalidateUserSessions(ctx, "t1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = f.svc.InvalidateUserSessions(ctx, "t1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	for _, token := range []string{phone, laptop, tablet} {
		_, err := f.svc.ValidateSession(ctx, token)
		assert.ErrorIs(t, err, core.ErrRevoked)
	}
}

func TestSessionService_SharedUserAcrossTenants(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	tokens := make(map[string]string)
	for _, tenant := range []string{"tenant_1", "tenant_2", "tenant_3"} {
		token, err := f.svc.CreateSession(ctx, tenant, "shared_user", "phone")
		require.NoError(t, err)
		tokens[tenant] = token
	}

	count, err := f.svc.InvalidateUserSessions(ctx, "tenant_1", "shared_user")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = f.svc.ValidateSession(ctx, tokens["tenant_1"])
	assert.ErrorIs(t, err, core.ErrRevoked)

	_, err = f.svc.ValidateSession(ctx, tokens["tenant_2"])
	assert.NoError(t, err)
	_, err = f.svc.ValidateSession(ctx, tokens["tenant_3"])
	assert.NoError(t, err)
}

func TestSessionService_NewSessionAfterBulkRevocation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	old, err := f.svc.CreateSession(ctx, "t1", "u1", "phone")
	require.NoError(t, err)

	_, err = f.svc.InvalidateUserSessions(ctx, "t1", "u1")
	require.NoError(t, err)

	// A fresh login after the bump is stamped with the new version and
	// validates while the old token stays dead.
	fresh, err := f.svc.CreateSession(ctx, "t1", "u1", "phone")
	require.NoError(t, err)

	_, err = f.svc.ValidateSession(ctx, fresh)
	assert.NoError(t, err)
	_, err = f.svc.ValidateSession(ctx, old)
	assert.ErrorIs(t, err, core.ErrRevoked)
}

func TestSessionService_RejectsFutureVersionAnomaly(t *testing.T) {
	f := newFixture(t, Options{})

	now := time.Now()
	anomaly := &core.Session{
		ID:              "s1",
		TenantID:        "t1",
		UserID:          "u1",
		DeviceID:        "phone",
		IssuanceVersion: 5, // Stored version is 0; this token cannot exist.
		IssuedAt:        now,
		ExpiresAt:       now.Add(time.Hour),
		Status:          core.StatusActive,
	}
	token, err := f.tokenizer.SessionToToken(anomaly)
	require.NoError(t, err)

	_, err = f.svc.ValidateSession(context.Background(), token)
	assert.ErrorIs(t, err, core.ErrRevoked)
}

func TestSessionService_FailClosedByDefault(t *testing.T) {
	healthy := newFixture(t, Options{})
	token, err := healthy.svc.CreateSession(context.Background(), "t1", "u1", "phone")
	require.NoError(t, err)

	broken := NewSessionService(
		healthy.tokenizer,
		failingStore{},
		cache.New(failingStore{}, time.Minute),
		&recordingPublisher{},
		Options{TokenTTL: time.Hour},
	)

	_, err = broken.ValidateSession(context.Background(), token)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.False(t, core.IsRejection(err))
}

func TestSessionService_FailOpenWhenConfigured(t *testing.T) {
	healthy := newFixture(t, Options{})
	token, err := healthy.svc.CreateSession(context.Background(), "t1", "u1", "phone")
	require.NoError(t, err)

	open := NewSessionService(
		healthy.tokenizer,
		failingStore{},
		cache.New(failingStore{}, time.Minute),
		&recordingPublisher{},
		Options{TokenTTL: time.Hour, FailOpen: true},
	)

	identity, err := open.ValidateSession(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.UserID)

	// Signature and expiry remain enforced even when failing open.
	_, err = open.ValidateSession(context.Background(), "garbage")
	assert.ErrorIs(t, err, core.ErrMalformedToken)
}

func TestSessionService_ConcurrentValidation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	token, err := f.svc.CreateSession(ctx, "t1", "u1", "phone")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := f.svc.ValidateSession(ctx, token)
				if err != nil && !core.IsRejection(err) {
					t.Errorf("unexpected infrastructure error: %v", err)
					return
				}
			}
		}()
	}

	// Revoke mid-flight; validators may see either outcome, never an error.
	_, err = f.svc.InvalidateUserSessions(ctx, "t1", "u1")
	require.NoError(t, err)

	wg.Wait()

	_, err = f.svc.ValidateSession(ctx, token)
	assert.ErrorIs(t, err, core.ErrRevoked)
}
