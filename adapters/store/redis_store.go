package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

const (
	versionPrefix = "rangda:ver"
	sessionPrefix = "rangda:sess"
	indexPrefix   = "rangda:idx"
)

// markRevoked flips status to revoked only when the record exists and is
// still active, so the caller learns whether this call did the revoking.
var markRevokedScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
if redis.call("HGET", KEYS[1], "status") ~= "active" then
	return 0
end
redis.call("HSET", KEYS[1], "status", "revoked", "reason", ARGV[1])
return 1
`)

// RedisStore is the Redis implementation of the AuthorityStore. Every key
// carries the tenant in its name, so no operation can cross tenants.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Redis-backed authority store.
func NewRedisStore(client redis.UniversalClient) ports.AuthorityStore {
	return &RedisStore{client: client}
}

// GetVersion returns the current revocation version, defaulting to 0 for
// users that were never bulk-revoked.
func (s *RedisStore) GetVersion(ctx context.Context, tenantID, userID string) (int64, error) {
	val, err := s.client.Get(ctx, versionKey(tenantID, userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, unavailable("redis get version", err)
	}

	version, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse stored version: %w", err)
	}

	return version, nil
}

// IncrementVersion bumps the revocation version with a single INCR, which is
// atomic on the server side and immune to lost updates from concurrent
// admin calls.
func (s *RedisStore) IncrementVersion(ctx context.Context, tenantID, userID string) (int64, error) {
	version, err := s.client.Incr(ctx, versionKey(tenantID, userID)).Result()
	if err != nil {
		return 0, unavailable("redis increment version", err)
	}
	return version, nil
}

// GetSessionRecord fetches a session record. Expired records disappear via
// the key TTL set at write time, so a missing key covers both deletion and
// expiry.
func (s *RedisStore) GetSessionRecord(ctx context.Context, tenantID, sessionID string) (*core.Session, error) {
	fields, err := s.client.HGetAll(ctx, sessionKey(tenantID, sessionID)).Result()
	if err != nil {
		return nil, unavailable("redis get session", err)
	}
	if len(fields) == 0 {
		return nil, core.ErrNotFound
	}

	return sessionFromFields(tenantID, sessionID, fields)
}

// PutSessionRecord stores the record with a TTL matching its expiry and adds
// it to the owner's session index.
func (s *RedisStore) PutSessionRecord(ctx context.Context, session *core.Session) error {
	key := sessionKey(session.TenantID, session.ID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"user_id", session.UserID,
		"device_id", session.DeviceID,
		"issuance_version", strconv.FormatInt(session.IssuanceVersion, 10),
		"issued_at", session.IssuedAt.UTC().Format(time.RFC3339Nano),
		"expires_at", session.ExpiresAt.UTC().Format(time.RFC3339Nano),
		"status", string(session.Status),
	)
	pipe.ExpireAt(ctx, key, session.ExpiresAt)
	pipe.SAdd(ctx, indexKey(session.TenantID, session.UserID), session.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("redis put session", err)
	}
	return nil
}

// MarkRevoked revokes a single session, reporting whether it was active.
func (s *RedisStore) MarkRevoked(ctx context.Context, tenantID, sessionID, reason string) (bool, error) {
	res, err := markRevokedScript.Run(ctx, s.client, []string{sessionKey(tenantID, sessionID)}, reason).Int()
	if err != nil {
		return false, unavailable("redis mark revoked", err)
	}
	return res == 1, nil
}

// RevokeUserSessions walks the user's session index and revokes each record,
// counting the ones that were still active. Index entries whose records have
// expired are pruned along the way.
func (s *RedisStore) RevokeUserSessions(ctx context.Context, tenantID, userID, reason string) (int, error) {
	idxKey := indexKey(tenantID, userID)

	sessionIDs, err := s.client.SMembers(ctx, idxKey).Result()
	if err != nil {
		return 0, unavailable("redis list user sessions", err)
	}

	count := 0
	for _, sessionID := range sessionIDs {
		res, err := markRevokedScript.Run(ctx, s.client, []string{sessionKey(tenantID, sessionID)}, reason).Int()
		if err != nil {
			return count, unavailable("redis mark revoked", err)
		}
		switch res {
		case 1:
			count++
		case -1:
			// Record expired out from under the index.
			s.client.SRem(ctx, idxKey, sessionID)
		}
	}

	return count, nil
}

func versionKey(tenantID, userID string) string {
	return fmt.Sprintf("%s:%s:%s", versionPrefix, tenantID, userID)
}

func sessionKey(tenantID, sessionID string) string {
	return fmt.Sprintf("%s:%s:%s", sessionPrefix, tenantID, sessionID)
}

func indexKey(tenantID, userID string) string {
	return fmt.Sprintf("%s:%s:%s", indexPrefix, tenantID, userID)
}

func sessionFromFields(tenantID, sessionID string, fields map[string]string) (*core.Session, error) {
	version, err := strconv.ParseInt(fields["issuance_version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse stored issuance version: %w", err)
	}

	issuedAt, err := time.Parse(time.RFC3339Nano, fields["issued_at"])
	if err != nil {
		return nil, fmt.Errorf("parse stored issued_at: %w", err)
	}

	expiresAt, err := time.Parse(time.RFC3339Nano, fields["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("parse stored expires_at: %w", err)
	}

	return &core.Session{
		ID:              sessionID,
		TenantID:        tenantID,
		UserID:          fields["user_id"],
		DeviceID:        fields["device_id"],
		IssuanceVersion: version,
		IssuedAt:        issuedAt,
		ExpiresAt:       expiresAt,
		Status:          core.SessionStatus(fields["status"]),
		RevokeReason:    fields["reason"],
	}, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, core.ErrStoreUnavailable, err)
}
