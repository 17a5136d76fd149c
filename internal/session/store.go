package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/queen-doris/admin-application/pkg/cache"
	"github.com/queen-doris/admin-application/pkg/xerrors"
)

const (
	namespace = "session"

	DefaultTimeout    = 30 * time.Minute
	DefaultMaxPerUser = 3
)

// Session is the server-side record behind a bearer token.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	DeviceID     string    `json:"device_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Store is the capability interface session state lives behind, so the
// backing can be shared across service instances instead of living in a
// process-local map.
type Store interface {
	Get(ctx context.Context, sessionID string) (*Session, error)
	Set(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
	ListByUser(ctx context.Context, userID string) ([]*Session, error)

	// Sweep drops expired entries. Backends with native TTLs may no-op.
	Sweep(ctx context.Context) error
}

func NewID() string {
	return uuid.NewString()
}

// RedisStore keeps sessions in redis with the inactivity timeout as the
// key TTL, so expiry needs no sweeper and is shared across instances.
type RedisStore struct {
	cache *cache.Cache
}

func NewRedisStore(c *cache.Cache) *RedisStore {
	return &RedisStore{cache: c}
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	raw, err := s.cache.Get(ctx, namespace, sessionID)
	if errors.Is(err, redis.Nil) {
		return nil, xerrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *RedisStore) Set(ctx context.Context, sess *Session, ttl time.Duration) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, namespace, sess.ID, raw, ttl)
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.cache.Delete(ctx, namespace, sessionID)
}

// ListByUser scans the session namespace. Session cardinality is tiny
// (a handful per logged-in user), so the scan is acceptable here.
func (s *RedisStore) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	keys, err := s.cache.Keys(ctx, namespace)
	if err != nil {
		return nil, err
	}

	var out []*Session
	for _, key := range keys {
		raw, err := s.cache.Get(ctx, namespace, strings.TrimPrefix(key, namespace+":"))
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var sess Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			continue
		}
		if sess.UserID == userID {
			out = append(out, &sess)
		}
	}
	return out, nil
}

func (s *RedisStore) Sweep(context.Context) error {
	// Redis expires keys itself.
	return nil
}
