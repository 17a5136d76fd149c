package session

import (
	"context"
	"sync"
	"time"

	"github.com/queen-doris/admin-application/pkg/xerrors"
)

// MemoryStore backs tests and single-instance development runs. Unlike
// the redis store it has no native TTLs, so Sweep does the expiring.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	e, ok := s.entries[sessionID]
	s.mu.RUnlock()

	if !ok {
		return nil, xerrors.ErrSessionNotFound
	}
	if time.Now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, sessionID)
		s.mu.Unlock()
		return nil, xerrors.ErrSessionExpired
	}

	cp := e.session
	return &cp, nil
}

func (s *MemoryStore) Set(_ context.Context, sess *Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[sess.ID] = memoryEntry{
		session:   *sess,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, sessionID)
	return nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]*Session, error) {
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Session
	for _, e := range s.entries {
		if e.session.UserID == userID && now.Before(e.expiresAt) {
			cp := e.session
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) Sweep(_ context.Context) error {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for sessionID, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, sessionID)
		}
	}
	return nil
}
