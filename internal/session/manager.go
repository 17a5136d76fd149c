package session

import (
	"context"
	"time"
)

// Manager applies the session policy on top of a Store: an inactivity
// timeout, and a cap on concurrent sessions per user with the oldest one
// evicted when the cap is hit.
type Manager struct {
	store      Store
	timeout    time.Duration
	maxPerUser int
}

func NewManager(store Store, timeout time.Duration, maxPerUser int) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxPerUser
	}
	return &Manager{store: store, timeout: timeout, maxPerUser: maxPerUser}
}

func (m *Manager) Create(ctx context.Context, userID, email, role, deviceID string) (*Session, error) {
	existing, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(existing) >= m.maxPerUser {
		oldest := existing[0]
		for _, s := range existing[1:] {
			if s.LastActivity.Before(oldest.LastActivity) {
				oldest = s
			}
		}
		if err := m.store.Delete(ctx, oldest.ID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:           NewID(),
		UserID:       userID,
		Email:        email,
		Role:         role,
		DeviceID:     deviceID,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := m.store.Set(ctx, sess, m.timeout); err != nil {
		return nil, err
	}
	return sess, nil
}

// Validate loads a session and refreshes its activity window.
func (m *Manager) Validate(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	sess.LastActivity = time.Now().UTC()
	if err := m.store.Set(ctx, sess, m.timeout); err != nil {
		return nil, err
	}
	return sess, nil
}

func (m *Manager) Invalidate(ctx context.Context, sessionID string) error {
	return m.store.Delete(ctx, sessionID)
}

func (m *Manager) InvalidateUser(ctx context.Context, userID string) (int, error) {
	sessions, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	for _, s := range sessions {
		if err := m.store.Delete(ctx, s.ID); err != nil {
			return 0, err
		}
	}
	return len(sessions), nil
}
