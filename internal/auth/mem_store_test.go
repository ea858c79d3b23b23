package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

type memStore struct {
	mu          sync.Mutex
	users       map[int64]User
	roles       map[int64][]string
	tokens      map[int64]*RefreshToken
	nextTokenID int64
	lastLogin   map[int64]time.Time

	userErr   error
	tokenErr  error
	recordErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:     make(map[int64]User),
		roles:     make(map[int64][]string),
		tokens:    make(map[int64]*RefreshToken),
		lastLogin: make(map[int64]time.Time),
	}
}

func (m *memStore) addUser(u User, roles ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.roles[u.ID] = roles
}

func (m *memStore) setUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *memStore) deleteUser(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

func (m *memStore) FindUserByID(ctx context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userErr != nil {
		return User{}, m.userErr
	}
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (m *memStore) FindUserByName(ctx context.Context, normalizedName string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userErr != nil {
		return User{}, m.userErr
	}
	for _, u := range m.users {
		if shared.NormalizeName(u.Username) == normalizedName {
			return u, nil
		}
	}
	return User{}, shared.ErrNotFound
}

func (m *memStore) RoleNamesForUser(ctx context.Context, userID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userErr != nil {
		return nil, m.userErr
	}
	return append([]string(nil), m.roles[userID]...), nil
}

func (m *memStore) RecordLogin(ctx context.Context, userID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	m.lastLogin[userID] = at
	return nil
}

func (m *memStore) CreateRefreshToken(ctx context.Context, t RefreshToken) (RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokenErr != nil {
		return RefreshToken{}, m.tokenErr
	}
	return m.insertLocked(t), nil
}

func (m *memStore) insertLocked(t RefreshToken) RefreshToken {
	m.nextTokenID++
	t.ID = m.nextTokenID
	stored := t
	m.tokens[t.ID] = &stored
	return t
}

func (m *memStore) FindRefreshToken(ctx context.Context, tokenHash string) (RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokenErr != nil {
		return RefreshToken{}, m.tokenErr
	}
	for _, t := range m.tokens {
		if t.TokenHash == tokenHash {
			return *t, nil
		}
	}
	return RefreshToken{}, shared.ErrNotFound
}

func (m *memStore) RotateRefreshToken(ctx context.Context, oldID int64, now time.Time, next RefreshToken) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokenErr != nil {
		return false, m.tokenErr
	}
	old, ok := m.tokens[oldID]
	if !ok || old.RevokedAt != nil || !old.ExpiresAt.After(now) {
		return false, nil
	}
	revokedAt := now
	old.RevokedAt = &revokedAt
	m.insertLocked(next)
	return true, nil
}

func (m *memStore) RevokeRefreshToken(ctx context.Context, tokenHash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokenErr != nil {
		return m.tokenErr
	}
	for _, t := range m.tokens {
		if t.TokenHash == tokenHash && t.RevokedAt == nil {
			revokedAt := now
			t.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *memStore) RevokeRefreshTokenByID(ctx context.Context, id int64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokenErr != nil {
		return m.tokenErr
	}
	if t, ok := m.tokens[id]; ok && t.RevokedAt == nil {
		revokedAt := now
		t.RevokedAt = &revokedAt
	}
	return nil
}

func (m *memStore) tokenByValue(value string) (RefreshToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TokenHash == HashToken(value) {
			return *t, true
		}
	}
	return RefreshToken{}, false
}

func (m *memStore) failTokens(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenErr = err
}

func (m *memStore) failUsers(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userErr = err
}

var errStoreDown = errors.New("connection refused")
