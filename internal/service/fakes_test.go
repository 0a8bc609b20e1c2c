package service

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/auth-template-service/internal/model"
	"github.com/iliyamo/auth-template-service/internal/repository"
)

type memUsers struct {
	mu     sync.Mutex
	byID   map[uint64]model.User
	nextID uint64
	err    error // returned by every call when set
}

func newMemUsers() *memUsers { return &memUsers{byID: map[uint64]model.User{}} }

func (m *memUsers) Create(_ context.Context, nu model.NewUser) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.User{}, m.err
	}
	for _, u := range m.byID {
		if u.Username == nu.Username {
			return model.User{}, repository.ErrAlreadyExists
		}
	}
	m.nextID++
	now := time.Now().UTC()
	u := model.User{ID: m.nextID, Username: nu.Username, PasswordHash: nu.PasswordHash, Role: nu.Role, CreatedAt: now, UpdatedAt: now}
	m.byID[u.ID] = u
	return u, nil
}

func (m *memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.User{}, m.err
	}
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.User{}, m.err
	}
	for _, u := range m.byID {
		if u.Username == username {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) UpdatePasswordHash(_ context.Context, id uint64, hash string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.User{}, m.err
	}
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	u.PasswordHash = hash
	m.byID[id] = u
	return u, nil
}

func (m *memUsers) delete(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}

// racyUsers reports every username as free, then loses the insert.
type racyUsers struct{ *memUsers }

func (racyUsers) GetByUsername(context.Context, string) (model.User, error) {
	return model.User{}, repository.ErrNotFound
}

type memTokens struct {
	mu   sync.Mutex
	rows map[uint64]model.RefreshToken
}

func newMemTokens() *memTokens { return &memTokens{rows: map[uint64]model.RefreshToken{}} }

func (m *memTokens) Upsert(_ context.Context, userID uint64, token string, expiresAt time.Time) (model.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.rows[userID]
	if !ok {
		rt = model.RefreshToken{ID: uint64(len(m.rows) + 1), UserID: userID, CreatedAt: time.Now().UTC()}
	}
	rt.Token = token
	rt.ExpiresAt = expiresAt
	m.rows[userID] = rt
	return rt, nil
}

func (m *memTokens) GetByUserID(_ context.Context, userID uint64) (model.RefreshToken, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.rows[userID]
	return rt, ok, nil
}

type recordingPublisher struct {
	bodies [][]byte
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.bodies = append(p.bodies, body)
	return nil
}
