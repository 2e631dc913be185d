package store

import (
	"context"
	"sync"

	"github.com/example/googleauth/internal/identity"
)

// Memory is a process local store. Records live until the process exits.
type Memory struct {
	mu    sync.RWMutex
	users map[string]*identity.User
	opts  options
}

func NewMemory(opts ...Option) *Memory {
	return &Memory{
		users: map[string]*identity.User{},
		opts:  newOptions(opts),
	}
}

func (m *Memory) GetOrCreate(ctx context.Context, id identity.Identity) (*identity.User, error) {
	if err := validate(id); err != nil {
		return nil, err
	}

	m.mu.RLock()
	u, exists := m.users[id.ExternalID]
	m.mu.RUnlock()
	if exists {
		return copyUser(u), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Double-check after acquiring write lock
	if u, exists = m.users[id.ExternalID]; !exists {
		u = identity.NewUser(id, m.opts.now())
		m.users[id.ExternalID] = u
	}
	return copyUser(u), nil
}

func (m *Memory) GetByID(ctx context.Context, userID string) (*identity.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[userID]; ok {
		return copyUser(u), nil
	}
	return nil, ErrNotFound
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }

func copyUser(u *identity.User) *identity.User {
	c := *u
	return &c
}
