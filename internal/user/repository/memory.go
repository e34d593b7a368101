package repository

import (
	"context"
	"sync"

	"emeet/backend/internal/user/domain"
)

// MemoryRepository keeps users in process; used without DATABASE_URL and in tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

// NewMemoryRepository returns an empty in-memory user repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]domain.User)}
}

func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (m *MemoryRepository) Upsert(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.users {
		if existing.Email == u.Email {
			existing.DisplayName = u.DisplayName
			m.users[id] = existing
			u.ID, u.CreatedAt = existing.ID, existing.CreatedAt
			return nil
		}
	}
	m.users[u.ID] = *u
	return nil
}
