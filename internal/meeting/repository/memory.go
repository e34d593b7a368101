package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"emeet/backend/internal/meeting/domain"
)

// MemoryRepository is an in-memory Repository for development without DATABASE_URL and for tests.
// Values are copied in and out so callers never share state with the store.
type MemoryRepository struct {
	mu       sync.RWMutex
	requests map[string]domain.MeetingRequest
	sessions map[string]domain.Session
	nowF     func() time.Time
}

// NewMemoryRepository returns an empty in-memory meeting repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		requests: make(map[string]domain.MeetingRequest),
		sessions: make(map[string]domain.Session),
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryRepository) CreateRequest(ctx context.Context, r *domain.MeetingRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[r.ID] = *r
	return nil
}

func (m *MemoryRepository) GetRequest(ctx context.Context, id string) (*domain.MeetingRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *MemoryRepository) ListRequestsByUser(ctx context.Context, userID string) ([]*domain.MeetingRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.MeetingRequest
	for _, r := range m.requests {
		if r.RequesterID == userID || r.HostID == userID {
			r := r
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) AcceptRequest(ctx context.Context, requestID string, s *domain.Session) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok || r.Status != domain.RequestStatusPending {
		return false, nil
	}
	for _, existing := range m.sessions {
		if existing.RequestID == requestID {
			return false, nil
		}
	}
	decided := s.CreatedAt
	r.Status = domain.RequestStatusAccepted
	r.DecidedAt = &decided
	m.requests[requestID] = r
	sess := *s
	sess.RequestID = requestID
	m.sessions[sess.ID] = sess
	return true, nil
}

func (m *MemoryRepository) DeclineRequest(ctx context.Context, requestID, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok || r.Status != domain.RequestStatusPending {
		return false, nil
	}
	decided := m.nowF()
	r.Status = domain.RequestStatusDeclined
	r.DeclineReason = reason
	r.DecidedAt = &decided
	m.requests[requestID] = r
	return true, nil
}

func (m *MemoryRepository) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryRepository) GetSessionByRequest(ctx context.Context, requestID string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.RequestID == requestID {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (m *MemoryRepository) ListNonTerminal(ctx context.Context) ([]*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Session
	for _, s := range m.sessions {
		if !s.Status.Terminal() {
			s := s
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (m *MemoryRepository) UpdateStatus(ctx context.Context, id string, expected, next domain.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != expected {
		return false, nil
	}
	s.Status = next
	s.UpdatedAt = m.nowF()
	m.sessions[id] = s
	return true, nil
}

// PutSession inserts or replaces a session directly. Used by seeding and tests.
func (m *MemoryRepository) PutSession(s *domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
}
