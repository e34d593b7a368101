package repository

import (
	"context"
	"sort"
	"sync"

	"emeet/backend/internal/assignment/domain"
)

// MemoryRepository keeps assignments in process; used without DATABASE_URL and in tests.
type MemoryRepository struct {
	mu          sync.Mutex
	assignments map[string]domain.Assignment
	submissions map[string]domain.Submission
}

// NewMemoryRepository returns an empty in-memory assignment repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		assignments: make(map[string]domain.Assignment),
		submissions: make(map[string]domain.Submission),
	}
}

// Put inserts or replaces an assignment. Used by seeding and tests.
func (m *MemoryRepository) Put(a *domain.Assignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.ID] = *a
}

// PutSubmission inserts or replaces a submission.
func (m *MemoryRepository) PutSubmission(s *domain.Submission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions[s.ID] = *s
}

// Submission returns a copy of the submission, or nil.
func (m *MemoryRepository) Submission(id string) *domain.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return nil
	}
	return &s
}

func (m *MemoryRepository) ListOpen(ctx context.Context) ([]*domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Assignment
	for _, a := range m.assignments {
		if a.IsOpen {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out, nil
}

func (m *MemoryRepository) Close(ctx context.Context, id string) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok || !a.IsOpen {
		return false, 0, nil
	}
	a.IsOpen = false
	m.assignments[id] = a
	overdue := 0
	for sid, s := range m.submissions {
		if s.AssignmentID == id && s.Status == domain.SubmissionPending {
			s.Status = domain.SubmissionOverdue
			m.submissions[sid] = s
			overdue++
		}
	}
	return true, overdue, nil
}
