package repository

import (
	"context"

	"emeet/backend/internal/meeting/domain"
)

// Repository defines persistence for meeting requests and their sessions.
// Getters return (nil, nil) when the row does not exist.
type Repository interface {
	CreateRequest(ctx context.Context, r *domain.MeetingRequest) error
	GetRequest(ctx context.Context, id string) (*domain.MeetingRequest, error)
	ListRequestsByUser(ctx context.Context, userID string) ([]*domain.MeetingRequest, error)
	// AcceptRequest marks a pending request accepted and inserts its session atomically.
	// Returns false when the request is no longer pending.
	AcceptRequest(ctx context.Context, requestID string, s *domain.Session) (bool, error)
	// DeclineRequest marks a pending request declined. Returns false when it is no longer pending.
	DeclineRequest(ctx context.Context, requestID, reason string) (bool, error)

	GetSession(ctx context.Context, id string) (*domain.Session, error)
	GetSessionByRequest(ctx context.Context, requestID string) (*domain.Session, error)
	// ListNonTerminal returns every session that is closed or open.
	ListNonTerminal(ctx context.Context) ([]*domain.Session, error)
	// UpdateStatus sets status to next only if it still equals expected. Returns false when the
	// precondition failed or the session does not exist.
	UpdateStatus(ctx context.Context, id string, expected, next domain.Status) (bool, error)
}
