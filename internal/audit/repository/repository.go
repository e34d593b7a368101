package repository

import (
	"context"

	"emeet/backend/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// ListBySession returns a session's entries, newest first.
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*domain.AuditLog, error)
}
