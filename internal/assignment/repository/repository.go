package repository

import (
	"context"

	"emeet/backend/internal/assignment/domain"
)

// Repository defines the persistence the deadline sweep needs.
type Repository interface {
	// ListOpen returns every assignment still accepting submissions.
	ListOpen(ctx context.Context) ([]*domain.Assignment, error)
	// Close marks the assignment closed and its pending submissions overdue in one step.
	// Returns false when the assignment was already closed.
	Close(ctx context.Context, id string) (closed bool, overdue int, err error)
}
