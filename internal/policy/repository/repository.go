package repository

import (
	"context"

	"emeet/backend/internal/policy/domain"
)

// Repository defines persistence for room policies.
type Repository interface {
	Create(ctx context.Context, p *domain.Policy) error
	// ListEnabled returns enabled policies ordered by creation time.
	ListEnabled(ctx context.Context) ([]*domain.Policy, error)
}
