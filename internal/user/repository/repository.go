package repository

import (
	"context"

	"emeet/backend/internal/user/domain"
)

// Repository defines persistence for users. Getters return (nil, nil) when the user does not exist.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// Upsert creates u or updates the display name of the user with the same email.
	Upsert(ctx context.Context, u *domain.User) error
}
