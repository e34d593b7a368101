package repository

import (
	"context"
	"database/sql"
	"errors"

	"emeet/backend/internal/user/domain"
)

// PostgresRepository stores users in the users table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, email, display_name, created_at`

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail returns the user with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *PostgresRepository) get(ctx context.Context, query string, arg string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.DisplayName, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// Upsert inserts u, or refreshes the display name when the email already exists. u.ID is set to
// the stored id.
func (r *PostgresRepository) Upsert(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	return r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, email, display_name, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO UPDATE SET display_name = EXCLUDED.display_name
		 RETURNING id, created_at`,
		u.ID, u.Email, u.DisplayName, u.CreatedAt,
	).Scan(&u.ID, &u.CreatedAt)
}
