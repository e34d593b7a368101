package repository

import (
	"context"
	"database/sql"

	"emeet/backend/internal/policy/domain"
)

// PostgresRepository stores room policies in the room_policies table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a policy repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists p. The policy must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Policy) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO room_policies (id, name, rules, enabled, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, p.Rules, p.Enabled, p.CreatedAt)
	return err
}

// ListEnabled returns enabled policies, oldest first. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListEnabled(ctx context.Context) ([]*domain.Policy, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, rules, enabled, created_at FROM room_policies WHERE enabled ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Policy
	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(&p.ID, &p.Name, &p.Rules, &p.Enabled, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
