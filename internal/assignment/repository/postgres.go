package repository

import (
	"context"
	"database/sql"
	"fmt"

	"emeet/backend/internal/assignment/domain"
)

// PostgresRepository reads and closes assignments in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an assignment repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListOpen returns open assignments ordered by deadline.
func (r *PostgresRepository) ListOpen(ctx context.Context) ([]*domain.Assignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, deadline, is_open, created_at FROM assignments WHERE is_open ORDER BY deadline`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Assignment
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.ID, &a.Title, &a.Deadline, &a.IsOpen, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// Close flips is_open with a conditional update and marks pending submissions overdue in the
// same transaction.
func (r *PostgresRepository) Close(ctx context.Context, id string) (bool, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE assignments SET is_open = FALSE WHERE id = $1 AND is_open`, id)
	if err != nil {
		return false, 0, fmt.Errorf("close assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, 0, err
	}
	if n == 0 {
		return false, 0, nil
	}
	res, err = tx.ExecContext(ctx,
		`UPDATE assignment_submissions SET status = $2 WHERE assignment_id = $1 AND status = $3`,
		id, string(domain.SubmissionOverdue), string(domain.SubmissionPending))
	if err != nil {
		return false, 0, fmt.Errorf("mark overdue: %w", err)
	}
	overdue, err := res.RowsAffected()
	if err != nil {
		return false, 0, err
	}
	if err := tx.Commit(); err != nil {
		return false, 0, err
	}
	return true, int(overdue), nil
}
