package repository

import (
	"context"
	"database/sql"

	"emeet/backend/internal/audit/domain"
)

// PostgresRepository stores audit logs in the audit_logs table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists a. The entry must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, session_id, user_id, action, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.SessionID,
		sql.NullString{String: a.UserID, Valid: a.UserID != ""},
		a.Action,
		sql.NullString{String: a.Metadata, Valid: a.Metadata != ""},
		a.CreatedAt,
	)
	return err
}

// ListBySession returns up to limit entries for sessionID, newest first.
func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, user_id, action, metadata, created_at
		 FROM audit_logs WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var a domain.AuditLog
		var uid, meta sql.NullString
		if err := rows.Scan(&a.ID, &a.SessionID, &uid, &a.Action, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.UserID = uid.String
		a.Metadata = meta.String
		out = append(out, &a)
	}
	return out, rows.Err()
}
