package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"emeet/backend/internal/meeting/domain"
)

const requestColumns = `id, requester_id, host_id, justification, status, decline_reason, created_at, decided_at`

const sessionColumns = `id, request_id, start_at, duration_minutes, status, secret, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a meeting repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateRequest persists a new request. The request must have ID set.
func (r *PostgresRepository) CreateRequest(ctx context.Context, m *domain.MeetingRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO meeting_requests (`+requestColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.RequesterID, m.HostID, m.Justification, string(m.Status),
		sql.NullString{String: m.DeclineReason, Valid: m.DeclineReason != ""},
		m.CreatedAt, timeToNullTime(m.DecidedAt),
	)
	return err
}

// GetRequest returns the request for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetRequest(ctx context.Context, id string) (*domain.MeetingRequest, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM meeting_requests WHERE id = $1`, id)
	m, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// ListRequestsByUser returns requests where userID is requester or host, newest first.
func (r *PostgresRepository) ListRequestsByUser(ctx context.Context, userID string) ([]*domain.MeetingRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM meeting_requests
		 WHERE requester_id = $1 OR host_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.MeetingRequest
	for rows.Next() {
		m, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AcceptRequest flips the request to accepted and inserts the session in one transaction.
func (r *PostgresRepository) AcceptRequest(ctx context.Context, requestID string, s *domain.Session) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE meeting_requests SET status = $2, decided_at = $3 WHERE id = $1 AND status = $4`,
		requestID, string(domain.RequestStatusAccepted), s.CreatedAt, string(domain.RequestStatusPending))
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return false, err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO meeting_sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, requestID, s.StartAt, s.DurationMinutes, string(s.Status), s.Secret, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("insert session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// DeclineRequest flips a pending request to declined with the given reason.
func (r *PostgresRepository) DeclineRequest(ctx context.Context, requestID, reason string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE meeting_requests SET status = $2, decline_reason = $3, decided_at = $4 WHERE id = $1 AND status = $5`,
		requestID, string(domain.RequestStatusDeclined), reason, time.Now().UTC(), string(domain.RequestStatusPending))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetSession returns the session for id, or nil if not found.
func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM meeting_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// GetSessionByRequest returns the session created from requestID, or nil if none.
func (r *PostgresRepository) GetSessionByRequest(ctx context.Context, requestID string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM meeting_sessions WHERE request_id = $1`, requestID)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListNonTerminal returns closed and open sessions ordered by start time.
func (r *PostgresRepository) ListNonTerminal(ctx context.Context) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM meeting_sessions WHERE status IN ($1, $2) ORDER BY start_at`,
		string(domain.StatusClosed), string(domain.StatusOpen))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateStatus is a compare-and-set on status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, expected, next domain.Status) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE meeting_sessions SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		id, string(expected), string(next), time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(s scanner) (*domain.MeetingRequest, error) {
	var (
		m       domain.MeetingRequest
		status  string
		reason  sql.NullString
		decided sql.NullTime
	)
	if err := s.Scan(&m.ID, &m.RequesterID, &m.HostID, &m.Justification, &status, &reason, &m.CreatedAt, &decided); err != nil {
		return nil, err
	}
	m.Status = domain.RequestStatus(status)
	if reason.Valid {
		m.DeclineReason = reason.String
	}
	m.DecidedAt = nullTimeToPtr(decided)
	return &m, nil
}

func scanSession(sc scanner) (*domain.Session, error) {
	var (
		s      domain.Session
		status string
	)
	if err := sc.Scan(&s.ID, &s.RequestID, &s.StartAt, &s.DurationMinutes, &status, &s.Secret, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Status = domain.Status(status)
	return &s, nil
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
