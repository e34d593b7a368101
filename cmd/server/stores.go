package main

import (
	"database/sql"
	"log"

	assignmentrepo "emeet/backend/internal/assignment/repository"
	auditrepo "emeet/backend/internal/audit/repository"
	"emeet/backend/internal/db"
	"emeet/backend/internal/health"
	meetingrepo "emeet/backend/internal/meeting/repository"
	policyrepo "emeet/backend/internal/policy/repository"
	userrepo "emeet/backend/internal/user/repository"
)

// stores groups the repositories the server wires together.
type stores struct {
	meetings    meetingrepo.Repository
	users       userrepo.Repository
	audit       auditrepo.Repository
	assignments assignmentrepo.Repository
	// policies is nil on the in-memory setup; the built-in room policy is used.
	policies policyrepo.Repository
	// pinger is nil on the in-memory setup.
	pinger health.Pinger
	close  func() error
}

// openStores connects to Postgres, or falls back to in-memory repositories when dsn is empty.
func openStores(dsn string) (*stores, error) {
	if dsn == "" {
		log.Println("server: DATABASE_URL not set; using in-memory stores (data is lost on restart)")
		return &stores{
			meetings:    meetingrepo.NewMemoryRepository(),
			users:       userrepo.NewMemoryRepository(),
			audit:       auditrepo.NewMemoryRepository(),
			assignments: assignmentrepo.NewMemoryRepository(),
			close:       func() error { return nil },
		}, nil
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return nil, err
	}
	return postgresStores(conn), nil
}

func postgresStores(conn *sql.DB) *stores {
	return &stores{
		meetings:    meetingrepo.NewPostgresRepository(conn),
		users:       userrepo.NewPostgresRepository(conn),
		audit:       auditrepo.NewPostgresRepository(conn),
		assignments: assignmentrepo.NewPostgresRepository(conn),
		policies:    policyrepo.NewPostgresRepository(conn),
		pinger:      conn,
		close:       conn.Close,
	}
}
