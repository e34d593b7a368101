package domain

import "time"

// Room audit actions. Chat content is never recorded.
const (
	ActionJoin       = "room.join"
	ActionLeave      = "room.leave"
	ActionAuthFailed = "room.auth_failed"
	ActionEnd        = "meeting.end"
)

// AuditLog is one recorded room event for a session.
type AuditLog struct {
	ID        string
	SessionID string
	UserID    string
	Action    string
	Metadata  string
	CreatedAt time.Time
}
