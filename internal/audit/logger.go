// Package audit records room events (joins, leaves, failed passwords, ends) per session.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"emeet/backend/internal/audit/domain"
	auditrepo "emeet/backend/internal/audit/repository"
)

// AuditLogger writes a single audit event. LogEvent is best-effort: failures are logged and do not
// affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, sessionID, userID, action, metadata string)
}

// Logger implements AuditLogger on top of the audit repository.
type Logger struct {
	repo auditrepo.Repository
	now  func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo. A nil repo makes LogEvent a no-op.
func NewLogger(repo auditrepo.Repository) *Logger {
	return &Logger{repo: repo, now: time.Now}
}

// LogEvent writes one audit log entry. Errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, sessionID, userID, action, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		UserID:    userID,
		Action:    action,
		Metadata:  metadata,
		CreatedAt: l.now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log %s for session %s: %v", action, sessionID, err)
	}
}
