package room

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"emeet/backend/internal/audit"
	auditdomain "emeet/backend/internal/audit/domain"
	"emeet/backend/internal/meeting/domain"
	"emeet/backend/internal/meeting/lifecycle"
	"emeet/backend/internal/telemetry"
)

// End triggers.
const (
	TriggerParticipant = "participant"
	TriggerHTTP        = "http"
	TriggerSweep       = "sweep"
	TriggerLiveness    = "liveness"
)

// SessionStore is the slice of the meeting repository the termination path needs.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	UpdateStatus(ctx context.Context, id string, expected, next domain.Status) (bool, error)
}

// Terminator is the single path that ends a meeting: persist open → expired, then hand every room
// member the ended frame. Manual ends, HTTP ends and time-based expiry all go through End.
type Terminator struct {
	store    SessionStore
	registry *Registry
	events   telemetry.EventEmitter
	audit    audit.AuditLogger

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewTerminator returns a Terminator. events and auditLog may be nil.
func NewTerminator(store SessionStore, registry *Registry, events telemetry.EventEmitter, auditLog audit.AuditLogger) *Terminator {
	return &Terminator{
		store:    store,
		registry: registry,
		events:   events,
		audit:    auditLog,
		pending:  make(map[string]struct{}),
	}
}

// End terminates the meeting for sessionID.
//
// When persistence fails the room still ends, the session is remembered for Retry and the error
// wraps domain.ErrPersistence; if initiator is a member token of the room it receives an error
// frame ahead of the ended frame. Ending an already expired session only closes the room.
// Ending a closed session, or an unknown one, returns the error and leaves the room alone.
func (t *Terminator) End(ctx context.Context, sessionID, trigger, initiator string) error {
	roomID := domain.RoomID(sessionID)
	err := t.persist(ctx, sessionID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrPersistence):
		log.Printf("room: end %s: %v; room closed, status retried on next sweep", sessionID, err)
		t.markPending(sessionID)
		if initiator != "" {
			_ = t.registry.Send(roomID, initiator, ErrorFrame(CodePersistence, "The meeting ended but could not be saved; it will be retried."))
		}
	default:
		return err
	}

	members := t.registry.End(roomID, EndedFrame())
	if len(members) > 0 {
		telemetry.RoomEnded(trigger)
	}
	if t.audit != nil {
		t.audit.LogEvent(ctx, sessionID, "", auditdomain.ActionEnd, fmt.Sprintf(`{"trigger":%q,"members":%d}`, trigger, len(members)))
	}
	telemetry.EmitAsync(t.events, &telemetry.Event{
		SessionID: sessionID,
		Type:      "meeting.ended",
		Source:    trigger,
		Metadata:  []byte(fmt.Sprintf(`{"members":%d}`, len(members))),
		At:        time.Now().UTC(),
	})
	return err
}

// persist moves the session to expired with a conditional update. A lost race is re-read once:
// if someone else already expired it, that is success.
func (t *Terminator) persist(ctx context.Context, sessionID string) error {
	for attempt := 0; attempt < 2; attempt++ {
		s, err := t.store.GetSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("load session %s: %v: %w", sessionID, err, domain.ErrPersistence)
		}
		if s == nil {
			return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
		}
		next, err := lifecycle.ForceExpire(s.Status)
		if err != nil {
			if s.Status == domain.StatusExpired {
				t.clearPending(sessionID)
				return nil
			}
			return err
		}
		ok, err := t.store.UpdateStatus(ctx, sessionID, s.Status, next)
		if err != nil {
			return fmt.Errorf("expire session %s: %v: %w", sessionID, err, domain.ErrPersistence)
		}
		if ok {
			t.clearPending(sessionID)
			return nil
		}
	}
	return fmt.Errorf("expire session %s: status kept changing: %w", sessionID, domain.ErrPersistence)
}

// IsPending reports whether sessionID was ended but its status is not persisted yet. Such a
// session counts as ended for new joins.
func (t *Terminator) IsPending(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[sessionID]
	return ok
}

// Name identifies the retry job in sweep logs and metrics.
func (t *Terminator) Name() string { return "terminations" }

// Run retries persisting every pending end. Sessions that fail again stay pending.
func (t *Terminator) Run(ctx context.Context, now time.Time) error {
	t.mu.Lock()
	ids := make([]string, 0, len(t.pending))
	for id := range t.pending {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	var failed int
	for _, id := range ids {
		err := t.persist(ctx, id)
		switch {
		case err == nil:
			telemetry.SweepTransition(t.Name(), string(domain.StatusOpen), string(domain.StatusExpired))
		case errors.Is(err, domain.ErrPersistence):
			failed++
			telemetry.SweepFailure(t.Name())
			log.Printf("room: retry end %s: %v", id, err)
		default:
			// gone or no longer endable; nothing left to retry
			t.clearPending(id)
		}
	}
	if failed > 0 && failed == len(ids) {
		return fmt.Errorf("%d pending ends failed: %w", failed, domain.ErrPersistence)
	}
	return nil
}

func (t *Terminator) markPending(id string) {
	t.mu.Lock()
	t.pending[id] = struct{}{}
	t.mu.Unlock()
}

func (t *Terminator) clearPending(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}
