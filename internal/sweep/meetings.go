package sweep

import (
	"context"
	"fmt"
	"log"
	"time"

	"emeet/backend/internal/meeting/domain"
	"emeet/backend/internal/meeting/lifecycle"
	"emeet/backend/internal/telemetry"
)

// MeetingStore is the slice of the meeting repository the meeting sweep needs.
type MeetingStore interface {
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	ListNonTerminal(ctx context.Context) ([]*domain.Session, error)
	UpdateStatus(ctx context.Context, id string, expected, next domain.Status) (bool, error)
}

// ExpiredFunc is told about every session this process moved to expired.
type ExpiredFunc func(ctx context.Context, sessionID string)

// MeetingJob advances closed and open sessions along their schedule.
type MeetingJob struct {
	store     MeetingStore
	onExpired ExpiredFunc
}

// NewMeetingJob returns the meeting sweep. onExpired may be nil.
func NewMeetingJob(store MeetingStore, onExpired ExpiredFunc) *MeetingJob {
	return &MeetingJob{store: store, onExpired: onExpired}
}

func (j *MeetingJob) Name() string { return "meetings" }

// Run reconciles every non-terminal session. One session failing is logged and retried next tick.
func (j *MeetingJob) Run(ctx context.Context, now time.Time) error {
	sessions, err := j.store.ListNonTerminal(ctx)
	if err != nil {
		telemetry.SweepFailure(j.Name())
		return fmt.Errorf("list sessions: %w", err)
	}
	for _, s := range sessions {
		if _, err := j.advance(ctx, s, now); err != nil {
			telemetry.SweepFailure(j.Name())
			log.Printf("sweep: session %s: %v", s.ID, err)
		}
	}
	return nil
}

// Refresh loads a session and brings its status up to date at now. Returns (nil, nil) when the
// session does not exist. Used when a connection arrives so a lagging sweep never admits anyone
// to a room whose window has passed.
func (j *MeetingJob) Refresh(ctx context.Context, sessionID string, now time.Time) (*domain.Session, error) {
	s, err := j.store.GetSession(ctx, sessionID)
	if err != nil || s == nil {
		return nil, err
	}
	status, err := j.advance(ctx, s, now)
	if err != nil {
		return nil, err
	}
	s.Status = status
	return s, nil
}

// advance persists each step of the reconciliation with a conditional update. A lost precondition
// means another writer got there first; the stored value is re-read and the pass stops there.
func (j *MeetingJob) advance(ctx context.Context, s *domain.Session, now time.Time) (domain.Status, error) {
	current := s.Status
	for _, step := range lifecycle.Reconcile(current, s.StartAt, s.DurationMinutes, now) {
		ok, err := j.store.UpdateStatus(ctx, s.ID, step.From, step.To)
		if err != nil {
			return current, fmt.Errorf("%s -> %s: %w", step.From, step.To, err)
		}
		if !ok {
			latest, err := j.store.GetSession(ctx, s.ID)
			if err != nil {
				return current, err
			}
			if latest == nil {
				return current, fmt.Errorf("session vanished: %w", domain.ErrNotFound)
			}
			return latest.Status, nil
		}
		telemetry.SweepTransition(j.Name(), string(step.From), string(step.To))
		current = step.To
		if current == domain.StatusExpired && j.onExpired != nil {
			j.onExpired(ctx, s.ID)
		}
	}
	return current, nil
}
