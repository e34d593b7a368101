// Package service implements the meeting request workflow: request, accept, decline, and the
// out-of-band actions on a scheduled meeting.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"emeet/backend/internal/meeting/domain"
	"emeet/backend/internal/meeting/repository"
	"emeet/backend/internal/meeting/secret"
	"emeet/backend/internal/notification"
	"emeet/backend/internal/room"
	userdomain "emeet/backend/internal/user/domain"
)

// UserRepo is the minimal user repository needed by the meeting service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// Ender is the shared termination path (room.Terminator).
type Ender interface {
	End(ctx context.Context, sessionID, trigger, initiator string) error
}

// Meeting is a session together with the request it came from.
type Meeting struct {
	Session *domain.Session
	Request *domain.MeetingRequest
}

// SecretFor returns the room secret when userID is one of the two participants, otherwise "".
func (m *Meeting) SecretFor(userID string) string {
	if m.Request.IsParticipant(userID) {
		return m.Session.Secret
	}
	return ""
}

// MeetingService owns the request/approval workflow.
type MeetingService struct {
	repo     repository.Repository
	users    UserRepo
	notifier notification.Notifier
	ender    Ender

	now       func() time.Time
	newID     func() string
	newSecret func() (string, error)
}

// NewMeetingService returns a MeetingService. users may be nil to skip host existence checks;
// notifier may be nil to disable notifications.
func NewMeetingService(repo repository.Repository, users UserRepo, notifier notification.Notifier, ender Ender) *MeetingService {
	return &MeetingService{
		repo:      repo,
		users:     users,
		notifier:  notifier,
		ender:     ender,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.New().String() },
		newSecret: secret.Generate,
	}
}

func persistence(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrPersistence)
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
}

// RequestMeeting creates a pending request from requesterID to hostID and notifies the host.
func (s *MeetingService) RequestMeeting(ctx context.Context, requesterID, hostID, justification string) (*domain.MeetingRequest, error) {
	r := &domain.MeetingRequest{
		ID:            s.newID(),
		RequesterID:   requesterID,
		HostID:        hostID,
		Justification: strings.TrimSpace(justification),
		Status:        domain.RequestStatusPending,
		CreatedAt:     s.now(),
	}
	if err := r.Validate(); err != nil {
		return nil, invalid(err)
	}
	if s.users != nil {
		host, err := s.users.GetByID(ctx, hostID)
		if err != nil {
			return nil, persistence("load host", err)
		}
		if host == nil {
			return nil, fmt.Errorf("host %s: %w", hostID, domain.ErrNotFound)
		}
	}
	if err := s.repo.CreateRequest(ctx, r); err != nil {
		return nil, persistence("create request", err)
	}
	s.notify(r.HostID, notification.KindRequested, r, "", "You have a new meeting request.")
	return r, nil
}

// Accept schedules the meeting for a pending request. Only the host may accept. Exactly one
// session is created per request; its secret is generated here and never regenerated.
func (s *MeetingService) Accept(ctx context.Context, requestID, hostID string, startAt time.Time, durationMinutes int) (*domain.Session, error) {
	r, err := s.pendingForHost(ctx, requestID, hostID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := domain.ValidateSchedule(startAt, durationMinutes, now); err != nil {
		return nil, invalid(err)
	}
	pw, err := s.newSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	sess := &domain.Session{
		ID:              s.newID(),
		RequestID:       r.ID,
		StartAt:         startAt.UTC(),
		DurationMinutes: durationMinutes,
		Status:          domain.StatusClosed,
		Secret:          pw,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	ok, err := s.repo.AcceptRequest(ctx, r.ID, sess)
	if err != nil {
		return nil, persistence("accept request", err)
	}
	if !ok {
		return nil, fmt.Errorf("request %s already decided: %w", r.ID, domain.ErrInvalidTransition)
	}
	s.notify(r.RequesterID, notification.KindAccepted, r, sess.ID,
		fmt.Sprintf("Your meeting is scheduled for %s (%d minutes).", sess.StartAt.Format(time.RFC3339), durationMinutes))
	return sess, nil
}

// Decline rejects a pending request with a reason. Only the host may decline.
func (s *MeetingService) Decline(ctx context.Context, requestID, hostID, reason string) (*domain.MeetingRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid(errors.New("decline reason is required"))
	}
	r, err := s.pendingForHost(ctx, requestID, hostID)
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.DeclineRequest(ctx, r.ID, reason)
	if err != nil {
		return nil, persistence("decline request", err)
	}
	if !ok {
		return nil, fmt.Errorf("request %s already decided: %w", r.ID, domain.ErrInvalidTransition)
	}
	now := s.now()
	r.Status = domain.RequestStatusDeclined
	r.DeclineReason = reason
	r.DecidedAt = &now
	s.notify(r.RequesterID, notification.KindDeclined, r, "", "Your meeting request was declined: "+reason)
	return r, nil
}

func (s *MeetingService) pendingForHost(ctx context.Context, requestID, hostID string) (*domain.MeetingRequest, error) {
	r, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, persistence("load request", err)
	}
	if r == nil {
		return nil, fmt.Errorf("request %s: %w", requestID, domain.ErrNotFound)
	}
	if r.HostID != hostID {
		return nil, fmt.Errorf("only the host may decide: %w", domain.ErrUnauthorized)
	}
	if r.Status != domain.RequestStatusPending {
		return nil, fmt.Errorf("request %s is %s: %w", r.ID, r.Status, domain.ErrInvalidTransition)
	}
	return r, nil
}

// ListRequests returns the requests userID made or received, newest first.
func (s *MeetingService) ListRequests(ctx context.Context, userID string) ([]*domain.MeetingRequest, error) {
	out, err := s.repo.ListRequestsByUser(ctx, userID)
	if err != nil {
		return nil, persistence("list requests", err)
	}
	return out, nil
}

// GetMeeting returns the session and its request.
func (s *MeetingService) GetMeeting(ctx context.Context, sessionID string) (*Meeting, error) {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, persistence("load session", err)
	}
	if sess == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	r, err := s.repo.GetRequest(ctx, sess.RequestID)
	if err != nil {
		return nil, persistence("load request", err)
	}
	if r == nil {
		return nil, fmt.Errorf("request for session %s: %w", sessionID, domain.ErrNotFound)
	}
	return &Meeting{Session: sess, Request: r}, nil
}

// EndMeeting ends a meeting outside the live connection. It goes through the same termination
// path as the in-room end action. Ending an already expired meeting succeeds.
func (s *MeetingService) EndMeeting(ctx context.Context, sessionID, userID string) error {
	m, err := s.GetMeeting(ctx, sessionID)
	if err != nil {
		return err
	}
	if !m.Request.IsParticipant(userID) {
		return fmt.Errorf("only participants may end the meeting: %w", domain.ErrUnauthorized)
	}
	return s.ender.End(ctx, sessionID, room.TriggerHTTP, "")
}

func (s *MeetingService) notify(userID, kind string, r *domain.MeetingRequest, sessionID, msg string) {
	notification.NotifyAsync(s.notifier, &notification.Notification{
		ID:        s.newID(),
		UserID:    userID,
		Kind:      kind,
		RequestID: r.ID,
		SessionID: sessionID,
		Message:   msg,
		CreatedAt: s.now(),
	})
}
