package domain

import (
	"errors"
	"fmt"
	"time"
)

// RequestStatus is the state of a meeting request. Accepted and declined are terminal.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusDeclined RequestStatus = "declined"
)

// Status is the state of a scheduled session. Transitions are closed → open → expired.
type Status string

const (
	StatusClosed  Status = "closed"
	StatusOpen    Status = "open"
	StatusExpired Status = "expired"
)

// Valid reports whether s is one of the known session statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusClosed, StatusOpen, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool { return s == StatusExpired }

const (
	// MinDurationMinutes and MaxDurationMinutes bound the length of a session.
	MinDurationMinutes = 10
	MaxDurationMinutes = 60
	// RoomPrefix is prepended to a session id to form its room identifier.
	RoomPrefix = "meeting_"
)

// MeetingRequest is a requester's ask for a meeting with a host.
type MeetingRequest struct {
	ID            string
	RequesterID   string
	HostID        string
	Justification string
	Status        RequestStatus
	DeclineReason string // set only when declined
	CreatedAt     time.Time
	DecidedAt     *time.Time // nil while pending
}

// IsParticipant reports whether userID is the requester or the host.
func (r *MeetingRequest) IsParticipant(userID string) bool {
	return userID != "" && (userID == r.RequesterID || userID == r.HostID)
}

// Validate validates the request for creation.
func (r *MeetingRequest) Validate() error {
	if r.RequesterID == "" || r.HostID == "" {
		return errors.New("requester and host are required")
	}
	if r.RequesterID == r.HostID {
		return errors.New("requester and host must differ")
	}
	if r.Justification == "" {
		return errors.New("justification is required")
	}
	return nil
}

// Session is a scheduled, password-gated room created from an accepted request.
type Session struct {
	ID              string
	RequestID       string
	StartAt         time.Time
	DurationMinutes int
	Status          Status
	Secret          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Duration returns the scheduled length of the session.
func (s *Session) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// EndAt returns the end of the scheduled window.
func (s *Session) EndAt() time.Time { return s.StartAt.Add(s.Duration()) }

// RoomID returns the room identifier for the session.
func (s *Session) RoomID() string { return RoomID(s.ID) }

// RoomID returns the room identifier for sessionID (e.g. "meeting_42").
func RoomID(sessionID string) string { return RoomPrefix + sessionID }

// ValidateSchedule checks the start time and duration at creation time.
func ValidateSchedule(startAt time.Time, durationMinutes int, now time.Time) error {
	if !startAt.After(now) {
		return errors.New("start time must be in the future")
	}
	if durationMinutes < MinDurationMinutes || durationMinutes > MaxDurationMinutes {
		return fmt.Errorf("duration must be between %d and %d minutes", MinDurationMinutes, MaxDurationMinutes)
	}
	return nil
}
