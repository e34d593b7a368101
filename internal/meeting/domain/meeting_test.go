package domain

import (
	"testing"
	"time"
)

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusClosed, StatusOpen, StatusExpired} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if Status("paused").Valid() {
		t.Error("unknown status should be invalid")
	}
	if !StatusExpired.Terminal() || StatusOpen.Terminal() {
		t.Error("only expired is terminal")
	}
}

func TestRoomID(t *testing.T) {
	if got := RoomID("42"); got != "meeting_42" {
		t.Errorf("RoomID = %q, want meeting_42", got)
	}
	s := &Session{ID: "abc"}
	if s.RoomID() != "meeting_abc" {
		t.Errorf("Session.RoomID = %q", s.RoomID())
	}
}

func TestSession_EndAt(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s := &Session{StartAt: start, DurationMinutes: 30}
	if want := start.Add(30 * time.Minute); !s.EndAt().Equal(want) {
		t.Errorf("EndAt = %v, want %v", s.EndAt(), want)
	}
}

func TestValidateSchedule(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	testCases := []struct {
		name     string
		start    time.Time
		duration int
		wantErr  bool
	}{
		{"future", now.Add(time.Hour), 30, false},
		{"now", now, 30, true},
		{"past", now.Add(-time.Minute), 30, true},
		{"too short", now.Add(time.Hour), 9, true},
		{"too long", now.Add(time.Hour), 61, true},
		{"min", now.Add(time.Hour), MinDurationMinutes, false},
		{"max", now.Add(time.Hour), MaxDurationMinutes, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSchedule(tc.start, tc.duration, now)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateSchedule err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestMeetingRequest_Validate(t *testing.T) {
	r := &MeetingRequest{RequesterID: "u1", HostID: "u2", Justification: "help"}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !r.IsParticipant("u1") || !r.IsParticipant("u2") || r.IsParticipant("u3") || r.IsParticipant("") {
		t.Error("IsParticipant mismatch")
	}
	same := &MeetingRequest{RequesterID: "u1", HostID: "u1", Justification: "x"}
	if same.Validate() == nil {
		t.Error("requester == host should fail")
	}
	if (&MeetingRequest{RequesterID: "u1", HostID: "u2"}).Validate() == nil {
		t.Error("missing justification should fail")
	}
}
