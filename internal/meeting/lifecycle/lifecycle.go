// Package lifecycle is the session state machine. It is pure: no I/O, time is passed in.
package lifecycle

import (
	"fmt"
	"time"

	"emeet/backend/internal/meeting/domain"
)

// ComputeStatus returns the status a session should have at now.
//
// A closed session opens while now is inside [start, start+duration]. An open session expires once
// now is strictly after start+duration. Anything else is returned unchanged.
func ComputeStatus(current domain.Status, start time.Time, durationMinutes int, now time.Time) domain.Status {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	switch current {
	case domain.StatusClosed:
		if !now.Before(start) && !now.After(end) {
			return domain.StatusOpen
		}
	case domain.StatusOpen:
		if now.After(end) {
			return domain.StatusExpired
		}
	}
	return current
}

// ForceExpire is the explicit termination transition. Only an open session can be ended.
// Callers treat an already expired session as a no-op (errors.Is(err, domain.ErrInvalidTransition)).
func ForceExpire(current domain.Status) (domain.Status, error) {
	switch current {
	case domain.StatusOpen:
		return domain.StatusExpired, nil
	case domain.StatusExpired:
		return current, fmt.Errorf("session already expired: %w", domain.ErrInvalidTransition)
	default:
		return current, fmt.Errorf("cannot end a %s session: %w", current, domain.ErrInvalidTransition)
	}
}

// Step is one persisted transition.
type Step struct {
	From domain.Status
	To   domain.Status
}

// Reconcile returns the ordered transitions that bring current up to date at now. Empty when
// nothing changes. A closed session whose window passed unseen goes closed → open → expired, so
// no state is skipped.
func Reconcile(current domain.Status, start time.Time, durationMinutes int, now time.Time) []Step {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	if current == domain.StatusClosed && now.After(end) {
		return []Step{
			{From: domain.StatusClosed, To: domain.StatusOpen},
			{From: domain.StatusOpen, To: domain.StatusExpired},
		}
	}
	next := ComputeStatus(current, start, durationMinutes, now)
	if next == current {
		return nil
	}
	return []Step{{From: current, To: next}}
}
