package domain

import "errors"

var (
	// ErrNotFound is returned for an unknown request, session or room.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned on a role or secret mismatch.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidTransition is returned when a state change is not permitted.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInvalidArgument is returned for malformed input (schedule, missing reason).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrPersistence wraps store failures surfaced by services.
	ErrPersistence = errors.New("persistence failure")
)
