// Package telemetry carries best-effort meeting events and room metrics to OpenTelemetry.
package telemetry

import (
	"context"
	"time"
)

// Event is a single meeting occurrence worth exporting (room joined, meeting ended, sweep transition).
type Event struct {
	SessionID string
	UserID    string
	Type      string
	Source    string
	Metadata  []byte // JSON
	At        time.Time
}

// EventEmitter emits events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
