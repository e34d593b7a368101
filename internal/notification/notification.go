// Package notification delivers meeting workflow notices (new request, accepted, declined) to
// the people involved. Delivery is best-effort and never blocks the workflow.
package notification

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// Notification kinds.
const (
	KindRequested = "meeting.requested"
	KindAccepted  = "meeting.accepted"
	KindDeclined  = "meeting.declined"
	KindEnded     = "meeting.ended"
)

const sendTimeout = 5 * time.Second

// Notification is one notice for one user. SessionID is set once a session exists; the room
// secret is never included, participants fetch it from the meeting endpoint.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	RequestID string    `json:"request_id"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
	// Close releases resources. Safe to call more than once.
	Close() error
}

// Decode parses a notification published by KafkaNotifier.
func Decode(b []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(b, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// NotifyAsync delivers n in a goroutine with a bounded timeout. Errors are logged.
func NotifyAsync(notifier Notifier, n *Notification) {
	if notifier == nil || n == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := notifier.Notify(ctx, n); err != nil {
			log.Printf("notification: %s for user %s failed: %v", n.Kind, n.UserID, err)
		}
	}()
}

// LogNotifier writes notifications to the process log. Used when no broker is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n *Notification) error {
	log.Printf("notification: %s to user %s (request %s, session %s): %s", n.Kind, n.UserID, n.RequestID, n.SessionID, n.Message)
	return nil
}

func (LogNotifier) Close() error { return nil }
