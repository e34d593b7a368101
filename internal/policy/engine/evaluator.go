package engine

import "context"

// Participant roles.
const (
	RoleRequester = "requester"
	RoleHost      = "host"
)

// RoomAccess is the input for a room access decision.
type RoomAccess struct {
	UserID        string
	RequesterID   string
	HostID        string
	RequestStatus string
	SessionStatus string
}

// Decision is the outcome of a room access evaluation. Role is set when Allowed.
type Decision struct {
	Allowed bool
	Role    string
	Reason  string
}

// Authorizer decides whether a user may enter a meeting room.
type Authorizer interface {
	AuthorizeRoom(ctx context.Context, in RoomAccess) (Decision, error)
}
