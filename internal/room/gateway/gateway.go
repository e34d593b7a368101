// Package gateway is the websocket endpoint for meeting rooms. A connection is authenticated with
// a participant token, authorized against the meeting request, unlocked with the room secret and
// then relays chat through the room registry until it disconnects or the meeting ends.
package gateway

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"emeet/backend/internal/audit"
	"emeet/backend/internal/meeting/domain"
	"emeet/backend/internal/policy/engine"
	"emeet/backend/internal/room"
	"emeet/backend/internal/security"
	"emeet/backend/internal/telemetry"
	userdomain "emeet/backend/internal/user/domain"
)

const (
	// DefaultLivenessInterval is how often a live connection re-checks the schedule and pings the peer.
	DefaultLivenessInterval = 15 * time.Second
	// DefaultMaxAuthAttempts bounds wrong passwords per connection.
	DefaultMaxAuthAttempts = 5
	// DefaultAuthTimeout bounds the password phase of a connection.
	DefaultAuthTimeout = time.Minute

	readLimit   = 8 << 10
	pingTimeout = 10 * time.Second
	// RoutePattern is the mux pattern the handler expects; {room} is a room id such as meeting_42.
	RoutePattern = "GET /ws/rooms/{room}"
)

// Sessions loads a session with its status brought up to date (sweep.MeetingJob).
type Sessions interface {
	Refresh(ctx context.Context, sessionID string, now time.Time) (*domain.Session, error)
}

// Requests loads the meeting request behind a session.
type Requests interface {
	GetRequest(ctx context.Context, id string) (*domain.MeetingRequest, error)
}

// Tokens validates participant access tokens.
type Tokens interface {
	ValidateAccess(token string) (security.Identity, error)
}

// Users supplies display names.
type Users interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// Terminator is the shared end path (room.Terminator).
type Terminator interface {
	End(ctx context.Context, sessionID, trigger, initiator string) error
	IsPending(sessionID string) bool
}

// Config tunes connection behavior.
type Config struct {
	// LivenessInterval is the period of the per-connection expiry check and ping.
	LivenessInterval time.Duration
	// MaxAuthAttempts closes the connection after this many wrong passwords; 0 means unlimited.
	MaxAuthAttempts int
	// AuthTimeout closes a connection that has not sent the right password in time. The meeting
	// end caps it as well.
	AuthTimeout time.Duration
	// AllowedOrigins are host patterns accepted for cross-origin upgrades.
	AllowedOrigins []string
	// InsecureSkipVerify disables the origin check (development only).
	InsecureSkipVerify bool
}

// Handler serves room connections.
type Handler struct {
	sessions   Sessions
	requests   Requests
	tokens     Tokens
	users      Users
	authorizer engine.Authorizer
	registry   *room.Registry
	terminator Terminator
	audit      audit.AuditLogger
	events     telemetry.EventEmitter
	cfg        Config
	now        func() time.Time
}

// Deps groups the collaborators of a Handler. Users, Audit and Events are optional.
type Deps struct {
	Sessions   Sessions
	Requests   Requests
	Tokens     Tokens
	Users      Users
	Authorizer engine.Authorizer
	Registry   *room.Registry
	Terminator Terminator
	Audit      audit.AuditLogger
	Events     telemetry.EventEmitter
}

// NewHandler returns a room gateway.
func NewHandler(d Deps, cfg Config) *Handler {
	if cfg.LivenessInterval <= 0 {
		cfg.LivenessInterval = DefaultLivenessInterval
	}
	if cfg.MaxAuthAttempts < 0 {
		cfg.MaxAuthAttempts = DefaultMaxAuthAttempts
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = DefaultAuthTimeout
	}
	return &Handler{
		sessions:   d.Sessions,
		requests:   d.Requests,
		tokens:     d.Tokens,
		users:      d.Users,
		authorizer: d.Authorizer,
		registry:   d.Registry,
		terminator: d.Terminator,
		audit:      d.Audit,
		events:     d.Events,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Register mounts the handler on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle(RoutePattern, h)
}

// rejection ends a connection before it is registered.
type rejection struct {
	code    string
	message string
	status  websocket.StatusCode
}

func (e *rejection) Error() string { return e.code + ": " + e.message }

func reject(code, message string) *rejection {
	return &rejection{code: code, message: message, status: websocket.StatusPolicyViolation}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room")
	sessionID, ok := strings.CutPrefix(roomID, domain.RoomPrefix)
	if !ok || sessionID == "" {
		http.Error(w, "unknown room", http.StatusNotFound)
		return
	}
	tok := r.URL.Query().Get("access_token")
	if tok == "" {
		tok, _ = security.BearerToken(r.Header.Get("Authorization"))
	}
	if tok == "" {
		http.Error(w, "missing access token", http.StatusUnauthorized)
		return
	}
	ident, err := h.tokens.ValidateAccess(tok)
	if err != nil {
		http.Error(w, "invalid access token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.cfg.InsecureSkipVerify,
		OriginPatterns:     h.cfg.AllowedOrigins,
	})
	if err != nil {
		log.Printf("gateway: accept %s: %v", roomID, err)
		return
	}
	conn.SetReadLimit(readLimit)
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c, err := h.admit(ctx, conn, sessionID, ident)
	if err != nil {
		h.closeWith(ctx, conn, roomID, err)
		return
	}
	c.run(ctx)
}

// admit runs Connecting → Authenticated: session lookup, status check, role check. The password
// phase happens on the returned client.
func (h *Handler) admit(ctx context.Context, conn *websocket.Conn, sessionID string, ident security.Identity) (*client, error) {
	s, err := h.sessions.Refresh(ctx, sessionID, h.now())
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, reject(room.CodeNotFound, "This meeting does not exist.")
	}
	if err := h.checkJoinable(s); err != nil {
		return nil, err
	}
	req, err := h.requests.GetRequest(ctx, s.RequestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, reject(room.CodeNotFound, "This meeting does not exist.")
	}
	d, err := h.authorizer.AuthorizeRoom(ctx, engine.RoomAccess{
		UserID:        ident.UserID,
		RequesterID:   req.RequesterID,
		HostID:        req.HostID,
		RequestStatus: string(req.Status),
		SessionStatus: string(s.Status),
	})
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return nil, reject(room.CodeForbidden, "You are not a participant of this meeting.")
	}
	return &client{
		h:       h,
		conn:    conn,
		session: s,
		roomID:  s.RoomID(),
		participant: room.Participant{
			UserID:      ident.UserID,
			DisplayName: h.displayName(ctx, ident),
			Role:        d.Role,
		},
	}, nil
}

func (h *Handler) checkJoinable(s *domain.Session) error {
	if s.Status == domain.StatusExpired || h.terminator.IsPending(s.ID) {
		return reject(room.CodeExpired, "This meeting has ended.")
	}
	if s.Status == domain.StatusClosed {
		return reject(room.CodeNotOpen, "This meeting has not started yet.")
	}
	return nil
}

func (h *Handler) displayName(ctx context.Context, ident security.Identity) string {
	if h.users != nil {
		u, err := h.users.GetByID(ctx, ident.UserID)
		if err != nil {
			log.Printf("gateway: display name for %s: %v", ident.UserID, err)
		} else if u != nil && u.DisplayName != "" {
			return u.DisplayName
		}
	}
	if ident.DisplayName != "" {
		return ident.DisplayName
	}
	return ident.UserID
}

// closeWith tells the client why it is being turned away and closes the connection.
func (h *Handler) closeWith(ctx context.Context, conn *websocket.Conn, roomID string, err error) {
	var rej *rejection
	if !errors.As(err, &rej) {
		log.Printf("gateway: %s: %v", roomID, err)
		rej = &rejection{code: room.CodeInternal, message: "The meeting is unavailable, try again later.", status: websocket.StatusInternalError}
	}
	wctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, room.ErrorFrame(rej.code, rej.message))
	_ = conn.Close(rej.status, rej.code)
}
