package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"emeet/backend/internal/meeting/domain"
	"emeet/backend/internal/meeting/repository"
	"emeet/backend/internal/policy/engine"
	"emeet/backend/internal/room"
	"emeet/backend/internal/security"
	"emeet/backend/internal/sweep"
	userdomain "emeet/backend/internal/user/domain"
	userrepo "emeet/backend/internal/user/repository"
)

const (
	sessionID = "s1"
	roomPath  = "/ws/rooms/meeting_s1"
	password  = "Ab3dEf6hJk9m"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type testEnv struct {
	repo    *repository.MemoryRepository
	reg     *room.Registry
	term    *room.Terminator
	tokens  *security.TokenProvider
	clock   *clock
	srv     *httptest.Server
	session *domain.Session
}

// newTestEnv serves a room for an accepted request between alice (requester) and bob (host). The
// session starts a minute before the clock and lasts 30 minutes.
func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	clk := &clock{t: now}

	repo := repository.NewMemoryRepository()
	decided := now.Add(-time.Hour)
	if err := repo.CreateRequest(ctx, &domain.MeetingRequest{
		ID: "r1", RequesterID: "alice", HostID: "bob", Justification: "review",
		Status: domain.RequestStatusAccepted, CreatedAt: now.Add(-2 * time.Hour), DecidedAt: &decided,
	}); err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if err := repo.CreateRequest(ctx, &domain.MeetingRequest{
		ID: "r2", RequesterID: "alice", HostID: "carol", Justification: "later",
		Status: domain.RequestStatusAccepted, CreatedAt: now.Add(-2 * time.Hour), DecidedAt: &decided,
	}); err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	s := &domain.Session{
		ID: sessionID, RequestID: "r1", StartAt: now.Add(-time.Minute), DurationMinutes: 30,
		Status: domain.StatusClosed, Secret: password, CreatedAt: decided,
	}
	repo.PutSession(s)
	repo.PutSession(&domain.Session{
		ID: "s2", RequestID: "r2", StartAt: now.Add(time.Hour), DurationMinutes: 30,
		Status: domain.StatusClosed, Secret: password, CreatedAt: decided,
	})

	users := userrepo.NewMemoryRepository()
	for _, u := range []*userdomain.User{
		{ID: "alice", Email: "alice@example.com", DisplayName: "Alice"},
		{ID: "bob", Email: "bob@example.com", DisplayName: "Bob"},
		{ID: "mallory", Email: "mallory@example.com", DisplayName: "Mallory"},
	} {
		if err := users.Upsert(ctx, u); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	authz, err := engine.NewOPAEvaluator(ctx, nil)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}

	reg := room.NewRegistry(16)
	term := room.NewTerminator(repo, reg, nil, nil)
	job := sweep.NewMeetingJob(repo, func(ctx context.Context, id string) {
		_ = term.End(ctx, id, room.TriggerSweep, "")
	})

	h := NewHandler(Deps{
		Sessions:   job,
		Requests:   repo,
		Tokens:     tokens,
		Users:      users,
		Authorizer: authz,
		Registry:   reg,
		Terminator: term,
	}, cfg)
	h.now = clk.Now

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testEnv{repo: repo, reg: reg, term: term, tokens: tokens, clock: clk, srv: srv, session: s}
}

func (e *testEnv) url(path, userID string) string {
	u := "ws" + strings.TrimPrefix(e.srv.URL, "http") + path
	if userID == "" {
		return u
	}
	return u + "?access_token=" + e.token(userID)
}

func (e *testEnv) token(userID string) string {
	tok, _, err := e.tokens.IssueAccess(userID, "")
	if err != nil {
		panic(err)
	}
	return tok
}

func (e *testEnv) dial(t *testing.T, path, userID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, e.url(path, userID), nil)
	if err != nil {
		t.Fatalf("Dial(%s as %s): %v", path, userID, err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

// enter dials the room as userID and unlocks it.
func (e *testEnv) enter(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	conn := e.dial(t, roomPath, userID)
	send(t, conn, map[string]string{"type": "password", "password": password})
	if f := readFrame(t, conn); f.Type != room.TypeAuthOK {
		t.Fatalf("%s: got %+v, want authOk", userID, f)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) room.Outbound {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var f room.Outbound
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return f
}

// closeStatus reads until the server closes the connection.
func closeStatus(t *testing.T, conn *websocket.Conn) websocket.StatusCode {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return websocket.CloseStatus(err)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGateway_ChatRelayedToOthersOnly(t *testing.T) {
	e := newTestEnv(t, Config{})
	alice := e.enter(t, "alice")
	bob := e.enter(t, "bob")
	waitFor(t, func() bool { return e.reg.Size("meeting_s1") == 2 })

	send(t, alice, map[string]string{"type": "chat", "displayName": "Someone Else", "message": "hello"})
	if f := readFrame(t, bob); f.Type != room.TypeChat || f.Name != "Alice" || f.Message != "hello" {
		t.Fatalf("bob got %+v", f)
	}

	send(t, bob, map[string]string{"type": "chat", "message": "hi"})
	// alice's next frame is bob's line, so her own was not echoed back
	if f := readFrame(t, alice); f.Type != room.TypeChat || f.Name != "Bob" || f.Message != "hi" {
		t.Fatalf("alice got %+v", f)
	}
}

func TestGateway_WrongPasswordReprompts(t *testing.T) {
	e := newTestEnv(t, Config{})
	conn := e.dial(t, roomPath, "alice")

	for i := 0; i < 2; i++ {
		send(t, conn, map[string]string{"type": "password", "password": "nope"})
		f := readFrame(t, conn)
		if f.Type != room.TypeAuthFailed || f.Message == "" {
			t.Fatalf("attempt %d: got %+v, want authFailed", i+1, f)
		}
	}
	if e.reg.Size("meeting_s1") != 0 {
		t.Fatal("unauthenticated connection joined the room")
	}
	send(t, conn, map[string]string{"password": password})
	if f := readFrame(t, conn); f.Type != room.TypeAuthOK {
		t.Fatalf("got %+v, want authOk", f)
	}
	if got := e.reg.Size("meeting_s1"); got != 1 {
		t.Errorf("room size after correct password = %d, want 1", got)
	}
}

func TestGateway_PasswordPhaseIsBounded(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		beforeDial func(e *testEnv)
	}{
		{"auth timeout", Config{AuthTimeout: 50 * time.Millisecond}, func(e *testEnv) {}},
		{"meeting ends first", Config{AuthTimeout: time.Hour}, func(e *testEnv) {
			e.clock.Set(e.session.EndAt().Add(-100 * time.Millisecond))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, tt.cfg)
			tt.beforeDial(e)
			conn := e.dial(t, roomPath, "alice")

			started := time.Now()
			closeStatus(t, conn)
			if waited := time.Since(started); waited > 3*time.Second {
				t.Fatalf("silent connection stayed open for %v", waited)
			}
			if e.reg.Size("meeting_s1") != 0 {
				t.Error("unauthenticated connection joined the room")
			}
		})
	}
}

func TestGateway_ChatBeforeAuthRefused(t *testing.T) {
	e := newTestEnv(t, Config{})
	conn := e.dial(t, roomPath, "alice")

	send(t, conn, map[string]string{"type": "chat", "message": "let me in"})
	if f := readFrame(t, conn); f.Type != room.TypeError || f.Code != room.CodeAuthRequired {
		t.Fatalf("got %+v, want auth_required", f)
	}
	send(t, conn, map[string]string{"type": "password", "password": password})
	if f := readFrame(t, conn); f.Type != room.TypeAuthOK {
		t.Fatalf("got %+v, want authOk", f)
	}
}

func TestGateway_MaxAuthAttemptsCloses(t *testing.T) {
	e := newTestEnv(t, Config{MaxAuthAttempts: 2})
	conn := e.dial(t, roomPath, "alice")

	send(t, conn, map[string]string{"type": "password", "password": "nope"})
	if f := readFrame(t, conn); f.Type != room.TypeAuthFailed {
		t.Fatalf("got %+v, want authFailed", f)
	}
	send(t, conn, map[string]string{"type": "password", "password": "still nope"})
	if f := readFrame(t, conn); f.Type != room.TypeError || f.Code != room.CodeTooManyTries {
		t.Fatalf("got %+v, want too_many_attempts", f)
	}
	if got := closeStatus(t, conn); got != websocket.StatusPolicyViolation {
		t.Errorf("close status = %v, want policy violation", got)
	}
}

func TestGateway_EndNotifiesBothAndBlocksRejoin(t *testing.T) {
	e := newTestEnv(t, Config{})
	alice := e.enter(t, "alice")
	bob := e.enter(t, "bob")
	waitFor(t, func() bool { return e.reg.Size("meeting_s1") == 2 })

	send(t, alice, map[string]string{"type": "end"})
	for name, conn := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
		f := readFrame(t, conn)
		if f.Type != room.TypeEnded || !f.Redirect {
			t.Errorf("%s got %+v, want ended with redirect", name, f)
		}
		if got := closeStatus(t, conn); got != websocket.StatusNormalClosure {
			t.Errorf("%s close status = %v, want normal closure", name, got)
		}
	}

	s, err := e.repo.GetSession(context.Background(), sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != domain.StatusExpired {
		t.Errorf("status = %s, want expired", s.Status)
	}

	again := e.dial(t, roomPath, "bob")
	if f := readFrame(t, again); f.Code != room.CodeExpired {
		t.Fatalf("rejoin got %+v, want expired", f)
	}
	if e.reg.Size("meeting_s1") != 0 {
		t.Error("room repopulated after end")
	}
}

func TestGateway_UserLeftOnDisconnect(t *testing.T) {
	e := newTestEnv(t, Config{})
	alice := e.enter(t, "alice")
	bob := e.enter(t, "bob")
	waitFor(t, func() bool { return e.reg.Size("meeting_s1") == 2 })

	bob.Close(websocket.StatusNormalClosure, "bye")
	if f := readFrame(t, alice); f.Type != room.TypeUserLeft || f.Name != "Bob" {
		t.Fatalf("alice got %+v, want userLeft Bob", f)
	}
	waitFor(t, func() bool { return e.reg.Size("meeting_s1") == 1 })
}

func TestGateway_ExpiresWithTime(t *testing.T) {
	e := newTestEnv(t, Config{LivenessInterval: 10 * time.Millisecond})
	alice := e.enter(t, "alice")

	e.clock.Set(e.session.EndAt().Add(time.Second))
	if f := readFrame(t, alice); f.Type != room.TypeEnded {
		t.Fatalf("got %+v, want ended", f)
	}
	waitFor(t, func() bool {
		s, _ := e.repo.GetSession(context.Background(), sessionID)
		return s.Status == domain.StatusExpired
	})
}

func TestGateway_ExpiryNoticedOnInboundMessage(t *testing.T) {
	e := newTestEnv(t, Config{LivenessInterval: time.Hour})
	alice := e.enter(t, "alice")
	bob := e.enter(t, "bob")
	waitFor(t, func() bool { return e.reg.Size("meeting_s1") == 2 })

	e.clock.Set(e.session.EndAt().Add(time.Second))
	send(t, alice, map[string]string{"type": "chat", "message": "still here?"})
	for name, conn := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
		if f := readFrame(t, conn); f.Type != room.TypeEnded {
			t.Errorf("%s got %+v, want ended", name, f)
		}
	}
	s, err := e.repo.GetSession(context.Background(), sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != domain.StatusExpired {
		t.Errorf("status = %s, want expired", s.Status)
	}
}

func TestGateway_Rejections(t *testing.T) {
	tests := []struct {
		name string
		path string
		user string
		code string
	}{
		{"unknown session", "/ws/rooms/meeting_nope", "alice", room.CodeNotFound},
		{"outsider", roomPath, "mallory", room.CodeForbidden},
		{"not started", "/ws/rooms/meeting_s2", "alice", room.CodeNotOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, Config{})
			conn := e.dial(t, tt.path, tt.user)
			f := readFrame(t, conn)
			if f.Type != room.TypeError || f.Code != tt.code {
				t.Fatalf("got %+v, want error %s", f, tt.code)
			}
			if got := closeStatus(t, conn); got != websocket.StatusPolicyViolation {
				t.Errorf("close status = %v, want policy violation", got)
			}
		})
	}
}

func TestGateway_RequiresToken(t *testing.T) {
	e := newTestEnv(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, u := range []string{e.url(roomPath, ""), e.url(roomPath, "") + "?access_token=garbage"} {
		_, resp, err := websocket.Dial(ctx, u, nil)
		if err == nil {
			t.Fatalf("Dial(%s) succeeded without a valid token", u)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Dial(%s) response = %v, want 401", u, resp)
		}
	}
}

func TestGateway_UnknownRoomPath(t *testing.T) {
	e := newTestEnv(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, e.url("/ws/rooms/lobby", "alice"), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Dial = %v, %v; want 404", resp, err)
	}
}
