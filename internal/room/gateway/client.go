package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/coder/websocket"

	auditdomain "emeet/backend/internal/audit/domain"
	"emeet/backend/internal/meeting/domain"
	"emeet/backend/internal/meeting/lifecycle"
	"emeet/backend/internal/meeting/secret"
	"emeet/backend/internal/room"
	"emeet/backend/internal/telemetry"
)

// client is one admitted connection.
type client struct {
	h           *Handler
	conn        *websocket.Conn
	session     *domain.Session
	roomID      string
	participant room.Participant
	member      *room.Member
}

// run drives Authenticated → Active → Closed.
func (c *client) run(ctx context.Context) {
	if err := c.authenticate(ctx); err != nil {
		var rej *rejection
		if errors.As(err, &rej) {
			c.h.closeWith(ctx, c.conn, c.roomID, err)
		}
		return
	}
	if err := c.join(ctx); err != nil {
		c.h.closeWith(ctx, c.conn, c.roomID, err)
		return
	}

	bg, stop := context.WithCancel(ctx)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(bg)
	}()
	go c.liveness(bg)

	_ = c.h.registry.Send(c.roomID, c.member.Token, room.AuthOKFrame())
	c.readLoop(ctx)
	c.leave(ctx)
	stop()
	<-writerDone
}

// authenticate reads frames until a correct password arrives. Wrong passwords re-prompt and keep
// the connection open; anything else is refused until then. The phase is bounded by AuthTimeout
// and never outlives the meeting window.
func (c *client) authenticate(ctx context.Context) error {
	budget := c.h.cfg.AuthTimeout
	if left := c.session.EndAt().Sub(c.h.now()); left < budget {
		budget = left
	}
	if budget <= 0 {
		return reject(room.CodeExpired, "This meeting has ended.")
	}
	actx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	attempts := 0
	for {
		_, data, err := c.conn.Read(actx)
		if err != nil {
			if ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
				return reject(room.CodeAuthTimeout, "No password received in time.")
			}
			return err
		}
		msg, err := room.DecodeInbound(data)
		if errors.Is(err, room.ErrMalformed) {
			c.writeDirect(ctx, room.ErrorFrame(room.CodeMalformed, "Send your room password first."))
			continue
		}
		pw, ok := msg.(room.Password)
		if err != nil || !ok {
			c.writeDirect(ctx, room.ErrorFrame(room.CodeAuthRequired, "Send your room password first."))
			continue
		}
		if secret.Equal(pw.Password, c.session.Secret) {
			return nil
		}
		attempts++
		c.auditEvent(ctx, auditdomain.ActionAuthFailed, fmt.Sprintf(`{"attempt":%d}`, attempts))
		if limit := c.h.cfg.MaxAuthAttempts; limit > 0 && attempts >= limit {
			return reject(room.CodeTooManyTries, "Too many incorrect passwords.")
		}
		c.writeDirect(ctx, room.AuthFailedFrame("Incorrect password. Try again."))
	}
}

// join registers the connection. The status is checked again after registering: an end that ran
// between the first check and Join has already persisted expired (or marked itself pending), so
// a late joiner is caught here instead of waiting in a room nobody will close.
func (c *client) join(ctx context.Context) error {
	m := c.h.registry.Join(c.roomID, c.participant)
	s, err := c.h.sessions.Refresh(ctx, c.session.ID, c.h.now())
	if err == nil && s == nil {
		err = reject(room.CodeNotFound, "This meeting does not exist.")
	}
	if err == nil {
		err = c.h.checkJoinable(s)
	}
	if err != nil {
		c.h.registry.Leave(c.roomID, m.Token)
		return err
	}
	c.member = m
	c.auditEvent(ctx, auditdomain.ActionJoin, fmt.Sprintf(`{"role":%q}`, c.participant.Role))
	telemetry.EmitAsync(c.h.events, &telemetry.Event{SessionID: c.session.ID, UserID: c.participant.UserID, Type: "room.joined", Source: c.participant.Role})
	return nil
}

func (c *client) readLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if c.expiredNow() {
			c.end(ctx, room.TriggerLiveness, "")
			continue
		}
		msg, err := room.DecodeInbound(data)
		if err != nil {
			code := room.CodeMalformed
			if errors.Is(err, room.ErrUnknownType) {
				code = room.CodeUnknownType
			}
			_ = c.h.registry.Send(c.roomID, c.member.Token, room.ErrorFrame(code, err.Error()))
			continue
		}
		switch m := msg.(type) {
		case room.Chat:
			// the display name comes from the authorized participant, not the frame
			_, _ = c.h.registry.Broadcast(c.roomID, room.ChatFrame(c.participant.DisplayName, m.Message), c.member.Token)
		case room.End:
			c.end(ctx, room.TriggerParticipant, c.member.Token)
		case room.Password:
			// already authenticated
		}
	}
}

func (c *client) end(ctx context.Context, trigger, initiator string) {
	err := c.h.terminator.End(ctx, c.session.ID, trigger, initiator)
	switch {
	case err == nil, errors.Is(err, domain.ErrPersistence):
		// the terminator already told the initiator about a persistence failure
	default:
		log.Printf("gateway: end %s: %v", c.roomID, err)
		_ = c.h.registry.Send(c.roomID, c.member.Token, room.ErrorFrame(room.CodeInternal, "The meeting could not be ended."))
	}
}

// writeLoop writes queued frames in order. When the room ends it flushes what is left, writes
// the final frame once and closes the connection.
func (c *client) writeLoop(ctx context.Context) {
	for {
		select {
		case f := <-c.member.Outbound():
			if err := c.conn.Write(ctx, websocket.MessageText, f); err != nil {
				return
			}
		case <-c.member.Done():
			for {
				select {
				case f := <-c.member.Outbound():
					if err := c.conn.Write(ctx, websocket.MessageText, f); err != nil {
						return
					}
					continue
				default:
				}
				break
			}
			if final := c.member.Final(); final != nil {
				_ = c.conn.Write(ctx, websocket.MessageText, final)
			}
			_ = c.conn.Close(websocket.StatusNormalClosure, "meeting ended")
			return
		case <-ctx.Done():
			return
		}
	}
}

// liveness ends the room once its window has passed and drops peers that stop answering pings.
func (c *client) liveness(ctx context.Context) {
	t := time.NewTicker(c.h.cfg.LivenessInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.member.Done():
			return
		case <-t.C:
			if c.expiredNow() {
				c.end(ctx, room.TriggerLiveness, "")
				return
			}
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil && ctx.Err() == nil {
				log.Printf("gateway: %s: peer %s unresponsive: %v", c.roomID, c.member.Token, err)
				_ = c.conn.Close(websocket.StatusGoingAway, "unresponsive")
				return
			}
		}
	}
}

// expiredNow applies the schedule locally so no store round trip is needed per message.
func (c *client) expiredNow() bool {
	return lifecycle.ComputeStatus(domain.StatusOpen, c.session.StartAt, c.session.DurationMinutes, c.h.now()) == domain.StatusExpired
}

// leave unregisters the connection. Members removed by a room end are not announced.
func (c *client) leave(ctx context.Context) {
	if !c.h.registry.Leave(c.roomID, c.member.Token) {
		return
	}
	_, _ = c.h.registry.Broadcast(c.roomID, room.UserLeftFrame(c.participant.DisplayName), "")
	c.auditEvent(context.WithoutCancel(ctx), auditdomain.ActionLeave, "")
	telemetry.EmitAsync(c.h.events, &telemetry.Event{SessionID: c.session.ID, UserID: c.participant.UserID, Type: "room.left"})
}

func (c *client) writeDirect(ctx context.Context, frame []byte) {
	if err := c.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		log.Printf("gateway: %s: write: %v", c.roomID, err)
	}
}

func (c *client) auditEvent(ctx context.Context, action, metadata string) {
	if c.h.audit != nil {
		c.h.audit.LogEvent(ctx, c.session.ID, c.participant.UserID, action, metadata)
	}
}
