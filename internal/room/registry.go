// Package room holds in-process room membership, fan-out and the shared termination path.
package room

import (
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"emeet/backend/internal/telemetry"
)

// DefaultSendBuffer is the per-member outbound queue length when none is configured.
const DefaultSendBuffer = 64

var (
	// ErrRoomEnded is returned by Broadcast and Send when they race an End for the room.
	ErrRoomEnded = errors.New("room: ended")
	// ErrNotMember is returned by Send when the token is not registered in the room.
	ErrNotMember = errors.New("room: not a member")
)

// Participant is an authorized identity in a room.
type Participant struct {
	UserID      string
	DisplayName string
	Role        string // "requester" or "host"
}

// Member is one registered connection. The connection's writer drains Outbound in order and,
// once Done is closed, drains what is left and then writes Final exactly once.
type Member struct {
	Token       string
	Participant Participant

	out   chan []byte
	done  chan struct{}
	final []byte
	once  sync.Once
}

// Outbound returns the member's ordered frame queue.
func (m *Member) Outbound() <-chan []byte { return m.out }

// Done is closed when the room ends.
func (m *Member) Done() <-chan struct{} { return m.done }

// Final returns the frame to write after Done is closed. Nil before that.
func (m *Member) Final() []byte {
	select {
	case <-m.done:
		return m.final
	default:
		return nil
	}
}

func (m *Member) offer(frame []byte) bool {
	select {
	case m.out <- frame:
		return true
	default:
		return false
	}
}

func (m *Member) terminate(final []byte) {
	m.once.Do(func() {
		m.final = final
		close(m.done)
	})
}

type room struct {
	id      string
	mu      sync.Mutex
	members map[string]*Member
	ended   bool
}

// Registry maps room identifiers to their live members. The registry lock only guards the room
// map; membership and fan-out are serialized per room so unrelated rooms never wait on each other.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*room
	bufSize int
}

// NewRegistry returns an empty registry whose members queue up to bufSize frames.
func NewRegistry(bufSize int) *Registry {
	if bufSize <= 0 {
		bufSize = DefaultSendBuffer
	}
	return &Registry{rooms: make(map[string]*room), bufSize: bufSize}
}

// Join registers p in roomID and returns its member handle. The same person joining twice gets
// two independent members. End removes a room from the map, so a Join after End starts a fresh
// room; refusing joins to an ended meeting is up to the caller.
func (r *Registry) Join(roomID string, p Participant) *Member {
	m := &Member{
		Token:       uuid.New().String(),
		Participant: p,
		out:         make(chan []byte, r.bufSize),
		done:        make(chan struct{}),
	}
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{id: roomID, members: make(map[string]*Member)}
		r.rooms[roomID] = rm
	}
	rm.mu.Lock()
	r.mu.Unlock()
	defer rm.mu.Unlock()
	rm.members[m.Token] = m
	telemetry.RoomJoined(roomID)
	return m
}

// Leave removes token from roomID and prunes the room when it becomes empty. Returns false when
// the member was not registered (already left, or the room ended).
func (r *Registry) Leave(roomID, token string) bool {
	rm := r.lookup(roomID)
	if rm == nil {
		return false
	}
	rm.mu.Lock()
	_, ok := rm.members[token]
	if ok {
		delete(rm.members, token)
	}
	empty := len(rm.members) == 0
	rm.mu.Unlock()
	if ok {
		telemetry.RoomLeft(roomID)
	}
	if empty {
		r.prune(roomID, rm)
	}
	return ok
}

// Broadcast queues frame for every member of roomID except exclude and returns how many members
// accepted it. Delivery is best-effort per member: a full queue drops the frame for that member
// only. Returns ErrRoomEnded once the room has been terminated.
func (r *Registry) Broadcast(roomID string, frame []byte, exclude string) (int, error) {
	rm := r.lookup(roomID)
	if rm == nil {
		return 0, nil
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.ended {
		return 0, ErrRoomEnded
	}
	delivered := 0
	for token, m := range rm.members {
		if token == exclude {
			continue
		}
		if m.offer(frame) {
			delivered++
			continue
		}
		log.Printf("room: dropped frame for slow member %s in %s", token, roomID)
		telemetry.FrameDropped(roomID)
	}
	return delivered, nil
}

// Send queues frame for a single member.
func (r *Registry) Send(roomID, token string, frame []byte) error {
	rm := r.lookup(roomID)
	if rm == nil {
		return ErrNotMember
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.ended {
		return ErrRoomEnded
	}
	m, ok := rm.members[token]
	if !ok {
		return ErrNotMember
	}
	if !m.offer(frame) {
		telemetry.FrameDropped(roomID)
	}
	return nil
}

// End terminates roomID: no frame is accepted afterwards, and every member registered at this
// point is handed final exactly once after the frames already queued for it. Returns the members
// that were notified; nil when the room had no members or was already ended.
func (r *Registry) End(roomID string, final []byte) []*Member {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if ok {
		delete(r.rooms, roomID)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.ended {
		return nil
	}
	rm.ended = true
	out := make([]*Member, 0, len(rm.members))
	for token, m := range rm.members {
		m.terminate(final)
		out = append(out, m)
		delete(rm.members, token)
	}
	return out
}

// Size returns the number of members currently registered in roomID.
func (r *Registry) Size(roomID string) int {
	rm := r.lookup(roomID)
	if rm == nil {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.members)
}

// Rooms returns the number of rooms with at least one member.
func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) lookup(roomID string) *room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

// prune drops rm from the map if it is still the registered room for roomID and still empty.
// Join holds the registry lock while it takes the room lock, so nothing can slip in between.
func (r *Registry) prune(roomID string, rm *room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[roomID] != rm {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if len(rm.members) == 0 {
		delete(r.rooms, roomID)
	}
}
