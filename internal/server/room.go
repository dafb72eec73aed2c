package server

import (
	"errors"
	"sync"
	"time"

	"github.com/crypta-chat/relay/internal/types"
)

var (
	ErrRoomExists   = errors.New("room already exists")
	ErrRoomNotFound = errors.New("room not found")
	ErrNotMember    = errors.New("not a room member")
)

// Room holds a named membership set and an append-only message log. Rooms
// live for the process lifetime; there is no garbage collection of empty
// rooms.
type Room struct {
	mu        sync.RWMutex
	id        string
	name      string
	createdAt time.Time
	members   map[string]struct{}
	messages  []*types.Message
}

func newRoom(id, name string) *Room {
	return &Room{
		id:        id,
		name:      name,
		createdAt: Now(),
		members:   make(map[string]struct{}),
	}
}

// addMember adds identity to the membership set. Idempotent; reports
// whether the identity was newly added.
func (r *Room) addMember(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[identity]; ok {
		return false
	}

	r.members[identity] = struct{}{}
	return true
}

func (r *Room) removeMember(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.members, identity)
}

func (r *Room) hasMember(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.members[identity]
	return ok
}

// appendMessage appends to the log and returns the member set as of the
// append, atomically under the room lock. A member joining concurrently may
// or may not receive the message, but the snapshot is never torn.
func (r *Room) appendMessage(msg *types.Message) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, msg)
	return r.memberListLocked()
}

// history returns the log snapshot in insertion order, oldest first.
func (r *Room) history() []*types.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msgs := make([]*types.Message, len(r.messages))
	copy(msgs, r.messages)
	return msgs
}

func (r *Room) memberList() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.memberListLocked()
}

func (r *Room) memberListLocked() []string {
	members := make([]string, 0, len(r.members))
	for id := range r.members {
		members = append(members, id)
	}
	return members
}

// Info returns a snapshot of the room's metadata and membership.
func (r *Room) Info() types.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return types.RoomInfo{
		Id:        r.id,
		Name:      r.name,
		Members:   r.memberListLocked(),
		CreatedAt: r.createdAt,
	}
}

// RoomRegistry maps room identifier to room state. Membership mutation and
// log append are linearizable per room via the room's own lock.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[string]*Room),
	}
}

// Create registers a new room with the creator as its first member. A
// duplicate key is rejected, never overwritten.
func (rr *RoomRegistry) Create(id, name, creator string) (*Room, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if _, ok := rr.rooms[id]; ok {
		return nil, ErrRoomExists
	}

	room := newRoom(id, name)
	room.members[creator] = struct{}{}
	rr.rooms[id] = room
	return room, nil
}

func (rr *RoomRegistry) Get(id string) (*Room, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	room, ok := rr.rooms[id]
	return room, ok
}

// Join adds identity to the room's membership. Idempotent for an existing
// member.
func (rr *RoomRegistry) Join(id, identity string) (*Room, error) {
	room, ok := rr.Get(id)
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.addMember(identity)
	return room, nil
}

// AppendMessage appends msg to the room's log and returns the member set to
// fan out to.
func (rr *RoomRegistry) AppendMessage(id string, msg *types.Message) ([]string, error) {
	room, ok := rr.Get(id)
	if !ok {
		return nil, ErrRoomNotFound
	}

	return room.appendMessage(msg), nil
}

// Messages returns the room's full log, oldest first. Only members may read
// a room's history.
func (rr *RoomRegistry) Messages(id, requester string) ([]*types.Message, error) {
	room, ok := rr.Get(id)
	if !ok {
		return nil, ErrRoomNotFound
	}

	if !room.hasMember(requester) {
		return nil, ErrNotMember
	}

	return room.history(), nil
}

// RemoveMemberEverywhere removes identity from every room's membership set.
// Used only at connection teardown.
func (rr *RoomRegistry) RemoveMemberEverywhere(identity string) {
	rr.mu.RLock()
	rooms := make([]*Room, 0, len(rr.rooms))
	for _, room := range rr.rooms {
		rooms = append(rooms, room)
	}
	rr.mu.RUnlock()

	for _, room := range rooms {
		room.removeMember(identity)
	}
}

func (rr *RoomRegistry) Len() int {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	return len(rr.rooms)
}
