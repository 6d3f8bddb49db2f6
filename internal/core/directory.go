package core

import (
	"sort"
	"sync"

	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/rs/zerolog/log"
)

// maxIDAttempts bounds the retries on a generated id collision.
const maxIDAttempts = 8

// Directory maps room ids to rooms and is the sole mutator of membership.
//
// The map lock is only held for lookups, inserts and deletes. Membership
// changes run under the room's own lock; when both are needed the room lock
// is taken first.
type Directory struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*Room

	maxMembers int
	newID      func() domain.RoomID
}

type DirectoryOption func(*Directory)

// WithMaxMembers caps room size. Zero or less means unbounded.
func WithMaxMembers(n int) DirectoryOption {
	return func(d *Directory) { d.maxMembers = n }
}

// WithIDGenerator replaces the random room id source.
func WithIDGenerator(fn func() domain.RoomID) DirectoryOption {
	return func(d *Directory) { d.newID = fn }
}

func NewDirectory(opts ...DirectoryOption) *Directory {
	d := &Directory{
		rooms:      make(map[domain.RoomID]*Room),
		maxMembers: 2,
		newID:      domain.NewRoomID,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Directory) MaxMembers() int { return d.maxMembers }

// CreateRoom registers a new room with creator as its first member. An empty
// requested id asks for a generated one.
func (d *Directory) CreateRoom(requested domain.RoomID, creator *Connection) (*Room, error) {
	if _, ok := creator.RoomID(); ok {
		return nil, domain.ErrAlreadyInRoom
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := requested
	if id == "" {
		for i := 0; ; i++ {
			if i == maxIDAttempts {
				return nil, domain.ErrRoomAlreadyExists
			}
			id = d.newID()
			if !d.taken(id) {
				break
			}
			log.Warn().Str("module", "core.directory").Str("room", string(id)).Msg("generated room id collision")
		}
	} else if d.taken(id) {
		return nil, domain.ErrRoomAlreadyExists
	}

	// The room is not published yet, so taking its lock under the map lock
	// cannot invert the room -> map order used by LeaveRoom.
	room := newRoom(id)
	room.mu.Lock()
	room.members = append(room.members, creator)
	creator.setRoom(id)
	room.mu.Unlock()

	d.rooms[id] = room
	log.Info().Str("module", "core.directory").Str("room", string(id)).Str("peer", string(creator.ID())).Msg("room created")
	return room, nil
}

// taken reports whether id belongs to a live room. A room that emptied but
// is not yet deleted frees its id; LeaveRoom only deletes the entry it
// closed. Callers hold d.mu.
func (d *Directory) taken(id domain.RoomID) bool {
	room, ok := d.rooms[id]
	return ok && !room.closed.Load()
}

// JoinResult is the membership snapshot taken right after a join.
type JoinResult struct {
	Room        *Room
	MemberCount int
	Others      []*Connection
}

// JoinRoom adds c to an existing room.
func (d *Directory) JoinRoom(id domain.RoomID, c *Connection) (JoinResult, error) {
	if _, ok := c.RoomID(); ok {
		return JoinResult{}, domain.ErrAlreadyInRoom
	}
	room, ok := d.Resolve(id)
	if !ok {
		return JoinResult{}, domain.ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	// The last member may have left between Resolve and Lock.
	if room.closed.Load() {
		return JoinResult{}, domain.ErrRoomNotFound
	}
	if d.maxMembers > 0 && len(room.members) >= d.maxMembers {
		return JoinResult{}, domain.ErrRoomFull
	}
	room.members = append(room.members, c)
	c.setRoom(id)

	log.Info().Str("module", "core.directory").Str("room", string(id)).Str("peer", string(c.ID())).Int("members", len(room.members)).Msg("member joined")
	return JoinResult{
		Room:        room,
		MemberCount: len(room.members),
		Others:      room.except(c),
	}, nil
}

// LeaveResult is the membership snapshot taken right after a leave.
type LeaveResult struct {
	RoomID    domain.RoomID
	Remaining []*Connection
	Deleted   bool
}

// LeaveRoom detaches c from its room, deleting the room once it is empty.
// Leaving while not attached is a no-op and reports false.
func (d *Directory) LeaveRoom(c *Connection) (LeaveResult, bool) {
	id, ok := c.RoomID()
	if !ok {
		return LeaveResult{}, false
	}
	room, ok := d.Resolve(id)
	if !ok {
		return LeaveResult{}, false
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	idx := -1
	for i, m := range room.members {
		if m == c {
			idx = i
			break
		}
	}
	if idx < 0 {
		return LeaveResult{}, false
	}
	room.members = append(room.members[:idx], room.members[idx+1:]...)
	c.setRoom("")

	res := LeaveResult{RoomID: id, Remaining: room.except(c)}
	if len(room.members) == 0 {
		room.closed.Store(true)
		d.mu.Lock()
		if d.rooms[id] == room {
			delete(d.rooms, id)
		}
		d.mu.Unlock()
		res.Deleted = true
		log.Info().Str("module", "core.directory").Str("room", string(id)).Msg("room deleted")
	}
	log.Info().Str("module", "core.directory").Str("room", string(id)).Str("peer", string(c.ID())).Int("members", len(room.members)).Msg("member left")
	return res, true
}

// Resolve returns the live room with the given id.
func (d *Directory) Resolve(id domain.RoomID) (*Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.rooms[id]
	return room, ok
}

// MembersExcept returns the members of room id other than c, in join order.
func (d *Directory) MembersExcept(id domain.RoomID, c *Connection) []*Connection {
	room, ok := d.Resolve(id)
	if !ok {
		return nil
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.except(c)
}

// Member returns the member of room id with the given peer id.
func (d *Directory) Member(id domain.RoomID, peer domain.PeerID) (*Connection, bool) {
	room, ok := d.Resolve(id)
	if !ok {
		return nil, false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.lookup(peer)
}

// List returns every live room ordered by id.
func (d *Directory) List() []RoomInfo {
	d.mu.RLock()
	rooms := make([]*Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.RUnlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		// A room emptied after the snapshot is already gone.
		if info := r.info(); info.MemberCount > 0 {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}
