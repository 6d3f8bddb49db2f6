package core

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dkeye/rendezvous/internal/domain"
)

// Room is a threadsafe in-memory member set. Its mutex linearizes every
// membership change of the room; a closed room has been removed from the
// directory and accepts no members. closed is only set under mu but may be
// read without it.
type Room struct {
	id domain.RoomID

	mu      sync.Mutex
	members []*Connection // join order
	closed  atomic.Bool
}

func newRoom(id domain.RoomID) *Room {
	return &Room{id: id}
}

func (r *Room) ID() domain.RoomID { return r.id }

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Members returns a snapshot of the members in join order.
func (r *Room) Members() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.members)
}

func (r *Room) info() RoomInfo {
	return RoomInfo{ID: r.id, MemberCount: r.MemberCount()}
}

// except and lookup expect r.mu to be held.

func (r *Room) except(c *Connection) []*Connection {
	out := make([]*Connection, 0, len(r.members))
	for _, m := range r.members {
		if m != c {
			out = append(out, m)
		}
	}
	return out
}

func (r *Room) lookup(id domain.PeerID) (*Connection, bool) {
	for _, m := range r.members {
		if m.ID() == id {
			return m, true
		}
	}
	return nil, false
}
