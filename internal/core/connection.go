package core

import (
	"sync"

	"github.com/dkeye/rendezvous/internal/domain"
)

// Connection is one live peer attached to the relay.
// The adapter owns the transport; the core owns the room binding.
type Connection struct {
	id     domain.PeerID
	signal SignalConnection

	mu     sync.RWMutex
	roomID domain.RoomID
}

func NewConnection(id domain.PeerID, signal SignalConnection) *Connection {
	return &Connection{id: id, signal: signal}
}

func (c *Connection) ID() domain.PeerID        { return c.id }
func (c *Connection) Signal() SignalConnection { return c.signal }

// RoomID returns the room the connection is attached to, if any.
func (c *Connection) RoomID() (domain.RoomID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID, c.roomID != ""
}

// setRoom must only be called while holding the lock of the room being
// entered or left.
func (c *Connection) setRoom(id domain.RoomID) {
	c.mu.Lock()
	c.roomID = id
	c.mu.Unlock()
}
