package app

import (
	"context"
	"sync"

	"github.com/dkeye/rendezvous/internal/core"
	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Conn   *core.Connection
	Cancel context.CancelFunc
}

// Registry tracks every live connection, attached to a room or not, along
// with the cancel func that tears its transport down.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.PeerID]*sessionEntry
	newID    func() domain.PeerID
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.PeerID]*sessionEntry),
		newID:    domain.NewPeerID,
	}
}

// Bind issues a fresh peer id for signal and registers the connection.
func (r *Registry) Bind(signal core.SignalConnection, cancel context.CancelFunc) *core.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.newID()
	for {
		if _, taken := r.sessions[id]; !taken {
			break
		}
		id = r.newID()
	}
	conn := core.NewConnection(id, signal)
	r.sessions[id] = &sessionEntry{Conn: conn, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("bound session")
	return conn
}

func (r *Registry) Unbind(id domain.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("unbind session")
}

func (r *Registry) Get(id domain.PeerID) (*core.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[id]; ok {
		return e.Conn, true
	}
	return nil, false
}

// Cancel stops the transport of a live connection. The adapter then runs
// the disconnect path.
func (r *Registry) Cancel(id domain.PeerID) bool {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("canceled session")
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
