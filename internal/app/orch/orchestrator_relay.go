package orch

import (
	"github.com/dkeye/rendezvous/internal/core"
	"github.com/dkeye/rendezvous/internal/domain"
)

// Relay forwards an offer, answer or candidate within the sender's room.
func (o *Orchestrator) Relay(conn *core.Connection, env domain.Envelope) []core.Delivery {
	if _, ok := conn.RoomID(); !ok {
		return o.Reject(conn, domain.ErrNotInRoom)
	}
	return o.Router.Route(env, conn)
}
