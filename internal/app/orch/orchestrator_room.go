package orch

import (
	"github.com/dkeye/rendezvous/internal/core"
	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/rs/zerolog/log"
)

// Create opens a room with conn as its only member. An empty requested id
// asks the directory for a generated one.
func (o *Orchestrator) Create(conn *core.Connection, requested domain.RoomID) []core.Delivery {
	room, err := o.Rooms.CreateRoom(requested, conn)
	if err != nil {
		return o.Reject(conn, err)
	}
	log.Info().Str("module", "app.orch").Str("peer", string(conn.ID())).Str("room", string(room.ID())).Msg("create")
	return reply(conn, domain.Envelope{
		Type:   domain.TypeCreated,
		RoomID: room.ID(),
		PeerID: conn.ID(),
		Peers:  1,
	})
}

// Join attaches conn to an existing room and tells the members already
// there.
func (o *Orchestrator) Join(conn *core.Connection, id domain.RoomID) []core.Delivery {
	res, err := o.Rooms.JoinRoom(id, conn)
	if err != nil {
		return o.Reject(conn, err)
	}
	log.Info().Str("module", "app.orch").Str("peer", string(conn.ID())).Str("room", string(id)).Int("members", res.MemberCount).Msg("join")

	out := reply(conn, domain.Envelope{
		Type:   domain.TypeJoined,
		RoomID: id,
		PeerID: conn.ID(),
		Peers:  res.MemberCount,
	})
	return append(out, notify(res.Others, domain.Envelope{
		Type:   domain.TypePeerJoined,
		PeerID: conn.ID(),
	})...)
}

// Leave detaches conn from its room. Leaving while unattached is a no-op
// that is still acknowledged.
func (o *Orchestrator) Leave(conn *core.Connection) []core.Delivery {
	out := o.detach(conn)
	return append(out, core.Delivery{To: conn, Envelope: domain.Envelope{Type: domain.TypeLeft}})
}

// Disconnect runs the leave path for a transport that went away and forgets
// the connection. The returned deliveries never target conn itself.
func (o *Orchestrator) Disconnect(conn *core.Connection) []core.Delivery {
	out := o.detach(conn)
	o.Registry.Unbind(conn.ID())
	log.Info().Str("module", "app.orch").Str("peer", string(conn.ID())).Msg("disconnect")
	return out
}

// detach is the single code path behind leave and disconnect.
func (o *Orchestrator) detach(conn *core.Connection) []core.Delivery {
	res, ok := o.Rooms.LeaveRoom(conn)
	if !ok {
		return nil
	}
	log.Info().Str("module", "app.orch").Str("peer", string(conn.ID())).Str("room", string(res.RoomID)).Bool("room_deleted", res.Deleted).Msg("leave")
	return notify(res.Remaining, domain.Envelope{
		Type:   domain.TypePeerLeft,
		PeerID: conn.ID(),
	})
}
