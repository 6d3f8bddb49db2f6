package app

import (
	"github.com/dkeye/rendezvous/internal/core"
	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/dkeye/rendezvous/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Router decides where a negotiation envelope goes. It holds no state of
// its own beyond the directory it reads.
type Router struct {
	Rooms   *core.Directory
	Metrics *metrics.Metrics
}

func NewRouter(rooms *core.Directory, m *metrics.Metrics) *Router {
	return &Router{Rooms: rooms, Metrics: m}
}

// Route returns the deliveries for env sent by from. An envelope with a
// destination goes to that member only; otherwise it goes to every other
// member of the sender's room. The payload is passed through untouched.
func (rt *Router) Route(env domain.Envelope, from *core.Connection) []core.Delivery {
	roomID, ok := from.RoomID()
	if !ok {
		return nil
	}
	out := domain.Envelope{
		Type:    env.Type,
		From:    from.ID(),
		To:      env.To,
		Payload: env.Payload,
	}

	if env.To != "" {
		to, ok := rt.Rooms.Member(roomID, env.To)
		if !ok || to == from {
			log.Warn().
				Str("module", "app.router").
				Str("room", string(roomID)).
				Str("peer", string(from.ID())).
				Str("to", string(env.To)).
				Str("type", string(env.Type)).
				Msg("destination not in room, dropped")
			rt.Metrics.Dropped(metrics.DropNotMember)
			return nil
		}
		return []core.Delivery{{To: to, Envelope: out}}
	}

	others := rt.Rooms.MembersExcept(roomID, from)
	deliveries := make([]core.Delivery, 0, len(others))
	for _, to := range others {
		deliveries = append(deliveries, core.Delivery{To: to, Envelope: out})
	}
	log.Debug().Str("module", "app.router").Str("room", string(roomID)).Str("peer", string(from.ID())).Str("type", string(env.Type)).Int("fanout", len(deliveries)).Msg("routed")
	return deliveries
}
