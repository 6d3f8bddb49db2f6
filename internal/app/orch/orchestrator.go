// Package orch drives the per-connection lifecycle: attach, create, join,
// leave, relay and disconnect. Every entry point returns the deliveries the
// transport has to send; nothing here touches the wire.
package orch

import (
	"context"

	"github.com/dkeye/rendezvous/internal/app"
	"github.com/dkeye/rendezvous/internal/core"
	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/dkeye/rendezvous/internal/metrics"
	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *core.Directory
	Router   *app.Router
	Metrics  *metrics.Metrics
}

func New(reg *app.Registry, rooms *core.Directory, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Router:   app.NewRouter(rooms, m),
		Metrics:  m,
	}
}

// Connect registers a new transport and returns its unattached connection.
func (o *Orchestrator) Connect(signal core.SignalConnection, cancel context.CancelFunc) *core.Connection {
	return o.Registry.Bind(signal, cancel)
}

// Handle dispatches one decoded inbound envelope.
func (o *Orchestrator) Handle(conn *core.Connection, env domain.Envelope) []core.Delivery {
	switch {
	case env.Type == domain.TypeCreate:
		return o.Create(conn, env.RoomID)
	case env.Type == domain.TypeJoin:
		return o.Join(conn, env.RoomID)
	case env.Type == domain.TypeLeave:
		return o.Leave(conn)
	case env.Type == domain.TypePing:
		return reply(conn, domain.Envelope{Type: domain.TypePong})
	case env.Type.IsNegotiation():
		return o.Relay(conn, env)
	default:
		return o.Reject(conn, domain.ErrMalformedEnvelope)
	}
}

// Reject answers the sender alone with the error.
func (o *Orchestrator) Reject(conn *core.Connection, err error) []core.Delivery {
	env := domain.ErrorEnvelope(err)
	o.Metrics.Error(string(env.Code))
	log.Info().Err(err).Str("module", "app.orch").Str("peer", string(conn.ID())).Str("code", string(env.Code)).Msg("request rejected")
	return reply(conn, env)
}

func reply(conn *core.Connection, env domain.Envelope) []core.Delivery {
	return []core.Delivery{{To: conn, Envelope: env}}
}

func notify(to []*core.Connection, env domain.Envelope) []core.Delivery {
	out := make([]core.Delivery, 0, len(to))
	for _, c := range to {
		out = append(out, core.Delivery{To: c, Envelope: env})
	}
	return out
}
