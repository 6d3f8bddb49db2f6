package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/rendezvous/internal/core"
	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/dkeye/rendezvous/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "adapters.signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(ctl.opts.WriteWait))
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "adapters.signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "adapters.signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "adapters.signal").Msg("writePump ping")
				return
			}
		}
	}
}

// readPump is the only goroutine handling inbound frames for conn, which
// keeps each sender's envelopes in order. On exit it runs the disconnect
// path before the transport is released.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, conn *core.Connection, c *WsSignalConn) {
	peer := string(conn.ID())
	defer func() {
		ctl.deliver(ctl.Orch.Disconnect(conn))
		ctl.Limiter.Forget(conn.ID())
		cancel()
		c.Close()
		log.Info().Str("module", "adapters.signal").Str("peer", peer).Msg("readPump closed")
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "adapters.signal").Str("peer", peer).Msg("readPump read error")
			}
			return
		}
		if kind != websocket.TextMessage {
			ctl.deliver(ctl.Orch.Reject(conn, domain.ErrMalformedEnvelope))
			continue
		}
		ctl.handleFrame(conn, data)
	}
}

func (ctl *SignalWSController) handleFrame(conn *core.Connection, data []byte) {
	env, err := domain.DecodeEnvelope(data)
	if err != nil {
		ctl.deliver(ctl.Orch.Reject(conn, err))
		return
	}
	if env.Type == domain.TypeCreate || env.Type == domain.TypeJoin {
		if !ctl.Limiter.Allow(conn.ID()) {
			ctl.deliver(ctl.Orch.Reject(conn, domain.ErrRateLimited))
			return
		}
	}
	ctl.deliver(ctl.Orch.Handle(conn, env))
}

// deliver encodes and queues each delivery. Sending is best effort: a full
// or closed destination loses the frame.
func (ctl *SignalWSController) deliver(ds []core.Delivery) {
	m := ctl.Orch.Metrics
	for _, d := range ds {
		frame, err := encodeFrame(d.Envelope)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.signal").Str("type", string(d.Envelope.Type)).Msg("deliver marshal")
			continue
		}
		if err := d.To.Signal().TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "adapters.signal").Str("peer", string(d.To.ID())).Str("type", string(d.Envelope.Type)).Msg("delivery dropped")
			m.Dropped(metrics.DropSendFailed)
			continue
		}
		if d.Envelope.Type.IsNegotiation() {
			m.Relayed(string(d.Envelope.Type))
		}
	}
}

// encodeFrame writes env as one compact JSON text frame. HTML characters in
// payloads are kept as sent.
func encodeFrame(env domain.Envelope) (core.Frame, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		return nil, err
	}
	return core.Frame(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}
