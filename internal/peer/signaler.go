// Package peer is a signaling client for the rendezvous server. It creates
// or joins a room, waits for the server's acknowledgement and negotiates a
// WebRTC data channel with the other member through the relay.
package peer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrSignalClosed = errors.New("signaling connection closed")

// ServerError is an error envelope returned in answer to a request.
type ServerError struct {
	Code    domain.ErrorCode
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Signaler owns one WebSocket to the server. Inbound envelopes are read by
// ReadLoop and handed out through Events.
type Signaler struct {
	ws     *websocket.Conn
	events chan domain.Envelope
	done   chan struct{}

	wmu    sync.Mutex
	closed bool
}

func Dial(ctx context.Context, url string, header http.Header) (*Signaler, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	log.Info().Str("module", "peer.signal").Str("url", url).Msg("connected")
	return &Signaler{
		ws:     ws,
		events: make(chan domain.Envelope, 32),
		done:   make(chan struct{}),
	}, nil
}

func (s *Signaler) Events() <-chan domain.Envelope { return s.events }

func (s *Signaler) Send(env domain.Envelope) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.closed {
		return ErrSignalClosed
	}
	_ = s.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.ws.WriteJSON(env)
}

// ReadLoop pushes inbound envelopes to Events until the socket closes. It
// returns nil when the close was asked for locally, even if nobody drains
// Events any more.
func (s *Signaler) ReadLoop(ctx context.Context) error {
	defer close(s.events)
	for {
		var env domain.Envelope
		if err := s.ws.ReadJSON(&env); err != nil {
			if s.isClosed() || ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read signal: %w", err)
		}
		select {
		case s.events <- env:
		case <-s.done:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// Create asks for a new room and waits for the created acknowledgement. An
// empty id lets the server pick one.
func (s *Signaler) Create(ctx context.Context, id domain.RoomID) (domain.Envelope, error) {
	if err := s.Send(domain.Envelope{Type: domain.TypeCreate, RoomID: id}); err != nil {
		return domain.Envelope{}, err
	}
	return s.await(ctx, domain.TypeCreated)
}

func (s *Signaler) Join(ctx context.Context, id domain.RoomID) (domain.Envelope, error) {
	if err := s.Send(domain.Envelope{Type: domain.TypeJoin, RoomID: id}); err != nil {
		return domain.Envelope{}, err
	}
	return s.await(ctx, domain.TypeJoined)
}

func (s *Signaler) await(ctx context.Context, want domain.MessageType) (domain.Envelope, error) {
	for {
		select {
		case <-ctx.Done():
			return domain.Envelope{}, ctx.Err()
		case env, ok := <-s.events:
			if !ok {
				return domain.Envelope{}, ErrSignalClosed
			}
			switch env.Type {
			case want:
				return env, nil
			case domain.TypeError:
				return env, &ServerError{Code: env.Code, Message: env.Message}
			default:
				log.Debug().Str("module", "peer.signal").Str("type", string(env.Type)).Msg("skipped while awaiting ack")
			}
		}
	}
}

func (s *Signaler) isClosed() bool {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.closed
}

func (s *Signaler) Close() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	_ = s.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.ws.Close()
}
