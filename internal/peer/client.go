package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/rendezvous/internal/adapters/rtc"
	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var ErrPeerConnectionClosed = errors.New("peer connection closed")

type Options struct {
	URL string

	// RoomID to join, or to create when Create is set. Empty with Create
	// lets the server generate one.
	RoomID     domain.RoomID
	Create     bool
	ICEServers []string
}

// Client runs one peer session: attach to a room, then offer (creator) or
// answer (joiner) over the relay until the other side leaves.
type Client struct {
	opts Options
	sig  *Signaler
	conn *rtc.Connection

	self   domain.PeerID
	roomID domain.RoomID

	mu     sync.Mutex
	remote domain.PeerID

	ready     chan struct{}
	readyOnce sync.Once

	closed     chan struct{}
	closedOnce sync.Once

	onAttached func(room domain.RoomID, self domain.PeerID)
	onMessage  func(from domain.PeerID, text string)
}

func NewClient(opts Options) *Client {
	return &Client{
		opts:   opts,
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// OnAttached runs once the server acknowledged create or join.
func (c *Client) OnAttached(fn func(room domain.RoomID, self domain.PeerID)) { c.onAttached = fn }

func (c *Client) OnMessage(fn func(from domain.PeerID, text string)) { c.onMessage = fn }

// Ready is closed when the data channel opens.
func (c *Client) Ready() <-chan struct{} { return c.ready }

func (c *Client) Send(text string) error {
	if c.conn == nil {
		return rtc.ErrChannelNotOpen
	}
	return c.conn.SendText(text)
}

func (c *Client) Remote() domain.PeerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

func (c *Client) setRemote(id domain.PeerID) {
	c.mu.Lock()
	c.remote = id
	c.mu.Unlock()
}

// Run blocks until the session ends, ctx is done or signaling fails.
func (c *Client) Run(ctx context.Context) error {
	sig, err := Dial(ctx, c.opts.URL, nil)
	if err != nil {
		return err
	}
	conn, err := rtc.NewConnection(rtc.DefaultWebRTCConfig(c.opts.ICEServers...), "local")
	if err != nil {
		_ = sig.Close()
		return fmt.Errorf("peer connection: %w", err)
	}
	c.sig, c.conn = sig, conn
	defer conn.Close()

	c.wire()
	if err := conn.Start(ctx); err != nil {
		_ = sig.Close()
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sig.ReadLoop(ctx) })
	g.Go(func() error {
		defer sig.Close()
		return c.session(ctx)
	})
	return g.Wait()
}

func (c *Client) wire() {
	c.conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		if err := c.signal(domain.TypeCandidate, c.Remote(), ci); err != nil {
			log.Warn().Err(err).Str("module", "peer.client").Msg("send candidate")
		}
	})
	c.conn.OnOpen(func() {
		c.readyOnce.Do(func() { close(c.ready) })
	})
	c.conn.OnClosed(func() {
		c.closedOnce.Do(func() { close(c.closed) })
	})
	c.conn.OnMessage(func(text string) {
		if c.onMessage != nil {
			c.onMessage(c.Remote(), text)
		}
	})
}

func (c *Client) session(ctx context.Context) error {
	var (
		ack domain.Envelope
		err error
	)
	if c.opts.Create {
		ack, err = c.sig.Create(ctx, c.opts.RoomID)
	} else {
		ack, err = c.sig.Join(ctx, c.opts.RoomID)
	}
	if err != nil {
		return err
	}
	c.self, c.roomID = ack.PeerID, ack.RoomID
	log.Info().Str("module", "peer.client").Str("room", string(c.roomID)).Str("peer", string(c.self)).Int("peers", ack.Peers).Msg("attached")
	if c.onAttached != nil {
		c.onAttached(c.roomID, c.self)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.closed:
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Str("module", "peer.client").Str("room", string(c.roomID)).Msg("peer connection closed")
			return ErrPeerConnectionClosed
		case env, ok := <-c.sig.Events():
			if !ok {
				return nil
			}
			done, err := c.handle(env)
			if err != nil || done {
				return err
			}
		}
	}
}

// handle reacts to one relayed envelope and reports whether the session is
// over.
func (c *Client) handle(env domain.Envelope) (bool, error) {
	switch env.Type {
	case domain.TypePeerJoined:
		if !c.opts.Create || c.Remote() != "" {
			return false, nil
		}
		c.setRemote(env.PeerID)
		offer, err := c.conn.CreateOffer()
		if err != nil {
			return false, fmt.Errorf("create offer: %w", err)
		}
		return false, c.signal(domain.TypeOffer, env.PeerID, offer)

	case domain.TypeOffer:
		var offer webrtc.SessionDescription
		if err := json.Unmarshal(env.Payload, &offer); err != nil {
			return false, fmt.Errorf("decode offer: %w", err)
		}
		c.setRemote(env.From)
		answer, err := c.conn.ApplyOfferAndCreateAnswer(offer)
		if err != nil {
			return false, fmt.Errorf("apply offer: %w", err)
		}
		return false, c.signal(domain.TypeAnswer, env.From, answer)

	case domain.TypeAnswer:
		var answer webrtc.SessionDescription
		if err := json.Unmarshal(env.Payload, &answer); err != nil {
			return false, fmt.Errorf("decode answer: %w", err)
		}
		return false, c.conn.ApplyAnswer(answer)

	case domain.TypeCandidate:
		var ci webrtc.ICECandidateInit
		if err := json.Unmarshal(env.Payload, &ci); err != nil {
			log.Warn().Err(err).Str("module", "peer.client").Msg("decode candidate")
			return false, nil
		}
		if err := c.conn.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "peer.client").Msg("add candidate")
		}
		return false, nil

	case domain.TypePeerLeft:
		if env.PeerID != c.Remote() {
			return false, nil
		}
		log.Info().Str("module", "peer.client").Str("peer", string(env.PeerID)).Msg("remote peer left")
		return true, nil

	case domain.TypeError:
		log.Warn().Str("module", "peer.client").Str("code", string(env.Code)).Str("message", env.Message).Msg("server error")
	}
	return false, nil
}

// signal relays v as the payload of a negotiation envelope. An empty to
// broadcasts to the room.
func (c *Client) signal(t domain.MessageType, to domain.PeerID, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.sig.Send(domain.Envelope{Type: t, To: to, Payload: payload})
}
