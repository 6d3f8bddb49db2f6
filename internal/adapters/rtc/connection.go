package rtc

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// ChannelLabel names the data channel the offering side opens.
const ChannelLabel = "rendezvous"

var ErrChannelNotOpen = errors.New("data channel not open")

// Connection is one pion peer connection carrying a single text data
// channel. Remote candidates that arrive before the remote description are
// held back and applied once it is set.
type Connection struct {
	pc    *webrtc.PeerConnection
	label string

	mu        sync.Mutex
	dc        *webrtc.DataChannel
	pending   []webrtc.ICECandidateInit
	remoteSet bool

	cancel context.CancelFunc

	onICE     func(webrtc.ICECandidateInit)
	onOpen    func()
	onMessage func(string)
	onClosed  func()
}

func DefaultWebRTCConfig(stunURLs ...string) webrtc.Configuration {
	if len(stunURLs) == 0 {
		stunURLs = []string{"stun:stun1.l.google.com:19302", "stun:stun2.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunURLs},
		},
	}
}

func NewConnection(cfg webrtc.Configuration, label string) (*Connection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Connection{pc: pc, label: label}, nil
}

// Start installs the pion callbacks. Set the On* hooks before calling it.
func (c *Connection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "adapters.rtc").Str("peer", c.label).Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "adapters.rtc").Str("peer", c.label).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			cancel()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		log.Info().Str("module", "adapters.rtc").Str("peer", c.label).Str("channel", dc.Label()).Msg("remote data channel")
		c.attach(dc)
	})

	go func() {
		<-ctx.Done()
		if c.onClosed != nil {
			c.onClosed()
		}
	}()
	return nil
}

func (c *Connection) attach(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		log.Info().Str("module", "adapters.rtc").Str("peer", c.label).Str("channel", dc.Label()).Msg("data channel open")
		if c.onOpen != nil {
			c.onOpen()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if c.onMessage != nil {
			c.onMessage(string(msg.Data))
		}
	})
}

// CreateOffer opens the data channel and returns the local offer. Candidates
// are trickled through OnICECandidate rather than embedded.
func (c *Connection) CreateOffer() (*webrtc.SessionDescription, error) {
	c.mu.Lock()
	hasChannel := c.dc != nil
	c.mu.Unlock()
	if !hasChannel {
		dc, err := c.pc.CreateDataChannel(ChannelLabel, nil)
		if err != nil {
			return nil, err
		}
		c.attach(dc)
	}

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return c.pc.LocalDescription(), nil
}

func (c *Connection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.setRemote(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return c.pc.LocalDescription(), nil
}

func (c *Connection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.setRemote(answer)
}

func (c *Connection) setRemote(desc webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return err
	}
	c.mu.Lock()
	c.remoteSet = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, ci := range pending {
		if err := c.pc.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "adapters.rtc").Str("peer", c.label).Msg("queued candidate rejected")
		}
	}
	return nil
}

// AddICECandidate applies a remote candidate, or queues it until the remote
// description is known.
func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	if !c.remoteSet {
		c.pending = append(c.pending, ci)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) pendingCandidates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// SendText writes to the data channel once it is open.
func (c *Connection) SendText(text string) error {
	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	return dc.SendText(text)
}

func (c *Connection) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "adapters.rtc").Str("peer", c.label).Msg("close error")
	} else {
		log.Info().Str("module", "adapters.rtc").Str("peer", c.label).Msg("closed")
	}
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

func (c *Connection) OnOpen(fn func()) { c.onOpen = fn }

func (c *Connection) OnMessage(fn func(string)) { c.onMessage = fn }

// OnClosed runs once the peer connection fails, closes or Close is called.
func (c *Connection) OnClosed(fn func()) { c.onClosed = fn }
