package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	// inbound
	TypeCreate MessageType = "create"
	TypeJoin   MessageType = "join"
	TypeLeave  MessageType = "leave"
	TypePing   MessageType = "ping"

	// relayed in both directions
	TypeOffer     MessageType = "offer"
	TypeAnswer    MessageType = "answer"
	TypeCandidate MessageType = "candidate"

	// outbound
	TypeCreated    MessageType = "created"
	TypeJoined     MessageType = "joined"
	TypeLeft       MessageType = "left"
	TypePeerJoined MessageType = "peer-joined"
	TypePeerLeft   MessageType = "peer-left"
	TypeError      MessageType = "error"
	TypePong       MessageType = "pong"
)

// IsNegotiation reports whether t is relayed between peers.
func (t MessageType) IsNegotiation() bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeCandidate:
		return true
	}
	return false
}

// Envelope is the single message shape exchanged with peers. Payload is
// opaque to the service and forwarded as the same JSON value; insignificant
// whitespace is not kept.
type Envelope struct {
	Type    MessageType     `json:"type"`
	RoomID  RoomID          `json:"roomId,omitempty"`
	PeerID  PeerID          `json:"peerId,omitempty"`
	From    PeerID          `json:"from,omitempty"`
	To      PeerID          `json:"to,omitempty"`
	Peers   int             `json:"peers,omitempty"`
	Code    ErrorCode       `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeEnvelope parses an inbound frame. Any frame that is not one of the
// inbound message types fails with ErrMalformedEnvelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if dec.More() {
		return Envelope{}, fmt.Errorf("%w: trailing data", ErrMalformedEnvelope)
	}
	if err := env.validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func (e Envelope) validate() error {
	switch {
	case e.Type == TypeCreate:
		if e.RoomID != "" {
			if err := e.RoomID.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
			}
		}
	case e.Type == TypeJoin:
		if err := e.RoomID.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
	case e.Type == TypeLeave, e.Type == TypePing:
	case e.Type.IsNegotiation():
		if len(e.Payload) == 0 {
			return fmt.Errorf("%w: %s without payload", ErrMalformedEnvelope, e.Type)
		}
	case e.Type == "":
		return fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	default:
		return fmt.Errorf("%w: unsupported type %q", ErrMalformedEnvelope, e.Type)
	}
	return nil
}

// ErrorEnvelope builds the reply sent to a peer whose request failed.
func ErrorEnvelope(err error) Envelope {
	return Envelope{Type: TypeError, Code: CodeOf(err), Message: err.Error()}
}
