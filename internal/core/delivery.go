package core

import "github.com/dkeye/rendezvous/internal/domain"

// Delivery is one envelope the adapter must send to one connection.
type Delivery struct {
	To       *Connection
	Envelope domain.Envelope
}

// RoomInfo is a read-only view for APIs (no transport fields).
type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"memberCount"`
}
