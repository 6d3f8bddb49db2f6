// Package domain contains entities without logic, just meta-data and the
// signaling vocabulary shared by the core and its adapters.
package domain

import "github.com/google/uuid"

// PeerID identifies one live connection. A fresh id is issued for every
// connection, reconnects included.
type PeerID string

func NewPeerID() PeerID {
	return PeerID(uuid.NewString())
}
