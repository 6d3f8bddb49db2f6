package domain

import (
	"strings"

	"github.com/google/uuid"
)

const MaxRoomIDLen = 64

type RoomID string

// NewRoomID returns a random room identifier. Uniqueness among live rooms is
// checked by the directory.
func NewRoomID() RoomID {
	return RoomID(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Validate reports whether a peer-supplied room id is acceptable.
func (id RoomID) Validate() error {
	if id == "" {
		return ErrRoomIDEmpty
	}
	if len(id) > MaxRoomIDLen {
		return ErrRoomIDTooLong
	}
	return nil
}
