package domain

import "errors"

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomAlreadyExists = errors.New("room already exists")
	ErrRoomFull          = errors.New("room is full")
	ErrNotInRoom         = errors.New("not in room")
	ErrAlreadyInRoom     = errors.New("already in room")
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrRateLimited       = errors.New("rate limited")

	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
)

// ErrorCode is the wire representation of a protocol error.
type ErrorCode string

const (
	CodeRoomNotFound      ErrorCode = "RoomNotFound"
	CodeRoomAlreadyExists ErrorCode = "RoomAlreadyExists"
	CodeRoomFull          ErrorCode = "RoomFull"
	CodeNotInRoom         ErrorCode = "NotInRoom"
	CodeAlreadyInRoom     ErrorCode = "AlreadyInRoom"
	CodeMalformedEnvelope ErrorCode = "MalformedEnvelope"
	CodeRateLimited       ErrorCode = "RateLimited"
)

var codes = []struct {
	err  error
	code ErrorCode
}{
	{ErrRoomNotFound, CodeRoomNotFound},
	{ErrRoomAlreadyExists, CodeRoomAlreadyExists},
	{ErrRoomFull, CodeRoomFull},
	{ErrNotInRoom, CodeNotInRoom},
	{ErrAlreadyInRoom, CodeAlreadyInRoom},
	{ErrMalformedEnvelope, CodeMalformedEnvelope},
	{ErrRateLimited, CodeRateLimited},
}

// CodeOf maps err to its wire code. Anything outside the taxonomy is
// reported as MalformedEnvelope, the only error a peer can act on for it.
func CodeOf(err error) ErrorCode {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeMalformedEnvelope
}
