package domain

import "errors"

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomInactive = errors.New("room is inactive")
	ErrRoomFull     = errors.New("room is full")
	ErrForbidden    = errors.New("wrong room secret")
	ErrNotInRoom    = errors.New("user not in the room")
	ErrBadMessage   = errors.New("empty or oversized message body")
)
