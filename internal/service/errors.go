package service

import "errors"

// Business errors surfaced to clients. All are recoverable: the client
// can retry with a different request, and none of them close the
// connection.
var (
	ErrRoomExists      = errors.New("room already exists")
	ErrRoomNotFound    = errors.New("room not found")
	ErrInvalidPassword = errors.New("invalid password")
)
