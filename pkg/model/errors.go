package model

import "errors"

// Error taxonomy for the realtime layer. All of these are recovered at
// the point of origin and reported back to the originating connection as
// a unicast error event; none of them crash the server or roll back
// state beyond the guarded precondition.
var (
	ErrIdentity     = errors.New("username is required")
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room with this name already exists")
	ErrValidation   = errors.New("invalid payload")
)
