package protocol

import (
	"time"

	"github.com/roomplus/roomplus/pkg/model"
)

// Outbound payload schemas. user_list carries a bare
// []model.PresenceEntry and needs no struct here.

type UserConnected struct {
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomJoined is unicast to the joining connection only: the room record,
// the most recent history page (oldest-first) and the current user list.
type RoomJoined struct {
	Room     model.Room            `json:"room"`
	Messages []model.Message       `json:"messages"`
	Users    []model.PresenceEntry `json:"users"`
}

type UserJoinedRoom struct {
	Username  string    `json:"username"`
	RoomID    string    `json:"roomId"`
	Timestamp time.Time `json:"timestamp"`
}

// ReceiveMessage is the persisted record plus the timestamp alias the
// clients render by.
type ReceiveMessage struct {
	model.Message
	Timestamp time.Time `json:"timestamp"`
}

type TypingIndicator struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type UserLeftRoom struct {
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

type UserDisconnected struct {
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

type RoomCreated struct {
	Room      model.Room `json:"room"`
	Timestamp time.Time  `json:"timestamp"`
}

type RoomDeleted struct {
	RoomID    string    `json:"roomId"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}
