// Package protocol defines the websocket event protocol: a closed set of
// inbound and outbound event kinds, each with an explicit payload schema,
// carried in a small JSON envelope. Frames that do not match a known kind
// or miss a required field are rejected at the boundary.
package protocol

// Inbound event names, sent by clients.
const (
	EventConnectUser    = "connect_user"
	EventJoinRoom       = "join_room"
	EventSendMessage    = "send_message"
	EventSendImage      = "send_image"
	EventUserTyping     = "user_typing"
	EventUserStopTyping = "user_stop_typing"
)

// Outbound event names, produced by the broadcaster.
const (
	EventUserConnected    = "user_connected"
	EventRoomJoined       = "room_joined"
	EventUserJoinedRoom   = "user_joined_room"
	EventUserList         = "user_list"
	EventReceiveMessage   = "receive_message"
	EventTypingIndicator  = "typing_indicator"
	EventUserLeftRoom     = "user_left_room"
	EventUserDisconnected = "user_disconnected"
	EventRoomCreated      = "room_created"
	EventRoomDeleted      = "room_deleted"
	EventError            = "error"
)
