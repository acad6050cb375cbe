package hub

import (
	"context"
	"strings"
	"time"

	"github.com/roomplus/roomplus/pkg/model"
	"github.com/roomplus/roomplus/pkg/protocol"
	"github.com/roomplus/roomplus/pkg/registry"
)

// Session state machine. Events from one connection are dispatched in
// arrival order by its read pump; different connections run
// concurrently. Validation always happens before mutation, so a failed
// event leaves all state unchanged and only produces a unicast error.

// HandleConnect registers a freshly accepted transport connection in the
// anonymous state.
func (h *Hub) HandleConnect(conn registry.Conn) {
	h.registry.Register(conn)
	h.log.Debug("connection registered", "conn", conn.ID(), "total", h.registry.Len())
}

// Dispatch decodes one inbound frame and applies it to the session.
func (h *Hub) Dispatch(ctx context.Context, id registry.ConnID, raw []byte) {
	in, err := protocol.DecodeInbound(raw)
	if err != nil {
		h.log.Debug("rejected frame", "conn", id, "err", err)
		h.errorTo(id, "Invalid event payload")
		return
	}

	switch p := in.(type) {
	case *protocol.ConnectUser:
		h.handleConnectUser(id, p)
	case *protocol.JoinRoom:
		h.handleJoinRoom(ctx, id, p)
	case *protocol.SendMessage:
		h.handleSendMessage(ctx, id, p.RoomID, p.Text, "")
	case *protocol.SendImage:
		h.handleSendMessage(ctx, id, p.RoomID, "", p.ImageURL)
	case *protocol.Typing:
		h.handleTyping(id, p)
	}
}

// HandleDisconnect runs the terminal transition: the transport is gone,
// the registry entry is removed, and any room the connection was in gets
// its leave broadcasts. Safe to call once per connection; later calls
// are no-ops.
func (h *Hub) HandleDisconnect(ctx context.Context, id registry.ConnID) {
	username, room, ok := h.registry.Unregister(id)
	if !ok {
		return
	}
	now := time.Now().UTC()
	if room != "" {
		h.rooms.Leave(room, id)
		h.typing.Set(room, username, false)
		h.SendToRoom(room, protocol.EventUserLeftRoom, protocol.UserLeftRoom{Username: username, Timestamp: now}, "")
		h.SendToRoom(room, protocol.EventUserList, h.presence.List(room), "")
		h.mirrorLeave(ctx, room, username)
	}
	if username != "" {
		h.BroadcastAll(protocol.EventUserDisconnected, protocol.UserDisconnected{Username: username, Timestamp: now})
	}
	h.log.Debug("connection closed", "conn", id, "user", username, "total", h.registry.Len())
}

func (h *Hub) handleConnectUser(id registry.ConnID, p *protocol.ConnectUser) {
	username := strings.TrimSpace(p.Username)
	if username == "" {
		h.errorTo(id, "Username is required")
		return
	}
	if !model.ValidUsername(username) {
		h.errorTo(id, "Username must be 1-20 characters: letters, numbers, - and _")
		return
	}
	if err := h.registry.Identify(id, username); err != nil {
		h.errorTo(id, "Username is required")
		return
	}
	h.log.Info("user connected", "conn", id, "user", username)
	h.BroadcastAll(protocol.EventUserConnected, protocol.UserConnected{Username: username, Timestamp: time.Now().UTC()})
}

func (h *Hub) handleJoinRoom(ctx context.Context, id registry.ConnID, p *protocol.JoinRoom) {
	username, _, ok := h.registry.Lookup(id)
	if !ok {
		return
	}
	if username == "" {
		h.errorTo(id, "Connect before joining a room")
		return
	}

	room, err := h.store.FindRoomByID(ctx, p.RoomID)
	if err != nil {
		h.log.Error("room lookup failed", "room", p.RoomID, "err", err)
		h.errorTo(id, "Failed to join room")
		return
	}
	if room == nil {
		h.errorTo(id, "Room not found")
		return
	}

	prev := h.rooms.Join(p.RoomID, id)
	h.registry.SetRoom(id, p.RoomID)
	now := time.Now().UTC()

	if prev != "" && prev != p.RoomID {
		// The old room sees the departure before the new room sees the
		// arrival.
		h.typing.Set(prev, username, false)
		h.SendToRoom(prev, protocol.EventUserLeftRoom, protocol.UserLeftRoom{Username: username, Timestamp: now}, "")
		h.SendToRoom(prev, protocol.EventUserList, h.presence.List(prev), "")
		h.mirrorLeave(ctx, prev, username)
	}

	messages, err := h.store.MessagesByRoom(ctx, p.RoomID, h.history, 0)
	if err != nil {
		h.log.Error("history fetch failed", "room", p.RoomID, "err", err)
		h.errorTo(id, "Failed to join room")
		return
	}
	users := h.presence.List(p.RoomID)

	h.SendTo(id, protocol.EventRoomJoined, protocol.RoomJoined{Room: *room, Messages: messages, Users: users})
	h.SendToRoom(p.RoomID, protocol.EventUserJoinedRoom, protocol.UserJoinedRoom{Username: username, RoomID: p.RoomID, Timestamp: now}, id)
	h.SendToRoom(p.RoomID, protocol.EventUserList, users, "")
	h.mirrorJoin(ctx, p.RoomID, username)
	h.log.Info("user joined room", "conn", id, "user", username, "room", p.RoomID, "prev", prev)
}

// handleSendMessage covers both send_message and send_image: exactly one
// of text/imageURL arrives non-empty from Dispatch.
func (h *Hub) handleSendMessage(ctx context.Context, id registry.ConnID, roomID, text, imageURL string) {
	username, current, ok := h.registry.Lookup(id)
	if !ok {
		return
	}
	if current != roomID {
		h.errorTo(id, "Join the room before sending messages")
		return
	}
	if strings.TrimSpace(text) == "" && imageURL == "" {
		h.errorTo(id, "Message text is required")
		return
	}

	msg, err := h.store.CreateMessage(ctx, roomID, username, text, imageURL)
	if err != nil {
		h.log.Error("message persist failed", "room", roomID, "user", username, "err", err)
		h.errorTo(id, "Failed to send message")
		return
	}
	// Broadcast only after persistence succeeded: a storage failure
	// leaves no partial fan-out.
	h.SendToRoom(roomID, protocol.EventReceiveMessage, protocol.ReceiveMessage{Message: msg, Timestamp: msg.CreatedAt}, "")
}

func (h *Hub) handleTyping(id registry.ConnID, p *protocol.Typing) {
	username, current, ok := h.registry.Lookup(id)
	if !ok || username == "" || current != p.RoomID {
		// Typing outside the current room is droppable noise.
		return
	}
	h.typing.Set(p.RoomID, username, p.IsTyping)
	h.SendToRoom(p.RoomID, protocol.EventTypingIndicator, protocol.TypingIndicator{Username: username, IsTyping: p.IsTyping}, id)
}

// TypingUsers exposes the current typing set of a room.
func (h *Hub) TypingUsers(roomID string) []string {
	return h.typing.List(roomID)
}

func (h *Hub) errorTo(id registry.ConnID, message string) {
	h.SendTo(id, protocol.EventError, protocol.ErrorEvent{Message: message})
}
