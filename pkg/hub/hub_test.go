package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roomplus/roomplus/pkg/model"
	"github.com/roomplus/roomplus/pkg/protocol"
	"github.com/roomplus/roomplus/pkg/registry"
	"github.com/roomplus/roomplus/pkg/store"
)

// testConn records every frame the hub delivers to it.
type testConn struct {
	id registry.ConnID

	mu       sync.Mutex
	frames   []protocol.Envelope
	closed   bool
	rejected bool
}

func (c *testConn) ID() registry.ConnID { return c.id }

func (c *testConn) Send(raw []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejected {
		return false
	}
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		panic(fmt.Sprintf("malformed frame: %v", err))
	}
	c.frames = append(c.frames, env)
	return true
}

func (c *testConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *testConn) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.frames))
	for i, env := range c.frames {
		out[i] = env.Event
	}
	return out
}

func (c *testConn) count(event string) int {
	n := 0
	for _, e := range c.events() {
		if e == event {
			n++
		}
	}
	return n
}

func (c *testConn) last(event string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i].Event == event {
			return c.frames[i].Data, true
		}
	}
	return nil, false
}

func (c *testConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func newTestHub(t *testing.T) (*Hub, *store.Badger) {
	t.Helper()
	st, err := store.OpenBadgerInMemory(slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(Options{Store: st, Log: slog.Default()}), st
}

func frame(t *testing.T, event string, payload any) []byte {
	t.Helper()
	raw, err := protocol.Encode(event, payload)
	require.NoError(t, err)
	return raw
}

// connect registers a transport connection and identifies it.
func connect(t *testing.T, h *Hub, id registry.ConnID, username string) *testConn {
	t.Helper()
	conn := &testConn{id: id}
	h.HandleConnect(conn)
	h.Dispatch(context.Background(), id, frame(t, protocol.EventConnectUser, protocol.ConnectUser{Username: username}))
	return conn
}

func join(t *testing.T, h *Hub, id registry.ConnID, username, roomID string) {
	t.Helper()
	h.Dispatch(context.Background(), id, frame(t, protocol.EventJoinRoom, protocol.JoinRoom{RoomID: roomID, Username: username}))
}

func TestHub_ConnectUser_Broadcasts_To_Everyone(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHub(t)

	alice := connect(t, h, "c1", "alice")
	bob := connect(t, h, "c2", "bob")

	// alice hears her own arrival and bob's; bob only bob's.
	req.Equal(2, alice.count(protocol.EventUserConnected))
	req.Equal(1, bob.count(protocol.EventUserConnected))

	data, ok := bob.last(protocol.EventUserConnected)
	req.True(ok)
	var p protocol.UserConnected
	req.NoError(json.Unmarshal(data, &p))
	req.Equal("bob", p.Username)
	req.Equal(2, h.ConnCount())
}

func TestHub_ConnectUser_Rejects_Blank(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHub(t)

	conn := &testConn{id: "c1"}
	h.HandleConnect(conn)
	h.Dispatch(context.Background(), "c1", frame(t, protocol.EventConnectUser, map[string]string{"username": "   "}))

	req.Equal(1, conn.count(protocol.EventError))
	req.Zero(conn.count(protocol.EventUserConnected))
}

func TestHub_ConnectUser_Rejects_Bad_Shapes(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHub(t)

	for _, username := range []string{"way-too-long-username-here", "has spaces", "semi;colon"} {
		conn := &testConn{id: registry.ConnID(username)}
		h.HandleConnect(conn)
		h.Dispatch(context.Background(), conn.id,
			frame(t, protocol.EventConnectUser, protocol.ConnectUser{Username: username}))

		req.Equal(1, conn.count(protocol.EventError), "username %q", username)
		req.Zero(conn.count(protocol.EventUserConnected), "username %q", username)
	}
}

func TestHub_JoinRoom_Delivers_Snapshot_And_Notifies_Room(t *testing.T) {
	req := require.New(t)
	h, st := newTestHub(t)
	room, err := st.CreateRoom(context.Background(), "general", "")
	req.NoError(err)
	_, err = st.CreateMessage(context.Background(), room.ID, "seed", "earlier", "")
	req.NoError(err)

	bob := connect(t, h, "c2", "bob")
	join(t, h, "c2", "bob", room.ID)
	alice := connect(t, h, "c1", "alice")
	bob.reset()
	alice.reset()

	join(t, h, "c1", "alice", room.ID)

	// The joiner gets the unicast snapshot: room, history, users.
	data, ok := alice.last(protocol.EventRoomJoined)
	req.True(ok)
	var snapshot protocol.RoomJoined
	req.NoError(json.Unmarshal(data, &snapshot))
	req.Equal(room.ID, snapshot.Room.ID)
	req.Len(snapshot.Messages, 1)
	req.Equal("earlier", snapshot.Messages[0].TextContent)
	req.Len(snapshot.Users, 2)

	// The joiner is not told about their own arrival.
	req.Zero(alice.count(protocol.EventUserJoinedRoom))
	req.Equal(1, alice.count(protocol.EventUserList))

	// Existing members see the arrival and the refreshed list.
	req.Equal(1, bob.count(protocol.EventUserJoinedRoom))
	req.Equal(1, bob.count(protocol.EventUserList))

	var joined protocol.UserJoinedRoom
	data, _ = bob.last(protocol.EventUserJoinedRoom)
	req.NoError(json.Unmarshal(data, &joined))
	req.Equal("alice", joined.Username)
}

func TestHub_JoinRoom_Switch_Leaves_Previous_Room_First(t *testing.T) {
	req := require.New(t)
	h, st := newTestHub(t)
	ctx := context.Background()
	roomA, err := st.CreateRoom(ctx, "alpha", "")
	req.NoError(err)
	roomB, err := st.CreateRoom(ctx, "beta", "")
	req.NoError(err)

	bob := connect(t, h, "c2", "bob")
	join(t, h, "c2", "bob", roomA.ID)
	connect(t, h, "c1", "alice")
	join(t, h, "c1", "alice", roomA.ID)
	bob.reset()

	join(t, h, "c1", "alice", roomB.ID)

	// The old room hears the departure before its refreshed user list.
	events := bob.events()
	req.Equal([]string{protocol.EventUserLeftRoom, protocol.EventUserList}, events)

	data, _ := bob.last(protocol.EventUserList)
	var users []model.PresenceEntry
	req.NoError(json.Unmarshal(data, &users))
	req.Len(users, 1)
	req.Equal("bob", users[0].Username)

	// Membership moved.
	req.Len(h.PresenceList(roomA.ID), 1)
	req.Len(h.PresenceList(roomB.ID), 1)
}

func TestHub_Rejoin_Same_Room_Does_Not_Announce_Leaving(t *testing.T) {
	req := require.New(t)
	h, st := newTestHub(t)
	room, err := st.CreateRoom(context.Background(), "general", "")
	req.NoError(err)

	bob := connect(t, h, "c2", "bob")
	join(t, h, "c2", "bob", room.ID)
	alice := connect(t, h, "c1", "alice")
	join(t, h, "c1", "alice", room.ID)
	bob.reset()
	alice.reset()

	// A reconnect replays the join for the room it never left.
	join(t, h, "c1", "alice", room.ID)

	req.Zero(bob.count(protocol.EventUserLeftRoom))
	req.Equal(1, alice.count(protocol.EventRoomJoined))
	req.Len(h.PresenceList(room.ID), 2)
}

func TestHub_JoinRoom_Unknown_Room(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHub(t)

	alice := connect(t, h, "c1", "alice")
	join(t, h, "c1", "alice", "ghost")

	data, ok := alice.last(protocol.EventError)
	req.True(ok)
	var p protocol.ErrorEvent
	req.NoError(json.Unmarshal(data, &p))
	req.Equal("Room not found", p.Message)
	req.Zero(alice.count(protocol.EventRoomJoined))
}

func TestHub_JoinRoom_Requires_Identity(t *testing.T) {
	req := require.New(t)
	h, st := newTestHub(t)
	room, err := st.CreateRoom(context.Background(), "general", "")
	req.NoError(err)

	conn := &testConn{id: "c1"}
	h.HandleConnect(conn)
	join(t, h, "c1", "alice", room.ID)

	data, ok := conn.last(protocol.EventError)
	req.True(ok)
	var p protocol.ErrorEvent
	req.NoError(json.Unmarshal(data, &p))
	req.Equal("Connect before joining a room", p.Message)
}

func TestHub_SendMessage_Persists_Then_Broadcasts(t *testing.T) {
	req := require.New(t)
	h, st := newTestHub(t)
	ctx := context.Background()
	room, err := st.CreateRoom(ctx, "general", "")
	req.NoError(err)

	alice := connect(t, h, "c1", "alice")
	join(t, h, "c1", "alice", room.ID)
	bob := connect(t, h, "c2", "bob")
	join(t, h, "c2", "bob", room.ID)
	alice.reset()
	bob.reset()

	h.Dispatch(ctx, "c1", frame(t, protocol.EventSendMessage,
		protocol.SendMessage{RoomID: room.ID, Username: "alice", Text: "hello"}))

	// Everyone in the room receives it, the sender included.
	for _, conn := range []*testConn{alice, bob} {
		data, ok := conn.last(protocol.EventReceiveMessage)
		req.True(ok)
		var p protocol.ReceiveMessage
		req.NoError(json.Unmarshal(data, &p))
		req.Equal("hello", p.TextContent)
		req.Equal("alice", p.Username)
		req.NotEmpty(p.ID)
	}

	count, err := st.CountMessages(ctx, room.ID)
	req.NoError(err)
	req.Equal(1, count)
}

func TestHub_SendMessage_Empty_Text_Is_Rejected_Without_Side_Effects(t *testing.T) {
	req := require.New(t)
	h, st := newTestHub(t)
	ctx := context.Background()
	room, err := st.CreateRoom(ctx, "general", "")
	req.NoError(err)

	alice := connect(t, h, "c1", "alice")
	join(t, h, "c1", "alice", room.ID)
	bob := connect(t, h, "c2", "bob")
	join(t, h, "c2", "bob", room.ID)
	alice.reset()
	bob.reset()

	h.Dispatch(ctx, "c1", frame(t, protocol.EventSendMessage,
		protocol.SendMessage{RoomID: room.ID, Username: "alice", Text: "   "}))

	data, ok := alice.last(protocol.EventError)
	req.True(ok)
	var p protocol.ErrorEvent
	req.NoError(json.Unmarshal(data, &p))
	req.Equal("Message text is required", p.Message)

	req.Zero(alice.count(protocol.EventReceiveMessage))
	req.Zero(bob.count(protocol.EventReceiveMessage))
	count, err := st.CountMessages(ctx, room.ID)
	req.NoError(err)
	req.Zero(count)
}

func TestHub_SendImage_Broadcasts_Image_Message(t *testing.T) {
	req := require.New(t)
	h, st := newTestHub(t)
	ctx := context.Background()
	room, err := st.CreateRoom(ctx, "general", "")
	req.NoError(err)

	alice := connect(t, h, "c1", "alice")
	join(t, h, "c1", "alice", room.ID)
	alice.reset()

	h.Dispatch(ctx, "c1", frame(t, protocol.EventSendImage,
		protocol.SendImage{RoomID: room.ID, Username: "alice", ImageURL: "/uploads/cat.png"}))

	data, ok := alice.last(protocol.EventReceiveMessage)
	req.True(ok)
	var p protocol.ReceiveMessage
	req.NoError(json.Unmarshal(data, &p))
	req.Equal("/uploads/cat.png", p.ImageURL)
	req.Empty(p.TextContent)
}

func TestHub_SendMessage_Requires_Membership_In_Target_Room(t *testing.T) {
	req := require.New(t)
	h, st := newTestHub(t)
	ctx := context.Background()
	room, err := st.CreateRoom(ctx, "general", "")
	req.NoError(err)

	alice := connect(t, h, "c1", "alice")
	alice.reset()

	h.Dispatch(ctx, "c1", frame(t, protocol.EventSendMessage,
		protocol.SendMessage{RoomID: room.ID, Username: "alice", Text: "hi"}))

	data, ok := alice.last(protocol.EventError)
	req.True(ok)
	var p protocol.ErrorEvent
	req.NoError(json.Unmarshal(data, &p))
	req.Equal("Join the room before sending messages", p.Message)
}

func TestHub_Typing_Indicator_Skips_The_Typist(t *testing.T) {
	req := require.New(t)
	h, st := newTestHub(t)
	ctx := context.Background()
	room, err := st.CreateRoom(ctx, "general", "")
	req.NoError(err)

	alice := connect(t, h, "c1", "alice")
	join(t, h, "c1", "alice", room.ID)
	bob := connect(t, h, "c2", "bob")
	join(t, h, "c2", "bob", room.ID)
	alice.reset()
	bob.reset()

	h.Dispatch(ctx, "c1", frame(t, protocol.EventUserTyping,
		protocol.Typing{RoomID: room.ID, Username: "alice"}))

	req.Zero(alice.count(protocol.EventTypingIndicator))
	data, ok := bob.last(protocol.EventTypingIndicator)
	req.True(ok)
	var p protocol.TypingIndicator
	req.NoError(json.Unmarshal(data, &p))
	req.Equal("alice", p.Username)
	req.True(p.IsTyping)
	req.Equal([]string{"alice"}, h.TypingUsers(room.ID))

	h.Dispatch(ctx, "c1", frame(t, protocol.EventUserStopTyping,
		protocol.Typing{RoomID: room.ID, Username: "alice"}))
	req.Empty(h.TypingUsers(room.ID))
}

func TestHub_Typing_Outside_Current_Room_Is_Dropped(t *testing.T) {
	req := require.New(t)
	h, st := newTestHub(t)
	ctx := context.Background()
	room, err := st.CreateRoom(ctx, "general", "")
	req.NoError(err)

	bob := connect(t, h, "c2", "bob")
	join(t, h, "c2", "bob", room.ID)
	connect(t, h, "c1", "alice")
	bob.reset()

	h.Dispatch(ctx, "c1", frame(t, protocol.EventUserTyping,
		protocol.Typing{RoomID: room.ID, Username: "alice"}))

	req.Zero(bob.count(protocol.EventTypingIndicator))
	req.Empty(h.TypingUsers(room.ID))
}

func TestHub_Disconnect_Cleans_Up_Room_State(t *testing.T) {
	req := require.New(t)
	h, st := newTestHub(t)
	ctx := context.Background()
	room, err := st.CreateRoom(ctx, "general", "")
	req.NoError(err)

	connect(t, h, "c1", "alice")
	join(t, h, "c1", "alice", room.ID)
	h.Dispatch(ctx, "c1", frame(t, protocol.EventUserTyping,
		protocol.Typing{RoomID: room.ID, Username: "alice"}))
	bob := connect(t, h, "c2", "bob")
	join(t, h, "c2", "bob", room.ID)
	bob.reset()

	h.HandleDisconnect(ctx, "c1")

	req.Equal(1, bob.count(protocol.EventUserLeftRoom))
	req.Equal(1, bob.count(protocol.EventUserDisconnected))
	req.Empty(h.TypingUsers(room.ID))

	data, _ := bob.last(protocol.EventUserList)
	var users []model.PresenceEntry
	req.NoError(json.Unmarshal(data, &users))
	req.Len(users, 1)
	req.Equal("bob", users[0].Username)
	req.Equal(1, h.ConnCount())

	// A second disconnect for the same connection broadcasts nothing.
	bob.reset()
	h.HandleDisconnect(ctx, "c1")
	req.Empty(bob.events())
}

func TestHub_Invalid_Frame_Produces_Error_Event(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHub(t)

	alice := connect(t, h, "c1", "alice")
	alice.reset()

	h.Dispatch(context.Background(), "c1", []byte(`{"event":"no_such_event","data":{}}`))

	data, ok := alice.last(protocol.EventError)
	req.True(ok)
	var p protocol.ErrorEvent
	req.NoError(json.Unmarshal(data, &p))
	req.Equal("Invalid event payload", p.Message)
}

func TestHub_Slow_Connection_Is_Closed_On_Delivery_Failure(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHub(t)

	conn := &testConn{id: "c1", rejected: true}
	h.HandleConnect(conn)
	h.BroadcastAll(protocol.EventUserConnected, protocol.UserConnected{Username: "x"})

	conn.mu.Lock()
	defer conn.mu.Unlock()
	req.True(conn.closed)
}
